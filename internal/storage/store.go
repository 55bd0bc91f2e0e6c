package storage

import (
	"context"

	"neurocomp/internal/model"
)

// Store persists compile reports. List results are ordered by creation time,
// then ID.
type Store interface {
	Init(ctx context.Context) error
	SaveReport(ctx context.Context, record model.CompileRecord) error
	GetReport(ctx context.Context, id string) (model.CompileRecord, bool, error)
	ListReports(ctx context.Context, filter model.ReportFilter) ([]model.CompileRecord, error)
	DeleteReport(ctx context.Context, id string) (bool, error)
}
