package model

import (
	"encoding/json"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CompileRecord is one finished compilation of a graph against a target.
// Attributes holds the graph's final attribute table as JSON, in pass order.
type CompileRecord struct {
	VersionedRecord
	ID         string          `json:"id"`
	GraphName  string          `json:"graph_name"`
	Target     string          `json:"target"`
	Strategy   string          `json:"strategy"`
	Passes     []string        `json:"passes"`
	Legal      bool            `json:"legal"`
	Violations int             `json:"violations"`
	Parts      int             `json:"parts"`
	Artifact   string          `json:"artifact,omitempty"`
	Timings    []PassTiming    `json:"timings,omitempty"`
	Attributes json.RawMessage `json:"attributes"`
	CreatedAt  time.Time       `json:"created_at"`
}

type PassTiming struct {
	Pass       string  `json:"pass"`
	DurationMS float64 `json:"duration_ms"`
}

// ReportFilter narrows ListReports. Zero fields match everything.
type ReportFilter struct {
	Target    string
	GraphName string
	Limit     int
}

func (f ReportFilter) Matches(r CompileRecord) bool {
	if f.Target != "" && r.Target != f.Target {
		return false
	}
	if f.GraphName != "" && r.GraphName != f.GraphName {
		return false
	}
	return true
}
