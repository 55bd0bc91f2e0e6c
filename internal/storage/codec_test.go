package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"neurocomp/internal/model"
)

func TestDecodeReportFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("compile_record_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	record, err := DecodeReport(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if record.ID != "report-chain-1" || record.Target != "truenorth" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !record.Legal || record.Parts != 3 || len(record.Passes) != 6 {
		t.Fatalf("unexpected summary fields: %+v", record)
	}
	if len(record.Timings) != 2 || record.Timings[1].Pass != "partition" {
		t.Fatalf("unexpected timings: %+v", record.Timings)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !record.CreatedAt.Equal(want) {
		t.Fatalf("unexpected created_at: %v", record.CreatedAt)
	}
}

func TestDecodeReportRejectsOldSchema(t *testing.T) {
	data, err := os.ReadFile(fixturePath("compile_record_v0.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	_, err = DecodeReport(data)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeReportRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeReport([]byte(`{"id":`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEncodeDecodeKeepsAttributes(t *testing.T) {
	in := model.CompileRecord{
		VersionedRecord: Stamp(),
		ID:              "r1",
		Attributes:      []byte(`{"timing":{"resolution_ns":1000000}}`),
	}
	data, err := EncodeReport(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeReport(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out.Attributes) != string(in.Attributes) {
		t.Fatalf("attributes changed: %s", out.Attributes)
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
