package storage

import (
	"encoding/json"
	"errors"

	"neurocomp/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp fills in the current schema and codec versions.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeReport(r model.CompileRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeReport(data []byte) (model.CompileRecord, error) {
	var record model.CompileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.CompileRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.CompileRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
