// Package artifacts writes each stored compile as a directory of JSON files
// under a base directory, with an index.json listing every compile.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"neurocomp/internal/model"
	"neurocomp/internal/nir"
)

const (
	indexFile      = "index.json"
	reportFile     = "report.json"
	attributesFile = "attributes.json"
	graphFile      = "graph.json"
	artifactFile   = "artifact.txt"

	// indexTimeLayout has fixed width so index timestamps sort as strings.
	indexTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

type IndexEntry struct {
	ReportID     string `json:"report_id"`
	GraphName    string `json:"graph_name"`
	Target       string `json:"target"`
	Legal        bool   `json:"legal"`
	Violations   int    `json:"violations"`
	CreatedAtUTC string `json:"created_at_utc"`
}

func EntryFor(r model.CompileRecord) IndexEntry {
	return IndexEntry{
		ReportID:     r.ID,
		GraphName:    r.GraphName,
		Target:       r.Target,
		Legal:        r.Legal,
		Violations:   r.Violations,
		CreatedAtUTC: r.CreatedAt.UTC().Format(indexTimeLayout),
	}
}

// Write stores the record, its attribute table and the lowered graph under
// baseDir/<report id> and returns that directory.
func Write(baseDir string, record model.CompileRecord, g *nir.Graph) (string, error) {
	if record.ID == "" {
		return "", errors.New("report id is required")
	}

	dir := filepath.Join(baseDir, record.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(dir, reportFile), record); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, attributesFile), append(indent(record.Attributes), '\n'), 0o644); err != nil {
		return "", err
	}
	if g != nil {
		data, err := g.ToJSON()
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, graphFile), append(data, '\n'), 0o644); err != nil {
			return "", err
		}
	}
	if record.Artifact != "" {
		if err := os.WriteFile(filepath.Join(dir, artifactFile), []byte(record.Artifact+"\n"), 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// AppendIndex adds entry to baseDir/index.json, replacing an entry with the
// same report id.
func AppendIndex(baseDir string, entry IndexEntry) error {
	if entry.ReportID == "" {
		return errors.New("report id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].ReportID == entry.ReportID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, indexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, indexFile), index)
}

// ListIndex returns index entries newest first. A missing index is empty.
func ListIndex(baseDir string) ([]IndexEntry, error) {
	entries, err := readIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry IndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]IndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readIndex(baseDir string) ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []IndexEntry{}, nil
		}
		return nil, err
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", indexFile, err)
	}
	return entries, nil
}

// Export copies one compile directory to outDir/<report id>.
func Export(baseDir, reportID, outDir string) (string, error) {
	if reportID == "" {
		return "", errors.New("report id is required")
	}

	src := filepath.Join(baseDir, reportID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, reportID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	if err := copyFile(filepath.Join(src, reportFile), filepath.Join(dst, reportFile)); err != nil {
		return "", err
	}
	for _, optional := range []string{attributesFile, graphFile, artifactFile} {
		path := filepath.Join(src, optional)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, optional)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

// ReadReport loads baseDir/<report id>/report.json.
func ReadReport(baseDir, reportID string) (model.CompileRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, reportID, reportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.CompileRecord{}, false, nil
		}
		return model.CompileRecord{}, false, err
	}
	var record model.CompileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.CompileRecord{}, false, err
	}
	return record, true, nil
}

func indent(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return data
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
