// Package passes holds the compile pipeline: the Pass contract, the Manager
// that threads one graph through an ordered pass list, and the mapping passes
// that decide whether a graph fits a target.
//
// Passes talk forward only, through the graph's attribute table. Each mapping
// pass writes one key named after itself and may read any key written
// earlier. Capacity problems are reported as violations inside those reports;
// an error from Run means the pipeline itself could not proceed.
package passes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neurocomp/internal/nir"
	"neurocomp/internal/telemetry"
)

type Pass interface {
	Name() string
	Run(g *nir.Graph) (*nir.Graph, error)
}

// PipelineConfig controls per-stage dumps. When DumpDir is set the graph is
// written after every pass as <NN>_<pass>.<ext> in each of DumpFormats.
type PipelineConfig struct {
	DumpDir     string
	DumpFormats []nir.Format
}

// Manager runs passes strictly in order. A Manager may be shared by
// concurrent runs as long as each run owns its graph.
type Manager struct {
	passes   []Pass
	observer telemetry.Observer
}

func NewManager(passes ...Pass) *Manager {
	return &Manager{passes: append([]Pass(nil), passes...), observer: telemetry.NoopObserver{}}
}

func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// SetObserver attaches an observer; nil restores the no-op observer.
func (m *Manager) SetObserver(o telemetry.Observer) {
	m.observer = telemetry.OrNoop(o)
}

func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.passes))
	for _, p := range m.passes {
		names = append(names, p.Name())
	}
	return names
}

func (m *Manager) Run(ctx context.Context, g *nir.Graph) (*nir.Graph, error) {
	return m.RunWithConfig(ctx, g, PipelineConfig{})
}

// RunWithConfig stops at the first pass or dump failure. ctx is checked
// between passes only; a running pass is never interrupted.
func (m *Manager) RunWithConfig(ctx context.Context, g *nir.Graph, cfg PipelineConfig) (*nir.Graph, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	observer := telemetry.OrNoop(m.observer)
	formats := cfg.DumpFormats
	if len(formats) == 0 {
		formats = []nir.Format{nir.FormatJSON}
	}

	for idx, p := range m.passes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("before pass %s: %w", p.Name(), err)
		}
		passCtx := observer.PassStarted(ctx, idx, p.Name())
		start := time.Now()
		out, err := p.Run(g)
		if err == nil && out == nil {
			err = errors.New("pass returned no graph")
		}
		sample := telemetry.PassSample{
			Graph:    g.Name,
			Index:    idx,
			Pass:     p.Name(),
			Duration: time.Since(start),
			Err:      err,
		}
		if out != nil {
			sample.Populations = len(out.Populations)
			sample.Connections = len(out.Connections)
			sample.Probes = len(out.Probes)
		}
		observer.PassFinished(passCtx, sample)
		if err != nil {
			return nil, fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		g = out

		if cfg.DumpDir != "" {
			if err := dumpGraph(g, cfg.DumpDir, idx, p.Name(), formats); err != nil {
				return nil, fmt.Errorf("dump after pass %s: %w", p.Name(), err)
			}
		}
	}
	return g, nil
}

// DumpFileName is the per-stage file name without directory.
func DumpFileName(idx int, pass string, f nir.Format) string {
	return fmt.Sprintf("%02d_%s.%s", idx, strings.ReplaceAll(pass, "/", "_"), f.Ext())
}

func dumpGraph(g *nir.Graph, dir string, idx int, pass string, formats []nir.Format) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range formats {
		data, err := g.Encode(f)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, DumpFileName(idx, pass, f)), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
