// Package backend defines the contract between the mapping pipeline and the
// code generators that consume its output. A backend receives a validated
// graph and manifest and returns an opaque artifact descriptor. It must not
// change the caller's graph.
package backend

import (
	"context"
	"errors"
	"time"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
	"neurocomp/internal/telemetry"
)

type Backend interface {
	Name() string
	Compile(ctx context.Context, g *nir.Graph, m *hal.TargetManifest) (string, error)
}

// checkInputs runs the validation every backend performs before emitting.
func checkInputs(g *nir.Graph, m *hal.TargetManifest) error {
	if g == nil {
		return errors.New("graph is required")
	}
	if err := g.Validate(); err != nil {
		return err
	}
	return hal.ValidateManifest(m)
}

// Run compiles through b and, when prof is non-nil, appends the backend
// duration and graph size samples to it. Profiling failures are ignored.
func Run(ctx context.Context, b Backend, g *nir.Graph, m *hal.TargetManifest, prof *telemetry.Appender) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prof == nil {
		return b.Compile(ctx, g, m)
	}

	labels := Labels(g, b.Name(), m)
	start := time.Now()
	artifact, err := b.Compile(ctx, g, m)
	_ = prof.Counter("backend.compile_ms", float64(time.Since(start).Microseconds())/1000, labels)
	if err != nil {
		return "", err
	}
	_ = prof.Counter("graph.populations", float64(len(g.Populations)), labels)
	_ = prof.Counter("graph.connections", float64(len(g.Connections)), labels)
	_ = prof.Counter("graph.probes", float64(len(g.Probes)), labels)
	return artifact, nil
}

// Labels is the label set attached to backend samples.
func Labels(g *nir.Graph, backendName string, m *hal.TargetManifest) map[string]string {
	labels := map[string]string{"backend": backendName}
	if g != nil {
		labels["graph"] = g.Name
	}
	if m != nil {
		labels["target"] = m.Name
	}
	return labels
}
