package backend

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
	"neurocomp/internal/passes"
	"neurocomp/internal/telemetry"
)

func mustManifest(t *testing.T, src string) *hal.TargetManifest {
	t.Helper()
	m, err := hal.ParseManifest([]byte(src))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return m
}

const dynapsLike = `
name = "dynaps"
vendor = "SynSense"
family = "DYNAP"
version = "1"
[capabilities]
weight_precisions = [4, 6, 2]
`

const silentTarget = `
name = "plain"
vendor = "Acme"
family = "x"
version = "1"
`

func TestDescriptorBackend(t *testing.T) {
	g := nir.Chain(2, 2)
	out, err := DescriptorBackend{}.Compile(context.Background(), g, mustManifest(t, silentTarget))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if out != "compiled:plain:chain" {
		t.Fatalf("unexpected artifact: %s", out)
	}
}

func TestBackendsRejectInvalidInputs(t *testing.T) {
	bad := nir.Chain(2, 2)
	bad.Connections[0].Post = "missing"
	m := mustManifest(t, silentTarget)

	for _, b := range []Backend{DescriptorBackend{}, QuantizedJSONBackend{}} {
		if _, err := b.Compile(context.Background(), bad, m); !errors.Is(err, nir.ErrInvalidGraph) {
			t.Fatalf("%s: expected invalid graph, got %v", b.Name(), err)
		}
		if _, err := b.Compile(context.Background(), nir.Chain(1), nil); !errors.Is(err, hal.ErrInvalidManifest) {
			t.Fatalf("%s: expected invalid manifest, got %v", b.Name(), err)
		}
		if _, err := b.Compile(context.Background(), nil, m); err == nil {
			t.Fatalf("%s: expected error for nil graph", b.Name())
		}
	}
}

func TestQuantizedJSONUsesWidestPrecision(t *testing.T) {
	g := nir.Chain(2, 2, 2)
	g.Connections[0].Weight = 0.3
	g.Connections[1].Weight = -2
	before, err := g.ToJSON()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := QuantizedJSONBackend{}.Compile(context.Background(), g, mustManifest(t, dynapsLike))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var artifact QuantizedArtifact
	if err := json.Unmarshal([]byte(out), &artifact); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if artifact.Target != "dynaps" || artifact.Graph != "chain" || len(artifact.Connections) != 2 {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}
	for i, c := range artifact.Connections {
		if c.Bits != 6 {
			t.Fatalf("connection %d: bits = %d, want 6", i, c.Bits)
		}
		if want := passes.QuantizeWeight(g.Connections[i].Weight, 6); c.WeightQ != want {
			t.Fatalf("connection %d: weight_q = %f, want %f", i, c.WeightQ, want)
		}
	}
	if artifact.Connections[1].WeightQ != -1 {
		t.Fatalf("expected clamped weight, got %f", artifact.Connections[1].WeightQ)
	}

	after, err := g.ToJSON()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("backend mutated the caller's graph")
	}
}

func TestWeightBitsDefault(t *testing.T) {
	if got := WeightBits(mustManifest(t, silentTarget)); got != DefaultWeightBits {
		t.Fatalf("WeightBits = %d, want %d", got, DefaultWeightBits)
	}
}

func TestRunRecordsProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.jsonl")
	prof, err := telemetry.OpenAppender(path)
	if err != nil {
		t.Fatalf("open appender: %v", err)
	}

	g := nir.Star(4, 2, 3, 0.5, 1)
	out, err := Run(context.Background(), DescriptorBackend{}, g, mustManifest(t, silentTarget), prof)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "compiled:plain:star" {
		t.Fatalf("unexpected artifact: %s", out)
	}
	if err := prof.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	summaries, err := telemetry.SummarizeJSONL(path)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	got := map[string]telemetry.MetricSummary{}
	for _, s := range summaries {
		got[s.Metric] = s
	}
	if got["backend.compile_ms"].Count != 1 {
		t.Fatalf("expected one compile sample, got %+v", summaries)
	}
	if got["graph.populations"].Sum != 4 || got["graph.connections"].Sum != 3 || got["graph.probes"].Count != 1 {
		t.Fatalf("unexpected graph samples: %+v", summaries)
	}
}

func TestRunWithoutProfileAndCancelled(t *testing.T) {
	m := mustManifest(t, silentTarget)
	if _, err := Run(context.Background(), DescriptorBackend{}, nir.Chain(1), m, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, DescriptorBackend{}, nir.Chain(1), m, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
