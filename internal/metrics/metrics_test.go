package metrics

import (
	"math"
	"testing"

	"neurocomp/internal/nir"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeChain(t *testing.T) {
	m := Compute(nir.Chain(10, 20, 30))
	if m.NodeCount != 3 || m.EdgeCount != 2 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if !approxEqual(m.AvgFanIn, 2.0/3.0) || !approxEqual(m.AvgFanOut, 2.0/3.0) {
		t.Fatalf("unexpected averages: %+v", m)
	}
	if m.MaxFanIn != 1 || m.MaxFanOut != 1 {
		t.Fatalf("unexpected maxima: %+v", m)
	}
}

func TestComputeStar(t *testing.T) {
	m := Compute(nir.Star(32, 8, 5, 0.5, 1.0))
	if m.NodeCount != 6 || m.EdgeCount != 5 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if !approxEqual(m.AvgFanIn, 5.0/6.0) {
		t.Fatalf("unexpected avg fan-in: %f", m.AvgFanIn)
	}
	if m.MaxFanOut != 5 || m.MaxFanIn != 1 {
		t.Fatalf("unexpected maxima: %+v", m)
	}
}

func TestComputeEmptyGraph(t *testing.T) {
	m := Compute(nir.NewGraph("empty"))
	if m != (GraphMetrics{}) {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}

func TestFanCountsIncludesIsolatedPopulations(t *testing.T) {
	g := nir.Chain(1, 1)
	g.Populations = append(g.Populations, nir.Population{Name: "lonely", Size: 1, Model: "LIF"})
	fanIn, fanOut := FanCounts(g)
	if v, ok := fanIn["lonely"]; !ok || v != 0 {
		t.Fatalf("expected zero fan-in entry for isolated population, got %d %v", v, ok)
	}
	if fanOut["p0"] != 1 || fanIn["p1"] != 1 {
		t.Fatalf("unexpected fan counts: in=%v out=%v", fanIn, fanOut)
	}
}
