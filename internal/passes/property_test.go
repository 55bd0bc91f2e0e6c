package passes

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
)

// genGraph derives a valid graph from population sizes and edge seeds. Each
// seed picks an endpoint pair and a delay in [0, 5) ms.
func genGraph(sizes []uint32, edgeSeeds []int) *nir.Graph {
	g := nir.NewGraph("prop")
	for i, size := range sizes {
		g.Populations = append(g.Populations, nir.Population{Name: fmt.Sprintf("n%d", i), Size: size, Model: "LIF"})
	}
	if len(sizes) == 0 {
		return g
	}
	for _, seed := range edgeSeeds {
		pre := seed % len(sizes)
		post := (seed / 7) % len(sizes)
		g.Connections = append(g.Connections, nir.Connection{
			Pre:     fmt.Sprintf("n%d", pre),
			Post:    fmt.Sprintf("n%d", post),
			Weight:  float64(seed%11)/10 - 0.5,
			DelayMS: float64(seed%50) / 10,
		})
	}
	return g
}

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return parameters
}

func runFull(g *nir.Graph, m *hal.TargetManifest) (*nir.Graph, error) {
	mgr, err := Build(DefaultPipeline, Options{Manifest: m})
	if err != nil {
		return nil, err
	}
	return mgr.Run(context.Background(), g)
}

func TestPartitionProperties(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("parts cover units and assignment is total", prop.ForAll(
		func(sizes []uint32, edgeSeeds []int, limit uint32) bool {
			g := genGraph(sizes, edgeSeeds)
			m := manifestWith(hal.Capabilities{MaxNeuronsPerCore: &limit})
			r := CapacityStrategy{}.Partition(g, m)

			minParts := int(ceilDiv(g.TotalUnits(), uint64(limit)))
			if r.Parts < minParts || r.Parts < 1 {
				return false
			}
			if len(r.Assignment) != len(g.Populations) {
				return false
			}
			seen := map[string]bool{}
			for _, a := range r.Assignment {
				if seen[a.Population] || a.Part < 0 || a.Part >= r.Parts {
					return false
				}
				seen[a.Population] = true
			}
			return true
		},
		gen.SliceOf(gen.UInt32Range(1, 40)),
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.UInt32Range(1, 30),
	))

	properties.TestingRun(t)
}

func TestPlacementAndRoutingProperties(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("intra synapses plus cross edges equal all connections", prop.ForAll(
		func(sizes []uint32, edgeSeeds []int, limit uint32) bool {
			m := manifestWith(hal.Capabilities{MaxNeuronsPerCore: &limit})
			g, err := runFull(genGraph(sizes, edgeSeeds), m)
			if err != nil {
				return false
			}
			placement, _, err := GetPlacement(g)
			if err != nil {
				return false
			}
			routing, _, err := GetRouting(g)
			if err != nil {
				return false
			}

			intra := 0
			for _, n := range placement.SynapsesPerPart {
				intra += n
			}
			if intra > len(g.Connections) {
				return false
			}
			if (intra == len(g.Connections)) != (routing.CrossEdges == 0) {
				return false
			}

			total := 0
			for i, row := range routing.TrafficMatrix {
				if row[i] != 0 {
					return false
				}
				for _, n := range row {
					total += n
				}
			}
			return total == routing.CrossEdges && intra+routing.CrossEdges == len(g.Connections)
		},
		gen.SliceOf(gen.UInt32Range(1, 40)),
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.UInt32Range(1, 30),
	))

	properties.TestingRun(t)
}

func TestTimingMonotonicProperty(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("ticks never decrease as delay grows", prop.ForAll(
		func(delays []float64, resolution uint64) bool {
			sorted := append([]float64(nil), delays...)
			sort.Float64s(sorted)
			var prev uint64
			for i, d := range sorted {
				ticks := DelayTicks(d, resolution)
				if i > 0 && ticks < prev {
					return false
				}
				prev = ticks
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1000)),
		gen.UInt64Range(1, 5_000_000),
	))

	properties.TestingRun(t)
}

func TestPipelineIdempotent(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	m, err := hal.LoadBuiltin("loihi2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	properties.Property("two runs give byte-identical output", prop.ForAll(
		func(sizes []uint32, edgeSeeds []int) bool {
			a, errA := runFull(genGraph(sizes, edgeSeeds), m)
			b, errB := runFull(genGraph(sizes, edgeSeeds), m)
			if errA != nil || errB != nil {
				return false
			}
			ja, errA := a.ToJSON()
			jb, errB := b.ToJSON()
			return errA == nil && errB == nil && string(ja) == string(jb)
		},
		gen.SliceOf(gen.UInt32Range(1, 20_000)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

func TestRerunOverwritesReportsInPlace(t *testing.T) {
	m, err := hal.LoadBuiltin("spinnaker2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first, err := runFull(nir.Star(3000, 500, 4, 0.25, 2.5), m)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := first.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	second, err := runFull(first, m)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	after, err := second.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}

	if diff := cmp.Diff(before.Attributes.Keys(), after.Attributes.Keys()); diff != "" {
		t.Fatalf("attribute keys changed (-first +second):\n%s", diff)
	}
	for _, key := range before.Attributes.Keys() {
		x, _ := before.Attributes.Get(key)
		y, _ := after.Attributes.Get(key)
		if diff := cmp.Diff(x, y); diff != "" {
			t.Fatalf("attribute %s changed (-first +second):\n%s", key, diff)
		}
	}
}
