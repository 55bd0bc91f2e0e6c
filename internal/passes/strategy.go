package passes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"neurocomp/internal/hal"
	"neurocomp/internal/metrics"
	"neurocomp/internal/nir"
)

const (
	StrategyNaive    = "naive"
	StrategyCapAware = "cap-aware"
	StrategySeeded   = "seeded"
)

var ErrUnknownStrategy = errors.New("unknown partition strategy")

// PartitionStrategy assigns every population to a part. Implementations are
// pure functions of their inputs and never fail; capacity breaches go into
// the report's violations.
type PartitionStrategy interface {
	Name() string
	Partition(g *nir.Graph, m *hal.TargetManifest) PartitionReport
}

// NewStrategy resolves a strategy by name. "" and "capacity" select the
// capacity strategy.
func NewStrategy(name string, seed uint64, targets []string) (PartitionStrategy, error) {
	switch name {
	case "", "capacity":
		return CapacityStrategy{}, nil
	case "seeded":
		return SeededStrategy{Seed: seed, Targets: append([]string(nil), targets...)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// partCount is max(ceil(units/max_neurons), ceil(connections/max_synapses), 1).
// ok is false when the manifest declares neither limit.
func partCount(g *nir.Graph, c *hal.Capabilities) (parts int, ok bool) {
	parts = 1
	if c.MaxNeuronsPerCore != nil && *c.MaxNeuronsPerCore > 0 {
		ok = true
		parts = max(parts, int(ceilDiv(g.TotalUnits(), uint64(*c.MaxNeuronsPerCore))))
	}
	if c.MaxSynapsesPerCore != nil && *c.MaxSynapsesPerCore > 0 {
		ok = true
		parts = max(parts, int(ceilDiv(uint64(len(g.Connections)), uint64(*c.MaxSynapsesPerCore))))
	}
	return parts, ok
}

// assignLeastLoaded places populations, in the given order, into whichever
// part currently holds the fewest units. Ties go to the lowest index.
// Populations larger than the per-core neuron limit are still placed and
// reported.
func assignLeastLoaded(order []nir.Population, parts int, c *hal.Capabilities) (map[string]int, []Violation) {
	loads := make([]uint64, parts)
	partOf := make(map[string]int, len(order))
	violations := []Violation{}
	for _, p := range order {
		idx := 0
		for i := 1; i < parts; i++ {
			if loads[i] < loads[idx] {
				idx = i
			}
		}
		if c.MaxNeuronsPerCore != nil && p.Size > *c.MaxNeuronsPerCore {
			violations = append(violations, Violation{
				Code:     CodePopExceedsMaxNeuronsPerCore,
				Entity:   p.Name,
				Observed: float64(p.Size),
				Limit:    float64(*c.MaxNeuronsPerCore),
			})
		}
		loads[idx] += uint64(p.Size)
		partOf[p.Name] = idx
	}
	return partOf, violations
}

// assignmentList reports the assignment in graph declaration order.
func assignmentList(g *nir.Graph, partOf map[string]int) []Assignment {
	out := make([]Assignment, 0, len(g.Populations))
	for _, p := range g.Populations {
		out = append(out, Assignment{Population: p.Name, Part: partOf[p.Name]})
	}
	return out
}

// CapacityStrategy is greedy bin-packing by descending population size over
// a part count derived from the per-core limits. Without limits it collapses
// to a single part and reports the naive strategy.
type CapacityStrategy struct{}

func (CapacityStrategy) Name() string { return "capacity" }

func (CapacityStrategy) Partition(g *nir.Graph, m *hal.TargetManifest) PartitionReport {
	caps := m.Caps()
	parts, ok := partCount(g, caps)
	if !ok {
		partOf := make(map[string]int, len(g.Populations))
		for _, p := range g.Populations {
			partOf[p.Name] = 0
		}
		return PartitionReport{
			Parts:      1,
			Strategy:   StrategyNaive,
			Assignment: assignmentList(g, partOf),
			Violations: []Violation{},
		}
	}

	order := append([]nir.Population(nil), g.Populations...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Size > order[j].Size })
	partOf, violations := assignLeastLoaded(order, parts, caps)
	return PartitionReport{
		Parts:      parts,
		Strategy:   StrategyCapAware,
		Assignment: assignmentList(g, partOf),
		Violations: violations,
	}
}

// SeededStrategy orders populations by a hash of the seed, the graph's
// structural metrics, the target names and the population name, then assigns
// least-loaded. The same inputs always give the same assignment; changing the
// seed explores a different one. The part count follows the capacity limits,
// or the number of targets when the manifest declares none.
type SeededStrategy struct {
	Seed    uint64
	Targets []string
}

func (SeededStrategy) Name() string { return "seeded" }

func (s SeededStrategy) Partition(g *nir.Graph, m *hal.TargetManifest) PartitionReport {
	caps := m.Caps()
	parts, ok := partCount(g, caps)
	if !ok {
		parts = max(len(s.Targets), 1)
	}

	base := s.fingerprint(metrics.Compute(g))
	type keyed struct {
		pop nir.Population
		key uint64
	}
	order := make([]keyed, 0, len(g.Populations))
	for _, p := range g.Populations {
		h := fnv.New64a()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], base)
		h.Write(buf[:])
		h.Write([]byte(p.Name))
		order = append(order, keyed{pop: p, key: h.Sum64()})
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].key != order[j].key {
			return order[i].key < order[j].key
		}
		return order[i].pop.Name < order[j].pop.Name
	})
	pops := make([]nir.Population, 0, len(order))
	for _, k := range order {
		pops = append(pops, k.pop)
	}

	partOf, violations := assignLeastLoaded(pops, parts, caps)
	return PartitionReport{
		Parts:      parts,
		Strategy:   StrategySeeded,
		Assignment: assignmentList(g, partOf),
		Violations: violations,
	}
}

func (s SeededStrategy) fingerprint(gm metrics.GraphMetrics) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	write(s.Seed)
	write(uint64(gm.NodeCount))
	write(uint64(gm.EdgeCount))
	write(uint64(gm.MaxFanIn))
	write(uint64(gm.MaxFanOut))
	write(math.Float64bits(gm.AvgFanIn))
	write(math.Float64bits(gm.AvgFanOut))
	for _, t := range s.Targets {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// PartitionPass records the chosen strategy's report under "partition".
type PartitionPass struct {
	Manifest *hal.TargetManifest
	Strategy PartitionStrategy
}

func (PartitionPass) Name() string { return "partition" }

func (p PartitionPass) Run(g *nir.Graph) (*nir.Graph, error) {
	strategy := p.Strategy
	if strategy == nil {
		strategy = CapacityStrategy{}
	}
	g.Attributes.Set(KeyPartition, strategy.Partition(g, p.Manifest))
	return g, nil
}
