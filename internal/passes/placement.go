package passes

import (
	"neurocomp/internal/hal"
	"neurocomp/internal/metrics"
	"neurocomp/internal/nir"
)

// Coarse per-unit memory costs used when the manifest is silent.
const (
	DefaultNeuronMemKiB  = 0.01
	DefaultSynapseMemKiB = 0.001
)

// PlacementPass estimates per-part memory against core_memory_kib and checks
// population fan-in/out caps. Only connections inside one part count toward
// that part's synapse load; fan-in/out counts every connection.
type PlacementPass struct {
	Manifest *hal.TargetManifest
}

func (PlacementPass) Name() string { return "placement" }

func (p PlacementPass) Run(g *nir.Graph) (*nir.Graph, error) {
	parts, partOf, err := partitionView(g)
	if err != nil {
		return nil, err
	}
	caps := p.Manifest.Caps()
	neuronCost := DefaultNeuronMemKiB
	if caps.NeuronMemKiBPer != nil {
		neuronCost = *caps.NeuronMemKiBPer
	}
	synCost := DefaultSynapseMemKiB
	if caps.SynMemKiBPer != nil {
		synCost = *caps.SynMemKiBPer
	}

	neurons, synapses := partLoads(g, parts, partOf)
	memory := make([]float64, parts)
	violations := []Violation{}
	for part := 0; part < parts; part++ {
		memory[part] = float64(neurons[part])*neuronCost + float64(synapses[part])*synCost
		if caps.CoreMemoryKiB != nil && memory[part] > float64(*caps.CoreMemoryKiB) {
			violations = append(violations, Violation{
				Code:     CodeCoreMemoryExceeded,
				Entity:   partEntity(part),
				Observed: memory[part],
				Limit:    float64(*caps.CoreMemoryKiB),
			})
		}
	}
	violations = append(violations, fanViolations(g, caps)...)

	status := StatusOK
	if len(violations) > 0 {
		status = StatusViolations
	}
	g.Attributes.Set(KeyPlacement, PlacementReport{
		Status:           status,
		Parts:            parts,
		NeuronsPerPart:   neurons,
		SynapsesPerPart:  synapses,
		MemoryKiBPerPart: memory,
		Violations:       violations,
	})
	return g, nil
}

// fanViolations checks every population, in declaration order, against the
// declared fan-in and fan-out caps.
func fanViolations(g *nir.Graph, caps *hal.Capabilities) []Violation {
	fanIn, fanOut := metrics.FanCounts(g)
	var out []Violation
	for _, pop := range g.Populations {
		if caps.MaxFanIn != nil && fanIn[pop.Name] > int(*caps.MaxFanIn) {
			out = append(out, Violation{
				Code:     CodeMaxFanInExceeded,
				Entity:   pop.Name,
				Observed: float64(fanIn[pop.Name]),
				Limit:    float64(*caps.MaxFanIn),
			})
		}
		if caps.MaxFanOut != nil && fanOut[pop.Name] > int(*caps.MaxFanOut) {
			out = append(out, Violation{
				Code:     CodeMaxFanOutExceeded,
				Entity:   pop.Name,
				Observed: float64(fanOut[pop.Name]),
				Limit:    float64(*caps.MaxFanOut),
			})
		}
	}
	return out
}
