package passes

import (
	"neurocomp/internal/hal"
	"neurocomp/internal/metrics"
	"neurocomp/internal/nir"
)

// ResourceCheckPass is the legality verdict. It recomputes per-part loads and
// fan-in/out from the partition assignment alone, so it does not depend on
// placement or routing having run, and it collects every violation.
type ResourceCheckPass struct {
	Manifest *hal.TargetManifest
}

func (ResourceCheckPass) Name() string { return "resource-check" }

func (p ResourceCheckPass) Run(g *nir.Graph) (*nir.Graph, error) {
	parts, partOf, err := partitionView(g)
	if err != nil {
		return nil, err
	}
	caps := p.Manifest.Caps()
	neurons, synapses := partLoads(g, parts, partOf)

	violations := []Violation{}
	for part := 0; part < parts; part++ {
		if caps.MaxNeuronsPerCore != nil && neurons[part] > uint64(*caps.MaxNeuronsPerCore) {
			violations = append(violations, Violation{
				Code:     CodeCoreNeuronsExceeded,
				Entity:   partEntity(part),
				Observed: float64(neurons[part]),
				Limit:    float64(*caps.MaxNeuronsPerCore),
			})
		}
		if caps.MaxSynapsesPerCore != nil && synapses[part] > int(*caps.MaxSynapsesPerCore) {
			violations = append(violations, Violation{
				Code:     CodeCoreSynapsesExceeded,
				Entity:   partEntity(part),
				Observed: float64(synapses[part]),
				Limit:    float64(*caps.MaxSynapsesPerCore),
			})
		}
	}
	violations = append(violations, fanViolations(g, caps)...)

	fanIn, fanOut := metrics.FanCounts(g)
	report := ResourceReport{
		Legal:           len(violations) == 0,
		Parts:           parts,
		NeuronsPerPart:  neurons,
		SynapsesPerPart: synapses,
		FanIn:           make([]FanEntry, 0, len(g.Populations)),
		FanOut:          make([]FanEntry, 0, len(g.Populations)),
		Violations:      violations,
	}
	for _, pop := range g.Populations {
		report.FanIn = append(report.FanIn, FanEntry{Population: pop.Name, Count: fanIn[pop.Name]})
		report.FanOut = append(report.FanOut, FanEntry{Population: pop.Name, Count: fanOut[pop.Name]})
	}
	g.Attributes.Set(KeyResourceCheck, report)
	return g, nil
}
