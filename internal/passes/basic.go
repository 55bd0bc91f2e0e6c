package passes

import (
	"math"

	"neurocomp/internal/nir"
)

type NoopPass struct{}

func (NoopPass) Name() string { return "noop" }

func (NoopPass) Run(g *nir.Graph) (*nir.Graph, error) { return g, nil }

// ValidatePass gates the pipeline on Graph.Validate.
type ValidatePass struct{}

func (ValidatePass) Name() string { return "validate" }

func (ValidatePass) Run(g *nir.Graph) (*nir.Graph, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// QuantizePass snaps every connection weight onto 2^Bits uniform levels
// spanning [-1, 1]. Weights outside that range are clamped first.
type QuantizePass struct {
	Bits uint32
}

func (QuantizePass) Name() string { return "quantize" }

func (p QuantizePass) Run(g *nir.Graph) (*nir.Graph, error) {
	for i := range g.Connections {
		g.Connections[i].Weight = QuantizeWeight(g.Connections[i].Weight, p.Bits)
	}
	return g, nil
}

func QuantizeWeight(w float64, bits uint32) float64 {
	steps := 1.0
	if bits >= 1 {
		steps = math.Exp2(float64(min(bits, 52))) - 1
	}
	if math.IsNaN(w) {
		w = 0
	}
	w = math.Max(-1, math.Min(1, w))
	step := 2 / steps
	return math.Round((w+1)/step)*step - 1
}
