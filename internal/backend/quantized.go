package backend

import (
	"context"
	"encoding/json"
	"slices"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
	"neurocomp/internal/passes"
)

const (
	QuantizedJSONName = "quantized-json"

	// DefaultWeightBits applies when the manifest declares no precisions.
	DefaultWeightBits uint32 = 8
)

type QuantizedConnection struct {
	Pre     string  `json:"pre"`
	Post    string  `json:"post"`
	WeightQ float64 `json:"weight_q"`
	Bits    uint32  `json:"bits"`
}

type QuantizedArtifact struct {
	Target      string                `json:"target"`
	Graph       string                `json:"graph"`
	Connections []QuantizedConnection `json:"connections"`
}

// QuantizedJSONBackend quantizes every weight to the widest precision the
// target declares and returns the result as a JSON document.
type QuantizedJSONBackend struct{}

func (QuantizedJSONBackend) Name() string { return QuantizedJSONName }

func (QuantizedJSONBackend) Compile(_ context.Context, g *nir.Graph, m *hal.TargetManifest) (string, error) {
	if err := checkInputs(g, m); err != nil {
		return "", err
	}
	bits := WeightBits(m)
	out := QuantizedArtifact{
		Target:      m.Name,
		Graph:       g.Name,
		Connections: make([]QuantizedConnection, 0, len(g.Connections)),
	}
	for _, c := range g.Connections {
		out.Connections = append(out.Connections, QuantizedConnection{
			Pre:     c.Pre,
			Post:    c.Post,
			WeightQ: passes.QuantizeWeight(c.Weight, bits),
			Bits:    bits,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WeightBits is the widest declared weight precision, or DefaultWeightBits.
func WeightBits(m *hal.TargetManifest) uint32 {
	precisions := m.Caps().WeightPrecisions
	if len(precisions) == 0 {
		return DefaultWeightBits
	}
	return slices.Max(precisions)
}
