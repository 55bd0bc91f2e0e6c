package passes

import (
	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
)

// Traffic defaults used when the manifest is silent.
const (
	DefaultBytesPerEvent = 4
	DefaultSpikeRateHz   = 10.0
	InterconnectEntity   = "interconnect"
)

// RoutingPass builds the part-to-part traffic matrix of connection counts and
// estimates interconnect bandwidth as
// cross_edges * spike_rate_hz * bytes_per_event * 8 / 1e6 Mbit/s.
// The status is congested only when a bandwidth cap is declared and exceeded.
type RoutingPass struct {
	Manifest *hal.TargetManifest
}

func (RoutingPass) Name() string { return "routing" }

func (p RoutingPass) Run(g *nir.Graph) (*nir.Graph, error) {
	parts, partOf, err := partitionView(g)
	if err != nil {
		return nil, err
	}
	caps := p.Manifest.Caps()

	matrix := make([][]int, parts)
	for i := range matrix {
		matrix[i] = make([]int, parts)
	}
	cross := 0
	for _, c := range g.Connections {
		pre, post := partOf[c.Pre], partOf[c.Post]
		if pre != post {
			matrix[pre][post]++
			cross++
		}
	}

	bytesPerEvent := float64(DefaultBytesPerEvent)
	if caps.BytesPerEvent != nil {
		bytesPerEvent = float64(*caps.BytesPerEvent)
	}
	rate := DefaultSpikeRateHz
	if caps.DefaultSpikeRateHz != nil {
		rate = *caps.DefaultSpikeRateHz
	}
	bandwidth := float64(cross) * rate * bytesPerEvent * 8 / 1_000_000

	status := StatusOK
	violations := []Violation{}
	if caps.InterconnectBandwidthMbps != nil && bandwidth > float64(*caps.InterconnectBandwidthMbps) {
		status = StatusCongested
		violations = append(violations, Violation{
			Code:     CodeInterconnectBandwidthExceeded,
			Entity:   InterconnectEntity,
			Observed: bandwidth,
			Limit:    float64(*caps.InterconnectBandwidthMbps),
		})
	}
	g.Attributes.Set(KeyRouting, RoutingReport{
		Status:                 status,
		Parts:                  parts,
		CrossEdges:             cross,
		EstimatedBandwidthMbps: bandwidth,
		TrafficMatrix:          matrix,
		Violations:             violations,
	})
	return g, nil
}
