// Package metrics computes population-level structural metrics over a graph.
// Nodes are populations and edges are connections.
package metrics

import "neurocomp/internal/nir"

type GraphMetrics struct {
	NodeCount int     `json:"node_count"`
	EdgeCount int     `json:"edge_count"`
	AvgFanIn  float64 `json:"avg_fan_in"`
	AvgFanOut float64 `json:"avg_fan_out"`
	MaxFanIn  int     `json:"max_fan_in"`
	MaxFanOut int     `json:"max_fan_out"`
}

// FanCounts returns per-population fan-in and fan-out. Every population is
// present in both maps, including those with no connections. Endpoints that
// name no population are ignored.
func FanCounts(g *nir.Graph) (fanIn, fanOut map[string]int) {
	fanIn = make(map[string]int, len(g.Populations))
	fanOut = make(map[string]int, len(g.Populations))
	for _, p := range g.Populations {
		fanIn[p.Name] = 0
		fanOut[p.Name] = 0
	}
	for _, c := range g.Connections {
		if _, ok := fanOut[c.Pre]; ok {
			fanOut[c.Pre]++
		}
		if _, ok := fanIn[c.Post]; ok {
			fanIn[c.Post]++
		}
	}
	return fanIn, fanOut
}

func Compute(g *nir.Graph) GraphMetrics {
	fanIn, fanOut := FanCounts(g)
	m := GraphMetrics{
		NodeCount: len(g.Populations),
		EdgeCount: len(g.Connections),
	}
	var sumIn, sumOut int
	for _, p := range g.Populations {
		fi, fo := fanIn[p.Name], fanOut[p.Name]
		sumIn += fi
		sumOut += fo
		m.MaxFanIn = max(m.MaxFanIn, fi)
		m.MaxFanOut = max(m.MaxFanOut, fo)
	}
	denom := float64(max(m.NodeCount, 1))
	m.AvgFanIn = float64(sumIn) / denom
	m.AvgFanOut = float64(sumOut) / denom
	return m
}
