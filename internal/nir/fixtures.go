package nir

import "fmt"

const fixtureModel = "LIF"

// Chain builds p0 -> p1 -> ... with one population per size.
func Chain(sizes ...uint32) *Graph {
	g := NewGraph("chain")
	for i, size := range sizes {
		g.Populations = append(g.Populations, Population{
			Name:  fmt.Sprintf("p%d", i),
			Size:  size,
			Model: fixtureModel,
		})
		if i > 0 {
			g.Connections = append(g.Connections, Connection{
				Pre:     fmt.Sprintf("p%d", i-1),
				Post:    fmt.Sprintf("p%d", i),
				Weight:  0.5,
				DelayMS: 1.0,
			})
		}
	}
	return g
}

// Star builds a center population projecting to spokes s0..s{n-1}.
func Star(centerSize, spokeSize uint32, spokes int, weight, delayMS float64) *Graph {
	g := NewGraph("star")
	g.Populations = append(g.Populations, Population{Name: "center", Size: centerSize, Model: fixtureModel})
	for i := 0; i < spokes; i++ {
		name := fmt.Sprintf("s%d", i)
		g.Populations = append(g.Populations, Population{Name: name, Size: spokeSize, Model: fixtureModel})
		g.Connections = append(g.Connections, Connection{
			Pre:     "center",
			Post:    name,
			Weight:  weight,
			DelayMS: delayMS,
		})
	}
	return g
}
