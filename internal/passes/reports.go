package passes

import (
	"fmt"

	"neurocomp/internal/nir"
)

// Attribute keys written by the mapping passes.
const (
	KeyPartition     = "partition"
	KeyPlacement     = "placement"
	KeyRouting       = "routing"
	KeyTiming        = "timing"
	KeyResourceCheck = "resource_check"
)

// Violation codes.
const (
	CodePopExceedsMaxNeuronsPerCore   = "POP_EXCEEDS_MAX_NEURONS_PER_CORE"
	CodeCoreMemoryExceeded            = "CORE_MEMORY_EXCEEDED"
	CodeMaxFanInExceeded              = "MAX_FAN_IN_EXCEEDED"
	CodeMaxFanOutExceeded             = "MAX_FAN_OUT_EXCEEDED"
	CodeCoreNeuronsExceeded           = "CORE_NEURONS_EXCEEDED"
	CodeCoreSynapsesExceeded          = "CORE_SYNAPSES_EXCEEDED"
	CodeInterconnectBandwidthExceeded = "INTERCONNECT_BANDWIDTH_EXCEEDED"
)

const (
	StatusOK         = "ok"
	StatusViolations = "violations"
	StatusCongested  = "congested"
)

// Violation records one capacity breach. Entity is a population name, a
// partition ("part:<index>") or "interconnect".
type Violation struct {
	Code     string  `json:"code"`
	Entity   string  `json:"entity"`
	Observed float64 `json:"observed"`
	Limit    float64 `json:"limit"`
}

func partEntity(part int) string {
	return fmt.Sprintf("part:%d", part)
}

type Assignment struct {
	Population string `json:"population"`
	Part       int    `json:"part"`
}

type PartitionReport struct {
	Parts      int          `json:"parts"`
	Strategy   string       `json:"strategy"`
	Assignment []Assignment `json:"assignment"`
	Violations []Violation  `json:"violations"`
}

// PartOf indexes the assignment by population name.
func (r PartitionReport) PartOf() map[string]int {
	out := make(map[string]int, len(r.Assignment))
	for _, a := range r.Assignment {
		out[a.Population] = a.Part
	}
	return out
}

type PlacementReport struct {
	Status           string      `json:"status"`
	Parts            int         `json:"parts"`
	NeuronsPerPart   []uint64    `json:"neurons_per_part"`
	SynapsesPerPart  []int       `json:"synapses_per_part"`
	MemoryKiBPerPart []float64   `json:"memory_kib_per_part"`
	Violations       []Violation `json:"violations"`
}

type RoutingReport struct {
	Status                 string      `json:"status"`
	Parts                  int         `json:"parts"`
	CrossEdges             int         `json:"cross_edges"`
	EstimatedBandwidthMbps float64     `json:"estimated_bandwidth_mbps"`
	TrafficMatrix          [][]int     `json:"traffic_matrix"`
	Violations             []Violation `json:"violations"`
}

type TimingReport struct {
	ResolutionNS uint64   `json:"resolution_ns"`
	MinTicks     uint64   `json:"min_ticks"`
	MaxTicks     uint64   `json:"max_ticks"`
	AvgTicks     float64  `json:"avg_ticks"`
	Ticks        []uint64 `json:"ticks"`
}

type FanEntry struct {
	Population string `json:"population"`
	Count      int    `json:"count"`
}

type ResourceReport struct {
	Legal           bool        `json:"legal"`
	Parts           int         `json:"parts"`
	NeuronsPerPart  []uint64    `json:"neurons_per_part"`
	SynapsesPerPart []int       `json:"synapses_per_part"`
	FanIn           []FanEntry  `json:"fan_in"`
	FanOut          []FanEntry  `json:"fan_out"`
	Violations      []Violation `json:"violations"`
}

func GetPartition(g *nir.Graph) (PartitionReport, bool, error) {
	return nir.DecodeAttr[PartitionReport](&g.Attributes, KeyPartition)
}

func GetPlacement(g *nir.Graph) (PlacementReport, bool, error) {
	return nir.DecodeAttr[PlacementReport](&g.Attributes, KeyPlacement)
}

func GetRouting(g *nir.Graph) (RoutingReport, bool, error) {
	return nir.DecodeAttr[RoutingReport](&g.Attributes, KeyRouting)
}

func GetTiming(g *nir.Graph) (TimingReport, bool, error) {
	return nir.DecodeAttr[TimingReport](&g.Attributes, KeyTiming)
}

func GetResourceCheck(g *nir.Graph) (ResourceReport, bool, error) {
	return nir.DecodeAttr[ResourceReport](&g.Attributes, KeyResourceCheck)
}

// partitionView resolves the partition count and population-to-part map that
// the downstream passes work from. Without a partition report every
// population sits in part 0 of a single partition.
func partitionView(g *nir.Graph) (int, map[string]int, error) {
	report, ok, err := GetPartition(g)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		partOf := make(map[string]int, len(g.Populations))
		for _, p := range g.Populations {
			partOf[p.Name] = 0
		}
		return 1, partOf, nil
	}
	parts := max(report.Parts, 1)
	partOf := report.PartOf()
	for _, p := range g.Populations {
		part, ok := partOf[p.Name]
		if !ok {
			partOf[p.Name] = 0
			continue
		}
		if part < 0 || part >= parts {
			return 0, nil, fmt.Errorf("partition report assigns %s to part %d of %d", p.Name, part, parts)
		}
	}
	return parts, partOf, nil
}

// partLoads counts units per part and connections whose endpoints share a
// part.
func partLoads(g *nir.Graph, parts int, partOf map[string]int) ([]uint64, []int) {
	neurons := make([]uint64, parts)
	synapses := make([]int, parts)
	for _, p := range g.Populations {
		neurons[partOf[p.Name]] += uint64(p.Size)
	}
	for _, c := range g.Connections {
		pre, post := partOf[c.Pre], partOf[c.Post]
		if pre == post {
			synapses[pre]++
		}
	}
	return neurons, synapses
}
