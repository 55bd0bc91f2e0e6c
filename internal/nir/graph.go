// Package nir defines the hardware-agnostic network graph that every mapping
// pass consumes: populations of units, directed connections between them,
// probes, and an ordered attribute side-table that passes use to hand
// metadata forward.
//
// A Graph is owned by exactly one pass at a time. Passes receive the pointer,
// may enrich its attributes, and hand it on; nothing in this package locks.
package nir

// Version is stamped into the nir_version attribute by EnsureVersionTag.
const Version = "0.0.1"

const versionAttr = "nir_version"

type Dialect string

const (
	DialectEvent    Dialect = "Event"
	DialectDataflow Dialect = "Dataflow"
	DialectHybrid   Dialect = "Hybrid"
)

type PlasticityKind string

const (
	PlasticitySTDP    PlasticityKind = "STDP"
	PlasticityHebbian PlasticityKind = "Hebbian"
	PlasticityCustom  PlasticityKind = "Custom"
)

type PlasticityRule struct {
	Kind   PlasticityKind `json:"kind" yaml:"kind"`
	Params any            `json:"params,omitempty" yaml:"params,omitempty"`
}

// Population is a named, homogeneous group of units. Params is opaque to the
// mapping core.
type Population struct {
	Name   string `json:"name" yaml:"name"`
	Size   uint32 `json:"size" yaml:"size"`
	Model  string `json:"model" yaml:"model"`
	Params any    `json:"params,omitempty" yaml:"params,omitempty"`
}

// Connection is a directed projection between two populations. Parallel
// connections between the same pair are allowed.
type Connection struct {
	Pre        string          `json:"pre" yaml:"pre"`
	Post       string          `json:"post" yaml:"post"`
	Weight     float64         `json:"weight" yaml:"weight"`
	DelayMS    float64         `json:"delay_ms" yaml:"delay_ms"`
	Plasticity *PlasticityRule `json:"plasticity,omitempty" yaml:"plasticity,omitempty"`
}

type Probe struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Target string `json:"target" yaml:"target"`
	Kind   string `json:"kind" yaml:"kind"`
}

type Graph struct {
	Name        string       `json:"name" yaml:"name"`
	Populations []Population `json:"populations" yaml:"populations"`
	Connections []Connection `json:"connections" yaml:"connections"`
	Probes      []Probe      `json:"probes" yaml:"probes"`
	Dialect     Dialect      `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Attributes  Attributes   `json:"attributes" yaml:"attributes"`
}

func NewGraph(name string) *Graph {
	return &Graph{
		Name:        name,
		Populations: []Population{},
		Connections: []Connection{},
		Probes:      []Probe{},
	}
}

// TotalUnits sums population sizes.
func (g *Graph) TotalUnits() uint64 {
	var total uint64
	for _, p := range g.Populations {
		total += uint64(p.Size)
	}
	return total
}

func (g *Graph) Population(name string) (Population, bool) {
	for _, p := range g.Populations {
		if p.Name == name {
			return p, true
		}
	}
	return Population{}, false
}

// EnsureVersionTag inserts the nir_version attribute when it is absent.
func (g *Graph) EnsureVersionTag() {
	if !g.Attributes.Has(versionAttr) {
		g.Attributes.Set(versionAttr, Version)
	}
}

// Clone returns a deep copy. Attribute values come back in their generic
// decoded form.
func (g *Graph) Clone() (*Graph, error) {
	data, err := g.ToJSON()
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}

// normalized returns a shallow copy whose nil slices are replaced by empty
// ones so every encoding emits lists rather than nulls.
func (g *Graph) normalized() *Graph {
	out := *g
	if out.Populations == nil {
		out.Populations = []Population{}
	}
	if out.Connections == nil {
		out.Connections = []Connection{}
	}
	if out.Probes == nil {
		out.Probes = []Probe{}
	}
	return &out
}
