package nir

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidGraph = errors.New("invalid graph")

// ValidationError names the first structural problem found in a graph.
type ValidationError struct {
	Entity string
	Msg    string
}

func (e *ValidationError) Error() string {
	return "NIR validation error: " + e.Msg
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidGraph
}

func invalid(entity, format string, args ...any) error {
	return &ValidationError{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks structural integrity and stops at the first violation:
// unique non-empty population names with size > 0 and a model; connection
// endpoints that resolve, finite weights, finite non-negative delays; probes
// with a kind and a resolvable target.
func (g *Graph) Validate() error {
	names := make(map[string]struct{}, len(g.Populations))
	for _, p := range g.Populations {
		if strings.TrimSpace(p.Name) == "" {
			return invalid("", "population name cannot be empty")
		}
		if _, dup := names[p.Name]; dup {
			return invalid(p.Name, "duplicate population '%s'", p.Name)
		}
		names[p.Name] = struct{}{}
		if p.Size == 0 {
			return invalid(p.Name, "population '%s' has size 0", p.Name)
		}
		if strings.TrimSpace(p.Model) == "" {
			return invalid(p.Name, "population '%s' missing model", p.Name)
		}
	}

	for _, c := range g.Connections {
		if _, ok := names[c.Pre]; !ok {
			return invalid(c.Pre, "connection pre '%s' not found", c.Pre)
		}
		if _, ok := names[c.Post]; !ok {
			return invalid(c.Post, "connection post '%s' not found", c.Post)
		}
		edge := c.Pre + "->" + c.Post
		if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
			return invalid(edge, "connection %s has non-finite weight", edge)
		}
		if math.IsNaN(c.DelayMS) || math.IsInf(c.DelayMS, 0) || c.DelayMS < 0 {
			return invalid(edge, "connection %s has invalid delay_ms %v", edge, c.DelayMS)
		}
	}

	for _, pr := range g.Probes {
		if strings.TrimSpace(pr.Kind) == "" {
			return invalid(pr.Target, "probe kind cannot be empty")
		}
		if _, ok := names[pr.Target]; !ok {
			return invalid(pr.Target, "probe target '%s' not found among populations", pr.Target)
		}
	}
	return nil
}
