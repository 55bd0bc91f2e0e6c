// Package adaptive turns a compile's legality reports and a runtime resource
// snapshot into an adaptation decision, and applies each decision at most
// once per idempotency key.
package adaptive

import (
	"slices"

	"neurocomp/internal/passes"
)

type ResourceSnapshot struct {
	UtilizationPct     float64 `json:"utilization_pct"`
	BufferOccupancyPct float64 `json:"buffer_occupancy_pct"`
}

type Decision string

const (
	NoChange    Decision = "no-change"
	Repartition Decision = "repartition"
	Reschedule  Decision = "reschedule"
	Throttle    Decision = "throttle"
)

// Input is what a policy decides on. Any report may be nil.
type Input struct {
	Partition *passes.PartitionReport
	Placement *passes.PlacementReport
	Resource  *passes.ResourceReport
	Routing   *passes.RoutingReport
	Snapshot  ResourceSnapshot
}

// capacityViolations lists the violations of every report present that a
// repartition can address: partition, placement memory and resource counts.
func (in Input) capacityViolations() []passes.Violation {
	var out []passes.Violation
	if in.Partition != nil {
		out = append(out, in.Partition.Violations...)
	}
	if in.Placement != nil {
		out = append(out, in.Placement.Violations...)
	}
	if in.Resource != nil {
		out = append(out, in.Resource.Violations...)
	}
	return slices.DeleteFunc(out, func(v passes.Violation) bool {
		return !slices.Contains(capacityCodes, v.Code)
	})
}

type Policy interface {
	Name() string
	Decide(in Input) Decision
}

type NoOpPolicy struct{}

func (NoOpPolicy) Name() string { return "noop-policy" }

func (NoOpPolicy) Decide(Input) Decision { return NoChange }

const (
	DefaultThrottleUtilizationPct = 90.0
	DefaultRescheduleBufferPct    = 80.0
)

// LegalityPolicy repartitions when a part is over capacity, reschedules when
// the interconnect is congested or buffers fill up, and throttles when
// utilization crosses ThrottleUtilizationPct. Fan violations are structural
// and produce no decision on their own.
type LegalityPolicy struct {
	ThrottleUtilizationPct float64
	RescheduleBufferPct    float64
}

func (LegalityPolicy) Name() string { return "legality-policy" }

var capacityCodes = []string{
	passes.CodePopExceedsMaxNeuronsPerCore,
	passes.CodeCoreNeuronsExceeded,
	passes.CodeCoreSynapsesExceeded,
	passes.CodeCoreMemoryExceeded,
}

func (p LegalityPolicy) Decide(in Input) Decision {
	if len(in.capacityViolations()) > 0 {
		return Repartition
	}
	if in.Routing != nil && in.Routing.Status == passes.StatusCongested {
		return Reschedule
	}

	throttleAt := p.ThrottleUtilizationPct
	if throttleAt <= 0 {
		throttleAt = DefaultThrottleUtilizationPct
	}
	rescheduleAt := p.RescheduleBufferPct
	if rescheduleAt <= 0 {
		rescheduleAt = DefaultRescheduleBufferPct
	}
	switch {
	case in.Snapshot.UtilizationPct >= throttleAt:
		return Throttle
	case in.Snapshot.BufferOccupancyPct >= rescheduleAt:
		return Reschedule
	default:
		return NoChange
	}
}
