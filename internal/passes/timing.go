package passes

import (
	"math"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
)

const DefaultTimeResolutionNS uint64 = 1_000_000

// TimingPass converts each connection delay to target ticks,
// ceil(delay_ns / resolution_ns), and reports min/max/mean over all
// connections. Delays are rounded to whole nanoseconds before dividing.
type TimingPass struct {
	Manifest *hal.TargetManifest
}

func (TimingPass) Name() string { return "timing" }

func (p TimingPass) Run(g *nir.Graph) (*nir.Graph, error) {
	resolution := DefaultTimeResolutionNS
	if r := p.Manifest.Caps().TimeResolutionNS; r != nil && *r > 0 {
		resolution = *r
	}

	report := TimingReport{ResolutionNS: resolution, Ticks: make([]uint64, 0, len(g.Connections))}
	var sum float64
	for i, c := range g.Connections {
		ticks := DelayTicks(c.DelayMS, resolution)
		report.Ticks = append(report.Ticks, ticks)
		sum += float64(ticks)
		if i == 0 || ticks < report.MinTicks {
			report.MinTicks = ticks
		}
		if ticks > report.MaxTicks {
			report.MaxTicks = ticks
		}
	}
	if n := len(g.Connections); n > 0 {
		report.AvgTicks = sum / float64(n)
	}
	g.Attributes.Set(KeyTiming, report)
	return g, nil
}

// DelayTicks expects a finite, non-negative delay; negative input yields 0.
// Tick counts beyond uint64 saturate at math.MaxUint64.
func DelayTicks(delayMS float64, resolutionNS uint64) uint64 {
	delayNS := math.Round(delayMS * 1e6)
	if !(delayNS > 0) || resolutionNS == 0 {
		return 0
	}
	ticks := math.Ceil(delayNS / float64(resolutionNS))
	if ticks >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(ticks)
}
