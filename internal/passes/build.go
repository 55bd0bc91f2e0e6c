package passes

import (
	"errors"
	"fmt"
	"strings"

	"neurocomp/internal/hal"
	"neurocomp/internal/telemetry"
)

var ErrUnknownPass = errors.New("unknown pass")

// DefaultPipeline is the full mapping pipeline behind the validation gate.
var DefaultPipeline = []string{"validate", "partition", "placement", "routing", "timing", "resource-check"}

type Options struct {
	// Manifest may be nil; capability-aware passes then treat every limit as
	// absent.
	Manifest *hal.TargetManifest
	Strategy string
	Seed     uint64
	Observer telemetry.Observer
}

// Build constructs a Manager from pass names, in order.
func Build(names []string, opts Options) (*Manager, error) {
	var targets []string
	if opts.Manifest != nil {
		targets = []string{opts.Manifest.Name}
	}
	strategy, err := NewStrategy(opts.Strategy, opts.Seed, targets)
	if err != nil {
		return nil, err
	}

	m := NewManager()
	m.SetObserver(opts.Observer)
	for _, name := range names {
		p, err := newPass(strings.TrimSpace(name), opts.Manifest, strategy)
		if err != nil {
			return nil, err
		}
		m.Add(p)
	}
	return m, nil
}

func newPass(name string, manifest *hal.TargetManifest, strategy PartitionStrategy) (Pass, error) {
	switch name {
	case "noop", "no-op":
		return NoopPass{}, nil
	case "validate":
		return ValidatePass{}, nil
	case "quantize4":
		return QuantizePass{Bits: 4}, nil
	case "quantize8":
		return QuantizePass{Bits: 8}, nil
	case "quantize16":
		return QuantizePass{Bits: 16}, nil
	case "partition":
		return PartitionPass{Manifest: manifest, Strategy: strategy}, nil
	case "placement":
		return PlacementPass{Manifest: manifest}, nil
	case "routing":
		return RoutingPass{Manifest: manifest}, nil
	case "timing":
		return TimingPass{Manifest: manifest}, nil
	case "resource-check", "resource_check":
		return ResourceCheckPass{Manifest: manifest}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPass, name)
	}
}
