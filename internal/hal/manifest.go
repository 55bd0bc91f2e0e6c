// Package hal describes hardware targets: a named, versioned manifest with an
// optional capability block of numeric and structural limits. Manifests are
// parsed from TOML once per compilation and treated as read-only afterwards,
// so a single manifest may be shared by concurrent compilations.
package hal

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed targets/*.toml
var builtinFS embed.FS

var ErrUnknownTarget = errors.New("unknown builtin target")

type Capabilities struct {
	OnChipLearning     *bool    `toml:"on_chip_learning" json:"on_chip_learning,omitempty"`
	WeightPrecisions   []uint32 `toml:"weight_precisions" json:"weight_precisions,omitempty"`
	MaxNeuronsPerCore  *uint32  `toml:"max_neurons_per_core" json:"max_neurons_per_core,omitempty"`
	MaxSynapsesPerCore *uint32  `toml:"max_synapses_per_core" json:"max_synapses_per_core,omitempty"`
	TimeResolutionNS   *uint64  `toml:"time_resolution_ns" json:"time_resolution_ns,omitempty"`

	SupportsSparse            *bool    `toml:"supports_sparse" json:"supports_sparse,omitempty"`
	NeuronModels              []string `toml:"neuron_models" json:"neuron_models,omitempty"`
	MaxFanIn                  *uint32  `toml:"max_fan_in" json:"max_fan_in,omitempty"`
	MaxFanOut                 *uint32  `toml:"max_fan_out" json:"max_fan_out,omitempty"`
	CoreMemoryKiB             *uint32  `toml:"core_memory_kib" json:"core_memory_kib,omitempty"`
	InterconnectBandwidthMbps *uint32  `toml:"interconnect_bandwidth_mbps" json:"interconnect_bandwidth_mbps,omitempty"`
	Analog                    *bool    `toml:"analog" json:"analog,omitempty"`
	OnChipPlasticityRules     []string `toml:"on_chip_plasticity_rules" json:"on_chip_plasticity_rules,omitempty"`

	// Resource and traffic modeling used by the mapping passes.
	NeuronMemKiBPer    *float64 `toml:"neuron_mem_kib_per" json:"neuron_mem_kib_per,omitempty"`
	SynMemKiBPer       *float64 `toml:"syn_mem_kib_per" json:"syn_mem_kib_per,omitempty"`
	BytesPerEvent      *uint32  `toml:"bytes_per_event" json:"bytes_per_event,omitempty"`
	DefaultSpikeRateHz *float64 `toml:"default_spike_rate_hz" json:"default_spike_rate_hz,omitempty"`

	// CPU / RISC-V descriptors.
	ISA            *string  `toml:"isa" json:"isa,omitempty"`
	ABI            *string  `toml:"abi" json:"abi,omitempty"`
	HasA           *bool    `toml:"has_a" json:"has_a,omitempty"`
	HasC           *bool    `toml:"has_c" json:"has_c,omitempty"`
	HasF           *bool    `toml:"has_f" json:"has_f,omitempty"`
	HasD           *bool    `toml:"has_d" json:"has_d,omitempty"`
	HasB           *bool    `toml:"has_b" json:"has_b,omitempty"`
	HasP           *bool    `toml:"has_p" json:"has_p,omitempty"`
	HasVector      *bool    `toml:"has_vector" json:"has_vector,omitempty"`
	VLenBitsMax    *uint32  `toml:"vlen_bits_max" json:"vlen_bits_max,omitempty"`
	ZvlBitsMin     *uint32  `toml:"zvl_bits_min" json:"zvl_bits_min,omitempty"`
	VLenIsDynamic  *bool    `toml:"vlen_is_dynamic" json:"vlen_is_dynamic,omitempty"`
	HasZicntr      *bool    `toml:"has_zicntr" json:"has_zicntr,omitempty"`
	HasZihpm       *bool    `toml:"has_zihpm" json:"has_zihpm,omitempty"`
	Extensions     []string `toml:"extensions" json:"extensions,omitempty"`
	Endianness     *string  `toml:"endianness" json:"endianness,omitempty"`
	CachelineBytes *uint32  `toml:"cacheline_bytes" json:"cacheline_bytes,omitempty"`
	ICacheKiB      *uint32  `toml:"icache_kib" json:"icache_kib,omitempty"`
	DCacheKiB      *uint32  `toml:"dcache_kib" json:"dcache_kib,omitempty"`
	L2KiB          *uint32  `toml:"l2_kib" json:"l2_kib,omitempty"`
	PageSizeBytes  *uint32  `toml:"page_size_bytes" json:"page_size_bytes,omitempty"`
	CodeModel      *string  `toml:"code_model" json:"code_model,omitempty"`

	MMIOSupported *bool   `toml:"mmio_supported" json:"mmio_supported,omitempty"`
	MMIOBaseAddr  *uint64 `toml:"mmio_base_addr" json:"mmio_base_addr,omitempty"`
	MMIOWidthBits *uint32 `toml:"mmio_width_bits" json:"mmio_width_bits,omitempty"`
	DMASupported  *bool   `toml:"dma_supported" json:"dma_supported,omitempty"`
	DMAAlignment  *uint32 `toml:"dma_alignment" json:"dma_alignment,omitempty"`

	// Profile is free form: linux_user, bare_metal, control_plane.
	Profile *string `toml:"profile" json:"profile,omitempty"`
}

type TargetManifest struct {
	Name         string        `toml:"name" json:"name"`
	Vendor       string        `toml:"vendor" json:"vendor"`
	Family       string        `toml:"family" json:"family"`
	Version      string        `toml:"version" json:"version"`
	Notes        string        `toml:"notes" json:"notes,omitempty"`
	Capabilities *Capabilities `toml:"capabilities" json:"capabilities,omitempty"`
}

// Caps never returns nil; a manifest without a capability block reads as one
// whose fields are all absent.
func (m *TargetManifest) Caps() *Capabilities {
	if m == nil || m.Capabilities == nil {
		return &Capabilities{}
	}
	return m.Capabilities
}

func ParseManifest(data []byte) (*TargetManifest, error) {
	var m TargetManifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func ParseManifestFile(path string) (*TargetManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

type LoadedManifest struct {
	Path     string
	Manifest *TargetManifest
}

// LoadManifestsDir parses every *.toml file directly under dir, sorted by path.
func LoadManifestsDir(dir string) ([]LoadedManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []LoadedManifest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		m, err := ParseManifestFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, LoadedManifest{Path: path, Manifest: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// BuiltinTargets lists the names of the embedded target manifests.
func BuiltinTargets() []string {
	entries, err := builtinFS.ReadDir("targets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
	}
	sort.Strings(names)
	return names
}

func LoadBuiltin(name string) (*TargetManifest, error) {
	data, err := builtinFS.ReadFile("targets/" + name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	return ParseManifest(data)
}

// Resolve loads an explicit manifest path when given, otherwise the named
// builtin target.
func Resolve(path, target string) (*TargetManifest, error) {
	switch {
	case path != "":
		return ParseManifestFile(path)
	case target != "":
		return LoadBuiltin(target)
	default:
		return nil, errors.New("manifest path or target name is required")
	}
}
