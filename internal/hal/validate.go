package hal

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

var ErrInvalidManifest = errors.New("invalid manifest")

type ManifestError struct {
	Field string
	Msg   string
}

func (e *ManifestError) Error() string {
	return "invalid manifest field " + e.Field + ": " + e.Msg
}

func (e *ManifestError) Unwrap() error {
	return ErrInvalidManifest
}

func fieldErr(field, format string, args ...any) error {
	return &ManifestError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func isPow2(v uint32) bool {
	return v > 0 && bits.OnesCount32(v) == 1
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

// ValidateManifest checks each present capability against its domain rule and
// applies the CPU-family cross-field rules. The first failing rule is
// returned.
func ValidateManifest(m *TargetManifest) error {
	if m == nil {
		return fieldErr("manifest", "manifest is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return fieldErr("name", "manifest.name must be non-empty")
	}
	if strings.TrimSpace(m.Vendor) == "" {
		return fieldErr("vendor", "manifest.vendor must be non-empty")
	}
	c := m.Capabilities
	if c == nil {
		return nil
	}

	for _, p := range c.WeightPrecisions {
		if p == 0 {
			return fieldErr("capabilities.weight_precisions", "capabilities.weight_precisions entries must be > 0")
		}
	}

	positiveU32 := []struct {
		name  string
		value *uint32
	}{
		{"max_neurons_per_core", c.MaxNeuronsPerCore},
		{"max_synapses_per_core", c.MaxSynapsesPerCore},
		{"max_fan_in", c.MaxFanIn},
		{"max_fan_out", c.MaxFanOut},
		{"core_memory_kib", c.CoreMemoryKiB},
		{"interconnect_bandwidth_mbps", c.InterconnectBandwidthMbps},
		{"bytes_per_event", c.BytesPerEvent},
	}
	for _, f := range positiveU32 {
		if f.value != nil && *f.value == 0 {
			return fieldErr("capabilities."+f.name, "capabilities.%s must be > 0", f.name)
		}
	}
	if c.TimeResolutionNS != nil && *c.TimeResolutionNS == 0 {
		return fieldErr("capabilities.time_resolution_ns", "capabilities.time_resolution_ns must be > 0")
	}

	positiveF64 := []struct {
		name  string
		value *float64
	}{
		{"neuron_mem_kib_per", c.NeuronMemKiBPer},
		{"syn_mem_kib_per", c.SynMemKiBPer},
		{"default_spike_rate_hz", c.DefaultSpikeRateHz},
	}
	for _, f := range positiveF64 {
		// NaN fails the > 0 comparison as well.
		if f.value != nil && !(*f.value > 0) {
			return fieldErr("capabilities."+f.name, "capabilities.%s must be > 0", f.name)
		}
		if f.value != nil && math.IsInf(*f.value, 1) {
			return fieldErr("capabilities."+f.name, "capabilities.%s must be finite", f.name)
		}
	}

	if err := validateVector(c); err != nil {
		return err
	}
	if err := validateMMIO(c); err != nil {
		return err
	}
	if err := validateLayout(c); err != nil {
		return err
	}
	return validateRISCV(c)
}

func validateVector(c *Capabilities) error {
	if isTrue(c.HasVector) && (c.VLenBitsMax == nil || *c.VLenBitsMax == 0) {
		return fieldErr("capabilities.vlen_bits_max", "capabilities.vlen_bits_max must be > 0 when has_vector = true")
	}
	if c.ZvlBitsMin != nil && c.VLenBitsMax != nil {
		zvl, vmax := *c.ZvlBitsMin, *c.VLenBitsMax
		if zvl == 0 {
			return fieldErr("capabilities.zvl_bits_min", "capabilities.zvl_bits_min must be > 0 when provided")
		}
		if zvl > vmax {
			return fieldErr("capabilities.zvl_bits_min", "capabilities.zvl_bits_min must be <= vlen_bits_max when both present")
		}
		if zvl%8 != 0 || vmax%8 != 0 {
			return fieldErr("capabilities.zvl_bits_min", "capabilities.zvl_bits_min and vlen_bits_max must be multiples of 8 when both present")
		}
	}
	return nil
}

func validateMMIO(c *Capabilities) error {
	if isTrue(c.MMIOSupported) {
		if c.MMIOBaseAddr == nil || *c.MMIOBaseAddr == 0 {
			return fieldErr("capabilities.mmio_base_addr", "capabilities.mmio_base_addr must be > 0 when mmio_supported = true")
		}
		if c.MMIOWidthBits == nil || (*c.MMIOWidthBits != 32 && *c.MMIOWidthBits != 64) {
			return fieldErr("capabilities.mmio_width_bits", "capabilities.mmio_width_bits must be 32 or 64 when mmio_supported = true")
		}
	}
	if isTrue(c.DMASupported) && (c.DMAAlignment == nil || !isPow2(*c.DMAAlignment)) {
		return fieldErr("capabilities.dma_alignment", "capabilities.dma_alignment must be power-of-two > 0 when dma_supported = true")
	}
	return nil
}

func validateLayout(c *Capabilities) error {
	if c.Endianness != nil {
		e := strings.ToLower(*c.Endianness)
		if e != "little" && e != "big" {
			return fieldErr("capabilities.endianness", "capabilities.endianness must be 'little' or 'big'")
		}
	}
	if c.CachelineBytes != nil && !isPow2(*c.CachelineBytes) {
		return fieldErr("capabilities.cacheline_bytes", "capabilities.cacheline_bytes must be a power-of-two > 0")
	}
	if c.PageSizeBytes != nil && !isPow2(*c.PageSizeBytes) {
		return fieldErr("capabilities.page_size_bytes", "capabilities.page_size_bytes must be a power-of-two > 0")
	}
	if c.CodeModel != nil {
		switch *c.CodeModel {
		case "medlow", "medany", "small":
		default:
			return fieldErr("capabilities.code_model", "capabilities.code_model must be one of: medlow|medany|small")
		}
	}
	return nil
}

// validateRISCV checks ABI and vector consistency against the declared ISA
// string. Manifests of a RISC-V family without an isa have nothing to check.
func validateRISCV(c *Capabilities) error {
	if c.ISA == nil {
		return nil
	}
	isa := strings.ToLower(*c.ISA)
	if c.ABI != nil {
		abi := strings.ToLower(*c.ABI)
		if strings.HasPrefix(isa, "rv32") && !strings.HasPrefix(abi, "ilp32") {
			return fieldErr("capabilities.abi", "capabilities.abi should start_with 'ilp32' for 32-bit RISC-V isa")
		}
		if strings.HasPrefix(isa, "rv64") && !strings.HasPrefix(abi, "lp64") {
			return fieldErr("capabilities.abi", "capabilities.abi should start_with 'lp64' for 64-bit RISC-V isa")
		}
	}
	if isTrue(c.HasVector) && !strings.Contains(isaExtensions(isa), "v") {
		return fieldErr("capabilities.has_vector", "capabilities.has_vector = true but isa does not contain 'v'")
	}
	return nil
}

// isaExtensions strips the rvNN base prefix so the "v" in "rv" is not
// mistaken for the vector extension.
func isaExtensions(isa string) string {
	for _, prefix := range []string{"rv128", "rv64", "rv32"} {
		if strings.HasPrefix(isa, prefix) {
			return isa[len(prefix):]
		}
	}
	return isa
}
