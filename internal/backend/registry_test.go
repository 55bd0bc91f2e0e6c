package backend

import (
	"context"
	"errors"
	"testing"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
)

type fixedBackend struct{ name string }

func (f fixedBackend) Name() string { return f.name }

func (f fixedBackend) Compile(context.Context, *nir.Graph, *hal.TargetManifest) (string, error) {
	return "fixed", nil
}

func TestBuiltinBackends(t *testing.T) {
	resetRegistryForTests()
	t.Cleanup(resetRegistryForTests)

	names := List()
	if len(names) != 2 || names[0] != DescriptorName || names[1] != QuantizedJSONName {
		t.Fatalf("unexpected builtin backends: %v", names)
	}
	if _, err := Get("missing"); !errors.Is(err, ErrBackendNotFound) {
		t.Fatalf("expected ErrBackendNotFound, got %v", err)
	}
}

func TestRegisterDuplicateAndValidation(t *testing.T) {
	resetRegistryForTests()
	t.Cleanup(resetRegistryForTests)

	if err := Register(fixedBackend{name: DescriptorName}); !errors.Is(err, ErrBackendExists) {
		t.Fatalf("expected ErrBackendExists, got %v", err)
	}
	if err := Register(fixedBackend{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := Register(nil); err == nil {
		t.Fatal("expected nil backend error")
	}
}

func TestForTarget(t *testing.T) {
	resetRegistryForTests()
	t.Cleanup(resetRegistryForTests)

	if got := ForTarget(&hal.TargetManifest{Name: "dynaps"}).Name(); got != QuantizedJSONName {
		t.Fatalf("dynaps backend = %s", got)
	}
	if got := ForTarget(&hal.TargetManifest{Name: "loihi2"}).Name(); got != DescriptorName {
		t.Fatalf("loihi2 backend = %s", got)
	}
	if got := ForTarget(nil).Name(); got != DescriptorName {
		t.Fatalf("nil manifest backend = %s", got)
	}

	if err := Register(fixedBackend{name: "fixed"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Bind("loihi2", "fixed"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := ForTarget(&hal.TargetManifest{Name: "loihi2"}).Name(); got != "fixed" {
		t.Fatalf("bound backend = %s", got)
	}
	if err := Bind("loihi2", "missing"); !errors.Is(err, ErrBackendNotFound) {
		t.Fatalf("expected ErrBackendNotFound, got %v", err)
	}
}
