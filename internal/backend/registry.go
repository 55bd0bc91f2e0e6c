package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"neurocomp/internal/hal"
)

var (
	ErrBackendExists   = errors.New("backend already registered")
	ErrBackendNotFound = errors.New("backend not found")
)

var backendRegistry = struct {
	mu sync.RWMutex
	m  map[string]Backend
	// byTarget maps a manifest name to a backend name.
	byTarget map[string]string
}{
	m:        make(map[string]Backend),
	byTarget: make(map[string]string),
}

func init() {
	initializeBuiltInBackends()
}

func initializeBuiltInBackends() {
	MustRegister(DescriptorBackend{})
	MustRegister(QuantizedJSONBackend{})
	for _, target := range []string{"dynaps", "memxbar"} {
		if err := Bind(target, QuantizedJSONName); err != nil {
			panic(err)
		}
	}
}

func Register(b Backend) error {
	if b == nil {
		return errors.New("backend is required")
	}
	name := b.Name()
	if name == "" {
		return errors.New("backend name is required")
	}

	backendRegistry.mu.Lock()
	defer backendRegistry.mu.Unlock()

	if _, exists := backendRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrBackendExists, name)
	}
	backendRegistry.m[name] = b
	return nil
}

func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// Bind routes compilations for the named target to a registered backend.
func Bind(target, backendName string) error {
	backendRegistry.mu.Lock()
	defer backendRegistry.mu.Unlock()

	if _, ok := backendRegistry.m[backendName]; !ok {
		return fmt.Errorf("%w: %s", ErrBackendNotFound, backendName)
	}
	backendRegistry.byTarget[target] = backendName
	return nil
}

func Get(name string) (Backend, error) {
	backendRegistry.mu.RLock()
	b, ok := backendRegistry.m[name]
	backendRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return b, nil
}

// ForTarget returns the backend bound to the manifest's name, falling back to
// the descriptor backend.
func ForTarget(m *hal.TargetManifest) Backend {
	backendRegistry.mu.RLock()
	defer backendRegistry.mu.RUnlock()

	if m != nil {
		if name, ok := backendRegistry.byTarget[m.Name]; ok {
			if b, ok := backendRegistry.m[name]; ok {
				return b
			}
		}
	}
	return backendRegistry.m[DescriptorName]
}

func List() []string {
	backendRegistry.mu.RLock()
	defer backendRegistry.mu.RUnlock()

	names := make([]string, 0, len(backendRegistry.m))
	for name := range backendRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetRegistryForTests() {
	backendRegistry.mu.Lock()
	backendRegistry.m = make(map[string]Backend)
	backendRegistry.byTarget = make(map[string]string)
	backendRegistry.mu.Unlock()
	initializeBuiltInBackends()
}
