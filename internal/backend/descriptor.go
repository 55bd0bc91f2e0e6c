package backend

import (
	"context"
	"fmt"

	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
)

const DescriptorName = "descriptor"

// DescriptorBackend emits compiled:<target>:<graph>.
type DescriptorBackend struct{}

func (DescriptorBackend) Name() string { return DescriptorName }

func (DescriptorBackend) Compile(_ context.Context, g *nir.Graph, m *hal.TargetManifest) (string, error) {
	if err := checkInputs(g, m); err != nil {
		return "", err
	}
	return fmt.Sprintf("compiled:%s:%s", m.Name, g.Name), nil
}
