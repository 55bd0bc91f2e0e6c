// Package config loads compile pipeline definitions from HCL files.
//
//	pipeline "default" {
//	  passes       = ["validate", "partition", "placement", "routing", "timing", "resource-check"]
//	  dump_dir     = "dumps/${target}"
//	  dump_formats = ["json", "yaml"]
//	  strategy     = "capacity"
//	  seed         = 0
//	}
//
// Expressions may reference the variables target and graph.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"neurocomp/internal/nir"
	"neurocomp/internal/passes"
)

const DefaultPipelineName = "default"

var ErrPipelineNotFound = errors.New("pipeline not found")

// Vars are exposed to pipeline expressions.
type Vars struct {
	Target string
	Graph  string
}

func (v Vars) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"target": cty.StringVal(v.Target),
			"graph":  cty.StringVal(v.Graph),
		},
	}
}

type Pipeline struct {
	Name        string
	Passes      []string
	DumpDir     string
	DumpFormats []nir.Format
	Strategy    string
	Seed        uint64
}

// Default is the full mapping pipeline with JSON dumps and the capacity
// partitioner.
func Default() Pipeline {
	return Pipeline{
		Name:        DefaultPipelineName,
		Passes:      append([]string(nil), passes.DefaultPipeline...),
		DumpFormats: []nir.Format{nir.FormatJSON},
		Strategy:    "capacity",
	}
}

func (p Pipeline) DumpConfig() passes.PipelineConfig {
	return passes.PipelineConfig{DumpDir: p.DumpDir, DumpFormats: append([]nir.Format(nil), p.DumpFormats...)}
}

// Validate checks pass and strategy names by building the pipeline without a
// manifest.
func (p Pipeline) Validate() error {
	if _, err := passes.Build(p.Passes, passes.Options{Strategy: p.Strategy}); err != nil {
		return fmt.Errorf("pipeline %q: %w", p.Name, err)
	}
	return nil
}

type fileRoot struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type pipelineBlock struct {
	Name        string   `hcl:"name,label"`
	Passes      []string `hcl:"passes,optional"`
	DumpDir     *string  `hcl:"dump_dir,optional"`
	DumpFormats []string `hcl:"dump_formats,optional"`
	Strategy    *string  `hcl:"strategy,optional"`
	Seed        *uint64  `hcl:"seed,optional"`
}

// Parse decodes every pipeline block in src, sorted by name. Unset fields
// take their value from Default.
func Parse(src []byte, filename string, vars Vars) ([]Pipeline, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, vars.evalContext(), &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	seen := map[string]bool{}
	out := make([]Pipeline, 0, len(root.Pipelines))
	for _, block := range root.Pipelines {
		if seen[block.Name] {
			return nil, fmt.Errorf("%s: duplicate pipeline %q", filename, block.Name)
		}
		seen[block.Name] = true

		p, err := block.translate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *pipelineBlock) translate() (Pipeline, error) {
	p := Default()
	p.Name = b.Name
	if len(b.Passes) > 0 {
		p.Passes = b.Passes
	}
	if b.DumpDir != nil {
		p.DumpDir = *b.DumpDir
	}
	if len(b.DumpFormats) > 0 {
		p.DumpFormats = p.DumpFormats[:0]
		for _, raw := range b.DumpFormats {
			f, err := nir.ParseFormat(raw)
			if err != nil {
				return Pipeline{}, fmt.Errorf("pipeline %q: %w", b.Name, err)
			}
			p.DumpFormats = append(p.DumpFormats, f)
		}
	}
	if b.Strategy != nil {
		p.Strategy = *b.Strategy
	}
	if b.Seed != nil {
		p.Seed = *b.Seed
	}
	return p, nil
}

func LoadFile(path string, vars Vars) ([]Pipeline, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(src, path, vars)
}

// Select picks the named pipeline. An empty name selects "default", or the
// only pipeline when there is exactly one.
func Select(pipelines []Pipeline, name string) (Pipeline, error) {
	if name == "" {
		if len(pipelines) == 1 {
			return pipelines[0], nil
		}
		name = DefaultPipelineName
	}
	for _, p := range pipelines {
		if p.Name == name {
			return p, nil
		}
	}
	return Pipeline{}, fmt.Errorf("%w: %s", ErrPipelineNotFound, name)
}
