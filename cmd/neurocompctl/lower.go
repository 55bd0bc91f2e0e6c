package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"neurocomp/internal/config"
	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
	"neurocomp/internal/passes"
	"neurocomp/internal/telemetry"
)

func runImport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	input := fs.String("input", "", "graph document path")
	format := fs.String("format", "", "format override: json|yaml|bin")
	output := fs.String("output", "", "re-encode the graph to this path (format from extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-input is required")
	}

	g, err := readGraph(*input, *format)
	if err != nil {
		return err
	}
	valid := g.Validate()
	fmt.Printf("import ok: name=%s populations=%d connections=%d probes=%d units=%d valid=%t\n",
		g.Name, len(g.Populations), len(g.Connections), len(g.Probes), g.TotalUnits(), valid == nil)
	if valid != nil {
		fmt.Printf("validation: %v\n", valid)
	}

	if *output != "" {
		if err := writeGraph(g, *output); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *output)
	}
	return nil
}

func runLower(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lower", flag.ContinueOnError)
	input := fs.String("input", "", "graph document path")
	output := fs.String("output", "", "write the lowered graph to this path")
	tf := addTargetFlags(fs)
	pf := addPipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-input is required")
	}

	g, err := readGraph(*input, "")
	if err != nil {
		return err
	}
	var manifest *hal.TargetManifest
	if *tf.manifest != "" || *tf.target != "" {
		if manifest, err = loadTarget(tf); err != nil {
			return err
		}
	}
	targetName := ""
	if manifest != nil {
		targetName = manifest.Name
	}
	pipeline, err := pf.resolve(fs, config.Vars{Target: targetName, Graph: g.Name})
	if err != nil {
		return err
	}

	g.EnsureVersionTag()
	mgr, err := passes.Build(pipeline.Passes, passes.Options{
		Manifest: manifest,
		Strategy: pipeline.Strategy,
		Seed:     pipeline.Seed,
		Observer: telemetry.NewOTelObserver(),
	})
	if err != nil {
		return err
	}
	out, err := mgr.RunWithConfig(ctx, g, pipeline.DumpConfig())
	if err != nil {
		return fmt.Errorf("lower failed: %w", err)
	}

	if pipeline.DumpDir != "" {
		fmt.Printf("lower completed; passes=%v artifacts dumped under %s\n", mgr.Names(), pipeline.DumpDir)
	} else {
		fmt.Printf("lower completed; passes=%v no dump_dir specified\n", mgr.Names())
	}
	if *output != "" {
		if err := writeGraph(out, *output); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *output)
	}
	return nil
}

func readGraph(path, format string) (*nir.Graph, error) {
	if format == "" {
		return nir.ReadFile(path)
	}
	f, err := nir.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return nir.Decode(data, f)
}

func writeGraph(g *nir.Graph, path string) error {
	data, err := g.Encode(nir.FormatFromPath(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
