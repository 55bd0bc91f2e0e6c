package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"neurocomp/internal/hal"
)

func runListTargets(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("list-targets", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "show vendor, family and core limits")
	jsonOut := fs.Bool("json", false, "emit manifests as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := hal.BuiltinTargets()
	if !*verbose && !*jsonOut {
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	manifests := make([]*hal.TargetManifest, 0, len(names))
	for _, name := range names {
		m, err := hal.LoadBuiltin(name)
		if err != nil {
			return err
		}
		manifests = append(manifests, m)
	}
	if *jsonOut {
		return printJSON(manifests)
	}
	for _, m := range manifests {
		caps := m.Caps()
		fmt.Printf("%-18s vendor=%s family=%s neurons/core=%s memory/core=%s\n",
			m.Name, m.Vendor, m.Family, optionalCount(caps.MaxNeuronsPerCore), optionalKiB(caps.CoreMemoryKiB))
	}
	return nil
}

func runValidateManifest(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("validate-manifest", flag.ContinueOnError)
	path := fs.String("manifest", "", "manifest TOML path")
	dir := fs.String("dir", "", "validate every *.toml directly under this directory")
	target := fs.String("target", "", "builtin target name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var loaded []hal.LoadedManifest
	switch {
	case *dir != "":
		var err error
		if loaded, err = hal.LoadManifestsDir(*dir); err != nil {
			return err
		}
	case *path != "" || *target != "":
		m, err := hal.Resolve(*path, *target)
		if err != nil {
			return err
		}
		source := *path
		if source == "" {
			source = "builtin:" + *target
		}
		loaded = []hal.LoadedManifest{{Path: source, Manifest: m}}
	default:
		return errors.New("one of -manifest, -dir or -target is required")
	}

	failed := 0
	for _, lm := range loaded {
		if err := hal.ValidateManifest(lm.Manifest); err != nil {
			failed++
			fmt.Printf("invalid %s: %v\n", lm.Path, err)
			continue
		}
		fmt.Printf("ok %s name=%s\n", lm.Path, lm.Manifest.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d manifests invalid", failed, len(loaded))
	}
	return nil
}

func optionalCount(v *uint32) string {
	if v == nil {
		return "-"
	}
	return humanize.Comma(int64(*v))
}

func optionalKiB(v *uint32) string {
	if v == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*v) * 1024)
}

func kibString(kib float64) string {
	if kib < 0 {
		kib = 0
	}
	return humanize.IBytes(uint64(kib * 1024))
}
