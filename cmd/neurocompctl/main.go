package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"goa.design/clue/log"

	"neurocomp/internal/config"
	"neurocomp/internal/hal"
	"neurocomp/internal/nir"
	"neurocomp/internal/storage"
)

const (
	defaultDBPath       = "neurocomp.db"
	defaultArtifactsDir = "compiles"
)

func main() {
	format := log.FormatJSON
	if fd := os.Stderr.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format), log.WithOutput(os.Stderr))
	if os.Getenv("NEUROCOMP_DEBUG") != "" {
		ctx = log.Context(ctx, log.WithDebug())
	}
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "list-targets":
		return runListTargets(ctx, args[1:])
	case "validate-manifest":
		return runValidateManifest(ctx, args[1:])
	case "import":
		return runImport(ctx, args[1:])
	case "lower":
		return runLower(ctx, args[1:])
	case "compile":
		return runCompile(ctx, args[1:])
	case "reports":
		return runReports(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "adapt":
		return runAdapt(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "profile-summary":
		return runProfileSummary(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: neurocompctl <list-targets|validate-manifest|import|lower|compile|reports|report|adapt|export|profile-summary> [flags]", msg)
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind(), "report store: "+strings.Join(storage.StoreKinds(), "|")),
		dbPath: fs.String("db-path", defaultDBPath, "sqlite database path"),
	}
}

type targetFlags struct {
	manifest *string
	target   *string
}

func addTargetFlags(fs *flag.FlagSet) targetFlags {
	return targetFlags{
		manifest: fs.String("manifest", "", "target manifest TOML path (preferred over -target)"),
		target:   fs.String("target", "", "builtin target name"),
	}
}

// pipelineFlags select a pipeline from an HCL file or from a comma-separated
// pass list. Flags given explicitly override the file.
type pipelineFlags struct {
	configPath *string
	name       *string
	passes     *string
	dumpDir    *string
	dumpFormat *string
	strategy   *string
	seed       *uint64
}

func addPipelineFlags(fs *flag.FlagSet) pipelineFlags {
	return pipelineFlags{
		configPath: fs.String("config", "", "pipeline HCL file"),
		name:       fs.String("pipeline", "", "pipeline block name in -config"),
		passes:     fs.String("passes", "", "comma-separated pass list (overrides -config)"),
		dumpDir:    fs.String("dump-dir", "", "write the graph after every pass into this directory"),
		dumpFormat: fs.String("dump-format", "", "comma-separated dump formats: json,yaml,bin"),
		strategy:   fs.String("strategy", "", "partition strategy: capacity|seeded"),
		seed:       fs.Uint64("seed", 0, "seed for the seeded partition strategy"),
	}
}

func (p pipelineFlags) resolve(fs *flag.FlagSet, vars config.Vars) (config.Pipeline, error) {
	pipeline := config.Default()
	if *p.configPath != "" {
		pipelines, err := config.LoadFile(*p.configPath, vars)
		if err != nil {
			return config.Pipeline{}, err
		}
		if pipeline, err = config.Select(pipelines, *p.name); err != nil {
			return config.Pipeline{}, err
		}
	}
	if names := splitList(*p.passes); len(names) > 0 {
		pipeline.Passes = names
	}
	if *p.dumpDir != "" {
		pipeline.DumpDir = *p.dumpDir
	}
	if formats := splitList(*p.dumpFormat); len(formats) > 0 {
		pipeline.DumpFormats = pipeline.DumpFormats[:0:0]
		for _, raw := range formats {
			f, err := nir.ParseFormat(raw)
			if err != nil {
				return config.Pipeline{}, err
			}
			pipeline.DumpFormats = append(pipeline.DumpFormats, f)
		}
	}
	if *p.strategy != "" {
		pipeline.Strategy = *p.strategy
	}
	if flagWasSet(fs, "seed") {
		pipeline.Seed = *p.seed
	}
	if err := pipeline.Validate(); err != nil {
		return config.Pipeline{}, err
	}
	return pipeline, nil
}

func loadTarget(t targetFlags) (*hal.TargetManifest, error) {
	if *t.manifest == "" && *t.target == "" {
		return nil, errors.New("one of -manifest or -target is required")
	}
	m, err := hal.Resolve(*t.manifest, *t.target)
	if err != nil {
		return nil, err
	}
	if err := hal.ValidateManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
