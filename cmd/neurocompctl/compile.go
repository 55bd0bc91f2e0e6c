package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"goa.design/clue/log"

	"neurocomp/internal/adaptive"
	"neurocomp/internal/artifacts"
	"neurocomp/internal/config"
	"neurocomp/internal/model"
	"neurocomp/internal/nir"
	"neurocomp/internal/passes"
	"neurocomp/internal/telemetry"
	"neurocomp/pkg/neurocomp"
)

func runCompile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	input := fs.String("input", "", "graph document path")
	backendName := fs.String("backend", "", "backend name (default: the target's backend)")
	skipBackend := fs.Bool("no-backend", false, "stop after the mapping pipeline")
	profilePath := fs.String("profile", "", "append pass and backend samples to this JSONL file")
	jsonOut := fs.Bool("json", false, "emit the stored report as JSON")
	artifactsDir := fs.String("artifacts-dir", "", "also write the compile under this directory")
	tf := addTargetFlags(fs)
	pf := addPipelineFlags(fs)
	sf := addStoreFlags(fs)
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
	manifest, err := loadTarget(tf)
	if err != nil {
		return err
	}
	pipeline, err := pf.resolve(fs, config.Vars{Target: manifest.Name, Graph: g.Name})
	if err != nil {
		return err
	}

	client, err := neurocomp.New(neurocomp.Options{
		StoreKind:    *sf.kind,
		DBPath:       *sf.dbPath,
		Observer:     telemetry.NewOTelObserver(),
		ProfilePath:  *profilePath,
		ArtifactsDir: *artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	res, err := client.Compile(ctx, neurocomp.CompileRequest{
		Graph:        g,
		Target:       *tf.target,
		ManifestPath: *tf.manifest,
		Pipeline:     pipeline,
		Backend:      *backendName,
		SkipBackend:  *skipBackend,
	})
	if err != nil {
		return err
	}
	log.Print(ctx, log.KV{K: "msg", V: "compiled"}, log.KV{K: "report", V: res.ReportID}, log.KV{K: "legal", V: res.Legal})

	if *jsonOut {
		return printJSON(res.Record)
	}
	fmt.Printf("report %s graph=%s target=%s legal=%t parts=%d violations=%d\n",
		res.ReportID, res.Record.GraphName, res.Record.Target, res.Legal, res.Record.Parts, len(res.Violations))
	for _, v := range res.Violations {
		fmt.Printf("  %s %s observed=%g limit=%g\n", v.Code, v.Entity, v.Observed, v.Limit)
	}
	if res.Artifact != "" {
		fmt.Printf("compile ok: %s\n", res.Artifact)
	}
	return nil
}

func runReports(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reports", flag.ContinueOnError)
	target := fs.String("target", "", "only reports for this target")
	graph := fs.String("graph", "", "only reports for this graph name")
	limit := fs.Int("limit", 20, "max reports to list")
	jsonOut := fs.Bool("json", false, "emit reports as JSON")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := neurocomp.New(neurocomp.Options{StoreKind: *sf.kind, DBPath: *sf.dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, err := client.ListReports(ctx, neurocomp.ReportsRequest{Target: *target, GraphName: *graph, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("no reports found")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s %-16s %-12s legal=%-5t violations=%d %s\n",
			r.ID, r.GraphName, r.Target, r.Legal, r.Violations, humanize.Time(r.CreatedAt))
	}
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	id := fs.String("id", "", "report id")
	jsonOut := fs.Bool("json", false, "emit the report as JSON")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}

	client, err := neurocomp.New(neurocomp.Options{StoreKind: *sf.kind, DBPath: *sf.dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	record, err := client.GetReport(ctx, *id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(record)
	}
	return printReport(record)
}

func printReport(r model.CompileRecord) error {
	fmt.Printf("report:     %s\n", r.ID)
	fmt.Printf("graph:      %s\n", r.GraphName)
	fmt.Printf("target:     %s\n", r.Target)
	fmt.Printf("created:    %s (%s)\n", r.CreatedAt.Format(time.RFC3339), humanize.Time(r.CreatedAt))
	fmt.Printf("strategy:   %s parts=%d\n", r.Strategy, r.Parts)
	fmt.Printf("legal:      %t violations=%d\n", r.Legal, r.Violations)
	if r.Artifact != "" {
		fmt.Printf("artifact:   %s\n", r.Artifact)
	}
	for _, t := range r.Timings {
		fmt.Printf("  pass %-16s %8.3f ms\n", t.Pass, t.DurationMS)
	}

	g := nir.NewGraph(r.GraphName)
	if err := json.Unmarshal(r.Attributes, &g.Attributes); err != nil {
		return fmt.Errorf("decode report attributes: %w", err)
	}
	placement, ok, err := passes.GetPlacement(g)
	if err != nil {
		return err
	}
	if ok {
		for part := 0; part < placement.Parts; part++ {
			fmt.Printf("  part %d neurons=%s synapses=%s memory=%s\n", part,
				humanize.Comma(int64(placement.NeuronsPerPart[part])),
				humanize.Comma(int64(placement.SynapsesPerPart[part])),
				kibString(placement.MemoryKiBPerPart[part]))
		}
	}
	routing, ok, err := passes.GetRouting(g)
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("  routing %s cross_edges=%d bandwidth=%.3f Mbps\n", routing.Status, routing.CrossEdges, routing.EstimatedBandwidthMbps)
	}
	return nil
}

func runAdapt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("adapt", flag.ContinueOnError)
	id := fs.String("id", "", "report id")
	policyName := fs.String("policy", "legality", "decision policy: legality|noop")
	utilization := fs.Float64("utilization", 0, "observed utilization percent")
	buffers := fs.Float64("buffer-occupancy", 0, "observed buffer occupancy percent")
	epoch := fs.Uint64("epoch", 0, "decision epoch; one decision per report and epoch is applied")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}
	var policy adaptive.Policy
	switch *policyName {
	case "legality":
		policy = adaptive.LegalityPolicy{}
	case "noop":
		policy = adaptive.NoOpPolicy{}
	default:
		return fmt.Errorf("unknown policy: %s", *policyName)
	}

	client, err := neurocomp.New(neurocomp.Options{StoreKind: *sf.kind, DBPath: *sf.dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	snapshot := adaptive.ResourceSnapshot{UtilizationPct: *utilization, BufferOccupancyPct: *buffers}
	decision, err := client.Decide(ctx, *id, policy, snapshot)
	if err != nil {
		return err
	}
	record, err := client.GetReport(ctx, *id)
	if err != nil {
		return err
	}

	applier := &adaptive.Applier{Dedup: adaptive.NewDedupSet()}
	key := adaptive.DecisionKey(record.GraphName, record.Target, *epoch, decision)
	applied, err := applier.Apply(ctx, key, decision)
	if err != nil {
		return err
	}
	fmt.Printf("policy=%s decision=%s applied=%t key=%s\n", policy.Name(), decision, applied, key)
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	artifactsDir := fs.String("artifacts-dir", defaultArtifactsDir, "directory written by compile -artifacts-dir")
	id := fs.String("id", "", "report id (default: the newest indexed compile)")
	outDir := fs.String("out", "exports", "export destination")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reportID := *id
	if reportID == "" {
		index, err := artifacts.ListIndex(*artifactsDir)
		if err != nil {
			return err
		}
		if len(index) == 0 {
			return fmt.Errorf("no compiles indexed under %s", *artifactsDir)
		}
		reportID = index[0].ReportID
	}
	dst, err := artifacts.Export(*artifactsDir, reportID, *outDir)
	if err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", reportID, dst)
	return nil
}

func runProfileSummary(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("profile-summary", flag.ContinueOnError)
	input := fs.String("input", "", "JSONL profile path")
	jsonOut := fs.Bool("json", false, "emit summaries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-input is required")
	}

	summaries, err := telemetry.SummarizeJSONL(*input)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(summaries)
	}
	if len(summaries) == 0 {
		fmt.Println("no samples found")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%-24s count=%d sum=%.3f min=%.3f max=%.3f mean=%.3f\n", s.Metric, s.Count, s.Sum, s.Min, s.Max, s.Mean())
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
