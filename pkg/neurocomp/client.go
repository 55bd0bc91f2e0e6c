// Package neurocomp is the public entry point for compiling network graphs
// against hardware targets and browsing the stored compile reports.
package neurocomp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"neurocomp/internal/adaptive"
	"neurocomp/internal/artifacts"
	"neurocomp/internal/backend"
	"neurocomp/internal/config"
	"neurocomp/internal/hal"
	"neurocomp/internal/model"
	"neurocomp/internal/nir"
	"neurocomp/internal/passes"
	"neurocomp/internal/storage"
	"neurocomp/internal/telemetry"
)

const (
	defaultDBPath  = "neurocomp.db"
	defaultWorkers = 4
)

var (
	ErrReportNotFound = errors.New("report not found")
	ErrGraphRequired  = errors.New("graph or graph path is required")
)

type Options struct {
	StoreKind string
	DBPath    string
	// Observer receives every pass of every compile, in addition to the
	// client's own timing capture.
	Observer telemetry.Observer
	// ProfilePath, when set, appends pass and backend samples as JSONL.
	ProfilePath string
	// ArtifactsDir, when set, receives one directory per stored compile plus
	// an index.json.
	ArtifactsDir string
	// Workers bounds CompileBatch concurrency.
	Workers int
}

type Client struct {
	store    storage.Store
	observer telemetry.Observer
	profile  *telemetry.Appender
	workers  int
	now      func() time.Time

	artifactsDir string
	artifactsMu  sync.Mutex

	initMu      sync.Mutex
	initialized bool
}

type CompileRequest struct {
	// Graph is compiled as a copy; the caller's value is never modified.
	Graph     *nir.Graph
	GraphPath string

	Target       string
	ManifestPath string

	// Pipeline defaults to config.Default when it names no passes.
	Pipeline config.Pipeline
	// Backend names a registered backend; empty picks the target's default.
	Backend     string
	SkipBackend bool
}

type CompileResult struct {
	ReportID string
	Graph    *nir.Graph
	Manifest *hal.TargetManifest
	// Legal is the resource-check verdict. Violations also carries what the
	// other passes reported, such as interconnect congestion.
	Legal      bool
	Violations []passes.Violation
	Artifact   string
	Record     model.CompileRecord
}

type ReportsRequest struct {
	Target    string
	GraphName string
	Limit     int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	c := &Client{
		store:    store,
		observer: opts.Observer,
		workers:  workers,
		now:      func() time.Time { return time.Now().UTC() },

		artifactsDir: opts.ArtifactsDir,
	}
	if opts.ProfilePath != "" {
		profile, err := telemetry.OpenAppender(opts.ProfilePath)
		if err != nil {
			_ = storage.CloseIfSupported(store)
			return nil, err
		}
		c.profile = profile
	}
	return c, nil
}

func (c *Client) Close() error {
	var errs []error
	if c.profile != nil {
		errs = append(errs, c.profile.Close())
	}
	errs = append(errs, storage.CloseIfSupported(c.store))
	return errors.Join(errs...)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Compile runs one graph through the pipeline, hands legal results to a
// backend and stores the report. Capacity violations are part of the result,
// not an error.
func (c *Client) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	manifest, err := resolveManifest(req)
	if err != nil {
		return CompileResult{}, err
	}
	return c.compileWith(ctx, req, manifest)
}

// CompileBatch compiles independent graphs concurrently. Requests naming the
// same target share one parsed manifest. Results keep request order; the
// first failure cancels the rest.
func (c *Client) CompileBatch(ctx context.Context, reqs []CompileRequest) ([]CompileResult, error) {
	manifests := make(map[string]*hal.TargetManifest)
	resolved := make([]*hal.TargetManifest, len(reqs))
	for i, req := range reqs {
		key := req.ManifestPath + "\x00" + req.Target
		m, ok := manifests[key]
		if !ok {
			var err error
			if m, err = resolveManifest(req); err != nil {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			manifests[key] = m
		}
		resolved[i] = m
	}

	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	results := make([]CompileResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range reqs {
		i := i // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() error {
			res, err := c.compileWith(gctx, reqs[i], resolved[i])
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func resolveManifest(req CompileRequest) (*hal.TargetManifest, error) {
	m, err := hal.Resolve(req.ManifestPath, req.Target)
	if err != nil {
		return nil, err
	}
	if err := hal.ValidateManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

func loadGraph(req CompileRequest) (*nir.Graph, error) {
	switch {
	case req.Graph != nil:
		return req.Graph.Clone()
	case req.GraphPath != "":
		return nir.ReadFile(req.GraphPath)
	default:
		return nil, ErrGraphRequired
	}
}

func (c *Client) compileWith(ctx context.Context, req CompileRequest, manifest *hal.TargetManifest) (CompileResult, error) {
	if err := c.Init(ctx); err != nil {
		return CompileResult{}, err
	}
	g, err := loadGraph(req)
	if err != nil {
		return CompileResult{}, err
	}
	if err := g.Validate(); err != nil {
		return CompileResult{}, err
	}
	g.EnsureVersionTag()

	pipeline := req.Pipeline
	if len(pipeline.Passes) == 0 {
		def := config.Default()
		def.DumpDir = pipeline.DumpDir
		if len(pipeline.DumpFormats) > 0 {
			def.DumpFormats = pipeline.DumpFormats
		}
		if pipeline.Strategy != "" {
			def.Strategy = pipeline.Strategy
		}
		def.Seed = pipeline.Seed
		pipeline = def
	}

	timings := &timingRecorder{}
	observers := telemetry.MultiObserver{c.observer, timings}
	if c.profile != nil {
		observers = append(observers, c.profile)
	}
	mgr, err := passes.Build(pipeline.Passes, passes.Options{
		Manifest: manifest,
		Strategy: pipeline.Strategy,
		Seed:     pipeline.Seed,
		Observer: observers,
	})
	if err != nil {
		return CompileResult{}, err
	}
	out, err := mgr.RunWithConfig(ctx, g, pipeline.DumpConfig())
	if err != nil {
		return CompileResult{}, err
	}

	v, err := collectVerdict(out)
	if err != nil {
		return CompileResult{}, err
	}
	legal := v.legal

	var artifact string
	if legal && !req.SkipBackend {
		b := backend.ForTarget(manifest)
		if req.Backend != "" {
			if b, err = backend.Get(req.Backend); err != nil {
				return CompileResult{}, err
			}
		}
		artifact, err = backend.Run(ctx, b, out, manifest, c.profile)
		if err != nil {
			return CompileResult{}, fmt.Errorf("backend %s: %w", b.Name(), err)
		}
	}

	attrs, err := json.Marshal(out.Attributes)
	if err != nil {
		return CompileResult{}, err
	}
	record := model.CompileRecord{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		GraphName:       out.Name,
		Target:          manifest.Name,
		Strategy:        v.strategy,
		Passes:          mgr.Names(),
		Legal:           legal,
		Violations:      len(v.violations),
		Parts:           v.parts,
		Artifact:        artifact,
		Timings:         timings.list(),
		Attributes:      attrs,
		CreatedAt:       c.now(),
	}
	if err := c.store.SaveReport(ctx, record); err != nil {
		return CompileResult{}, err
	}
	if err := c.writeArtifacts(record, out); err != nil {
		return CompileResult{}, fmt.Errorf("write artifacts for %s: %w", record.ID, err)
	}

	return CompileResult{
		ReportID:   record.ID,
		Graph:      out,
		Manifest:   manifest,
		Legal:      legal,
		Violations: v.violations,
		Artifact:   artifact,
		Record:     record,
	}, nil
}

func (c *Client) writeArtifacts(record model.CompileRecord, g *nir.Graph) error {
	if c.artifactsDir == "" {
		return nil
	}
	c.artifactsMu.Lock()
	defer c.artifactsMu.Unlock()

	if _, err := artifacts.Write(c.artifactsDir, record, g); err != nil {
		return err
	}
	return artifacts.AppendIndex(c.artifactsDir, artifacts.EntryFor(record))
}

// verdict summarizes the mapping reports of one compile.
type verdict struct {
	violations []passes.Violation
	legal      bool
	parts      int
	strategy   string
}

// collectVerdict gathers violations from every report present, in pipeline
// order, keeping one entry per code and entity. The resource-check report
// decides legality when that pass ran; interconnect congestion is reported
// but never makes a graph illegal.
func collectVerdict(g *nir.Graph) (verdict, error) {
	var v verdict
	seen := map[[2]string]bool{}
	add := func(vs []passes.Violation) {
		for _, x := range vs {
			key := [2]string{x.Code, x.Entity}
			if seen[key] {
				continue
			}
			seen[key] = true
			v.violations = append(v.violations, x)
		}
	}

	partition, ok, err := passes.GetPartition(g)
	if err != nil {
		return verdict{}, err
	}
	if ok {
		v.parts = partition.Parts
		v.strategy = partition.Strategy
		add(partition.Violations)
	}
	placement, _, err := passes.GetPlacement(g)
	if err != nil {
		return verdict{}, err
	}
	add(placement.Violations)
	fits := len(v.violations) == 0
	routing, _, err := passes.GetRouting(g)
	if err != nil {
		return verdict{}, err
	}
	add(routing.Violations)
	resource, ok, err := passes.GetResourceCheck(g)
	if err != nil {
		return verdict{}, err
	}
	add(resource.Violations)

	if ok {
		v.legal = resource.Legal
	} else {
		v.legal = fits
	}
	return v, nil
}

func (c *Client) ListReports(ctx context.Context, req ReportsRequest) ([]model.CompileRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListReports(ctx, model.ReportFilter{Target: req.Target, GraphName: req.GraphName, Limit: req.Limit})
}

func (c *Client) GetReport(ctx context.Context, id string) (model.CompileRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.CompileRecord{}, err
	}
	record, ok, err := c.store.GetReport(ctx, id)
	if err != nil {
		return model.CompileRecord{}, err
	}
	if !ok {
		return model.CompileRecord{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return record, nil
}

func (c *Client) DeleteReport(ctx context.Context, id string) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	ok, err := c.store.DeleteReport(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}

// Decide evaluates policy against a stored report's resource and routing
// results and the given runtime snapshot.
func (c *Client) Decide(ctx context.Context, id string, policy adaptive.Policy, snapshot adaptive.ResourceSnapshot) (adaptive.Decision, error) {
	record, err := c.GetReport(ctx, id)
	if err != nil {
		return "", err
	}
	g := nir.NewGraph(record.GraphName)
	if err := json.Unmarshal(record.Attributes, &g.Attributes); err != nil {
		return "", fmt.Errorf("decode report %s attributes: %w", id, err)
	}

	in := adaptive.Input{Snapshot: snapshot}
	partition, ok, err := passes.GetPartition(g)
	if err != nil {
		return "", err
	}
	if ok {
		in.Partition = &partition
	}
	placement, ok, err := passes.GetPlacement(g)
	if err != nil {
		return "", err
	}
	if ok {
		in.Placement = &placement
	}
	resource, ok, err := passes.GetResourceCheck(g)
	if err != nil {
		return "", err
	}
	if ok {
		in.Resource = &resource
	}
	routing, ok, err := passes.GetRouting(g)
	if err != nil {
		return "", err
	}
	if ok {
		in.Routing = &routing
	}
	if policy == nil {
		policy = adaptive.NoOpPolicy{}
	}
	return policy.Decide(in), nil
}

// timingRecorder captures pass durations for one compile.
type timingRecorder struct {
	mu      sync.Mutex
	timings []model.PassTiming
}

func (r *timingRecorder) PassStarted(ctx context.Context, _ int, _ string) context.Context {
	return ctx
}

func (r *timingRecorder) PassFinished(_ context.Context, s telemetry.PassSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, model.PassTiming{
		Pass:       s.Pass,
		DurationMS: float64(s.Duration.Microseconds()) / 1000,
	})
}

func (r *timingRecorder) list() []model.PassTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PassTiming(nil), r.timings...)
}
