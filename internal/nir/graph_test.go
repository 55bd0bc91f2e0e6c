package nir

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func twoPopulationGraph() *Graph {
	g := NewGraph("v")
	g.Populations = append(g.Populations,
		Population{Name: "a", Size: 1, Model: "LIF", Params: map[string]any{"tau": 10.0}},
		Population{Name: "b", Size: 2, Model: "LIF"},
	)
	g.Connections = append(g.Connections, Connection{Pre: "a", Post: "b", Weight: 0.1, DelayMS: 0})
	g.Probes = append(g.Probes, Probe{Target: "b", Kind: "spikes"})
	return g
}

func TestNewGraph(t *testing.T) {
	g := NewGraph("test")
	if g.Name != "test" {
		t.Fatalf("unexpected name: %s", g.Name)
	}
	if g.Attributes.Len() != 0 {
		t.Fatalf("expected no attributes, got %d", g.Attributes.Len())
	}
}

func TestValidateOK(t *testing.T) {
	if err := twoPopulationGraph().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(g *Graph)
		entity string
		want   string
	}{
		{
			name:   "empty population name",
			mutate: func(g *Graph) { g.Populations[0].Name = "  " },
			want:   "population name cannot be empty",
		},
		{
			name:   "duplicate population",
			mutate: func(g *Graph) { g.Populations[1].Name = "a" },
			entity: "a",
			want:   "duplicate population 'a'",
		},
		{
			name:   "zero size",
			mutate: func(g *Graph) { g.Populations[1].Size = 0 },
			entity: "b",
			want:   "size 0",
		},
		{
			name:   "missing model",
			mutate: func(g *Graph) { g.Populations[0].Model = "" },
			entity: "a",
			want:   "missing model",
		},
		{
			name:   "dangling pre",
			mutate: func(g *Graph) { g.Connections[0].Pre = "missing" },
			entity: "missing",
			want:   "connection pre 'missing' not found",
		},
		{
			name:   "dangling post",
			mutate: func(g *Graph) { g.Connections[0].Post = "ghost" },
			entity: "ghost",
			want:   "connection post 'ghost' not found",
		},
		{
			name:   "non-finite weight",
			mutate: func(g *Graph) { g.Connections[0].Weight = math.Inf(1) },
			entity: "a->b",
			want:   "non-finite weight",
		},
		{
			name:   "negative delay",
			mutate: func(g *Graph) { g.Connections[0].DelayMS = -1 },
			entity: "a->b",
			want:   "invalid delay_ms",
		},
		{
			name:   "nan delay",
			mutate: func(g *Graph) { g.Connections[0].DelayMS = math.NaN() },
			entity: "a->b",
			want:   "invalid delay_ms",
		},
		{
			name:   "empty probe kind",
			mutate: func(g *Graph) { g.Probes[0].Kind = "" },
			want:   "probe kind cannot be empty",
		},
		{
			name:   "dangling probe target",
			mutate: func(g *Graph) { g.Probes[0].Target = "nowhere" },
			entity: "nowhere",
			want:   "probe target 'nowhere'",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := twoPopulationGraph()
			tc.mutate(g)
			err := g.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("expected ErrInvalidGraph, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if tc.entity != "" && verr.Entity != tc.entity {
				t.Fatalf("unexpected entity: got %q want %q", verr.Entity, tc.entity)
			}
		})
	}
}

func TestJSONRoundTripPreservesAttributeOrder(t *testing.T) {
	g := twoPopulationGraph()
	g.Attributes.Set("zeta", 1)
	g.Attributes.Set("alpha", map[string]any{"x": "y"})
	g.Attributes.Set("mid", []int{1, 2, 3})

	data, err := g.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	out, err := FromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if out.Name != "v" || len(out.Populations) != 2 || len(out.Connections) != 1 {
		t.Fatalf("unexpected graph: %+v", out)
	}
	keys := out.Attributes.Keys()
	if strings.Join(keys, ",") != "zeta,alpha,mid" {
		t.Fatalf("unexpected attribute order: %v", keys)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	g := twoPopulationGraph()
	g.Dialect = DialectEvent
	g.Connections[0].Plasticity = &PlasticityRule{Kind: PlasticitySTDP, Params: map[string]any{"a_plus": 0.01}}
	g.Attributes.Set("second", "b")
	g.Attributes.Set("first", "a")

	data, err := g.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	out, err := FromYAML(data)
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if out.Dialect != DialectEvent {
		t.Fatalf("unexpected dialect: %q", out.Dialect)
	}
	if out.Connections[0].Plasticity == nil || out.Connections[0].Plasticity.Kind != PlasticitySTDP {
		t.Fatalf("plasticity lost: %+v", out.Connections[0])
	}
	if strings.Join(out.Attributes.Keys(), ",") != "second,first" {
		t.Fatalf("unexpected attribute order: %v", out.Attributes.Keys())
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	g := twoPopulationGraph()
	g.Attributes.Set("partition", map[string]any{"parts": 2})

	data, err := g.ToMsgpack()
	if err != nil {
		t.Fatalf("to msgpack: %v", err)
	}
	out, err := FromMsgpack(data)
	if err != nil {
		t.Fatalf("from msgpack: %v", err)
	}
	if out.Name != g.Name || len(out.Populations) != 2 || out.Populations[1].Size != 2 {
		t.Fatalf("unexpected graph: %+v", out)
	}
	parts, ok, err := DecodeAttr[map[string]int](&out.Attributes, "partition")
	if err != nil || !ok {
		t.Fatalf("decode partition attr: ok=%v err=%v", ok, err)
	}
	if parts["parts"] != 2 {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func TestMsgpackIsByteStable(t *testing.T) {
	g := twoPopulationGraph()
	g.Attributes.Set("report", map[string]any{"b": 1, "a": 2, "c": []string{"x"}})
	first, err := g.ToMsgpack()
	if err != nil {
		t.Fatalf("to msgpack: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := g.ToMsgpack()
		if err != nil {
			t.Fatalf("to msgpack: %v", err)
		}
		if string(again) != string(first) {
			t.Fatal("expected identical binary encodings")
		}
	}
}

func TestEnsureVersionTag(t *testing.T) {
	g := NewGraph("ver")
	if g.Attributes.Has("nir_version") {
		t.Fatal("unexpected version attribute")
	}
	g.EnsureVersionTag()
	v, ok := g.Attributes.Get("nir_version")
	if !ok || v != Version {
		t.Fatalf("unexpected version attribute: %v", v)
	}
	g.Attributes.Set("nir_version", "custom")
	g.EnsureVersionTag()
	if v, _ := g.Attributes.Get("nir_version"); v != "custom" {
		t.Fatalf("existing version tag overwritten: %v", v)
	}
}

func TestAttributesSetReplacesWithoutReordering(t *testing.T) {
	var a Attributes
	a.Set("a", 1)
	a.Set("b", 2)
	a.Set("a", 3)
	if strings.Join(a.Keys(), ",") != "a,b" {
		t.Fatalf("unexpected keys: %v", a.Keys())
	}
	if v, _ := a.Get("a"); v != 3 {
		t.Fatalf("unexpected value: %v", v)
	}
	a.Delete("a")
	if a.Has("a") || a.Len() != 1 {
		t.Fatalf("delete failed: %v", a.Keys())
	}
}

func TestDecodeAttrTypedAndGeneric(t *testing.T) {
	type report struct {
		Parts    int    `json:"parts"`
		Strategy string `json:"strategy"`
	}
	var a Attributes
	a.Set("typed", report{Parts: 3, Strategy: "cap-aware"})
	a.Set("generic", map[string]any{"parts": float64(4), "strategy": "naive"})

	typed, ok, err := DecodeAttr[report](&a, "typed")
	if err != nil || !ok || typed.Parts != 3 {
		t.Fatalf("typed decode: %+v ok=%v err=%v", typed, ok, err)
	}
	generic, ok, err := DecodeAttr[report](&a, "generic")
	if err != nil || !ok || generic.Parts != 4 || generic.Strategy != "naive" {
		t.Fatalf("generic decode: %+v ok=%v err=%v", generic, ok, err)
	}
	if _, ok, _ := DecodeAttr[report](&a, "missing"); ok {
		t.Fatal("expected missing attribute")
	}
	a.Set("broken", "not an object")
	if _, ok, err := DecodeAttr[report](&a, "broken"); !ok || err == nil {
		t.Fatalf("expected decode error, ok=%v err=%v", ok, err)
	}
}

func TestCheckDocument(t *testing.T) {
	good := []byte(`{"name":"g","populations":[{"name":"a","size":4,"model":"LIF"}],"connections":[],"probes":[]}`)
	if err := CheckDocument(good); err != nil {
		t.Fatalf("check good document: %v", err)
	}

	bad := []byte(`{"name":"g","populations":[{"name":"a","size":4}]}`)
	err := CheckDocument(bad)
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}

	badKind := []byte(`{"name":"g","connections":[{"pre":"a","post":"b","plasticity":{"kind":"Oja"}}]}`)
	if err := CheckDocument(badKind); err == nil {
		t.Fatal("expected schema error for unknown plasticity kind")
	}
}

func TestReadFileDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	g := twoPopulationGraph()

	for _, f := range []Format{FormatJSON, FormatYAML, FormatBinary} {
		data, err := g.Encode(f)
		if err != nil {
			t.Fatalf("encode %s: %v", f, err)
		}
		path := filepath.Join(dir, "graph."+f.Ext())
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		out, err := ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if err := out.Validate(); err != nil {
			t.Fatalf("validate %s: %v", f, err)
		}
	}
}

func TestReadFileRejectsMalformedJSONDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"populations":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "YML": FormatYAML, "msgpack": FormatBinary, "bin": FormatBinary} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %q err=%v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := twoPopulationGraph()
	g.Attributes.Set("k", "v")
	c, err := g.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	c.Populations[0].Size = 99
	c.Attributes.Set("other", 1)
	if g.Populations[0].Size != 1 || g.Attributes.Has("other") {
		t.Fatal("clone shares state with source")
	}
}

func TestFixtures(t *testing.T) {
	chain := Chain(10, 20, 30)
	if len(chain.Populations) != 3 || len(chain.Connections) != 2 {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if chain.TotalUnits() != 60 {
		t.Fatalf("unexpected total units: %d", chain.TotalUnits())
	}
	star := Star(32, 8, 5, 0.5, 1.0)
	if len(star.Populations) != 6 || len(star.Connections) != 5 {
		t.Fatalf("unexpected star: %+v", star)
	}
	for _, g := range []*Graph{chain, star} {
		if err := g.Validate(); err != nil {
			t.Fatalf("fixture %s invalid: %v", g.Name, err)
		}
	}
}
