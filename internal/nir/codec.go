package nir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatBinary Format = "bin"
)

var ErrUnknownFormat = errors.New("unknown graph format")

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "bin", "msgpack":
		return FormatBinary, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, s)
	}
}

// Ext is the file extension used for dumps, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// FormatFromPath picks a format by file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "yaml", "yml":
		return FormatYAML
	case "bin", "msgpack":
		return FormatBinary
	default:
		return FormatJSON
	}
}

func (g *Graph) ToJSON() ([]byte, error) {
	return json.MarshalIndent(g.normalized(), "", "  ")
}

func FromJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Graph) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(g.normalized()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func FromYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ToMsgpack encodes the graph in the binary dump form, reusing json field
// names as msgpack keys.
func (g *Graph) ToMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(g.normalized()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func FromMsgpack(data []byte) (*Graph, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var g Graph
	if err := dec.Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Graph) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return g.ToJSON()
	case FormatYAML:
		return g.ToYAML()
	case FormatBinary:
		return g.ToMsgpack()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

func Decode(data []byte, f Format) (*Graph, error) {
	switch f {
	case FormatJSON:
		return FromJSON(data)
	case FormatYAML:
		return FromYAML(data)
	case FormatBinary:
		return FromMsgpack(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// ReadFile loads a graph document, choosing the decoder by extension. JSON
// documents are checked against the graph schema before decoding.
func ReadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := FormatFromPath(path)
	if f == FormatJSON {
		if err := CheckDocument(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	g, err := Decode(data, f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return g, nil
}
