package nir

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed graph.schema.json
var graphSchemaDoc []byte

var ErrInvalidDocument = errors.New("invalid graph document")

var graphSchema struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

func compiledGraphSchema() (*jsonschema.Schema, error) {
	graphSchema.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(graphSchemaDoc))
		if err != nil {
			graphSchema.err = fmt.Errorf("parse graph schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("graph.schema.json", doc); err != nil {
			graphSchema.err = fmt.Errorf("add graph schema resource: %w", err)
			return
		}
		graphSchema.schema, graphSchema.err = c.Compile("graph.schema.json")
	})
	return graphSchema.schema, graphSchema.err
}

// CheckDocument validates the shape of a JSON graph document. Cross-reference
// rules (dangling endpoints, duplicates) belong to Graph.Validate.
func CheckDocument(data []byte) error {
	schema, err := compiledGraphSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
