package nir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Attributes is an insertion-ordered map from string keys to structured
// values. Passes store typed values; decoded documents hold generic values.
// DecodeAttr bridges the two.
type Attributes struct {
	keys   []string
	values map[string]any
}

func (a *Attributes) Set(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, exists := a.values[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a *Attributes) Get(key string) (any, bool) {
	if a.values == nil {
		return nil, false
	}
	v, ok := a.values[key]
	return v, ok
}

func (a *Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

func (a *Attributes) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (a *Attributes) Keys() []string {
	return append([]string(nil), a.keys...)
}

func (a *Attributes) Len() int {
	return len(a.keys)
}

// DecodeAttr returns the value stored under key as T. Values already held as
// T are returned directly; anything else is converted through its JSON form.
func DecodeAttr[T any](a *Attributes, key string) (T, bool, error) {
	var out T
	raw, ok := a.Get(key)
	if !ok {
		return out, false, nil
	}
	switch typed := raw.(type) {
	case T:
		return typed, true, nil
	case *T:
		if typed != nil {
			return *typed, true, nil
		}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return out, true, fmt.Errorf("encode attribute %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, true, fmt.Errorf("decode attribute %s: %w", key, err)
	}
	return out, true, nil
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(a.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode attribute %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	*a = Attributes{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attributes must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attribute key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode attribute %s: %w", key, err)
		}
		a.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// MarshalYAML emits an ordered mapping. Values go through their JSON form so
// typed reports share key names across encodings.
func (a Attributes) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range a.keys {
		generic, err := toGeneric(a.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode attribute %s: %w", key, err)
		}
		var valueNode yaml.Node
		if err := valueNode.Encode(generic); err != nil {
			return nil, fmt.Errorf("encode attribute %s: %w", key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&valueNode,
		)
	}
	return node, nil
}

func (a *Attributes) UnmarshalYAML(value *yaml.Node) error {
	*a = Attributes{}
	if value.Kind == 0 || value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("attributes must be a mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		var decoded any
		if err := value.Content[i+1].Decode(&decoded); err != nil {
			return fmt.Errorf("decode attribute %s: %w", key, err)
		}
		generic, err := toGeneric(decoded)
		if err != nil {
			return fmt.Errorf("decode attribute %s: %w", key, err)
		}
		a.Set(key, generic)
	}
	return nil
}

// EncodeMsgpack writes [key, canonical-json] pairs so the binary form stays
// byte-stable regardless of map iteration order.
func (a Attributes) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(a.keys)); err != nil {
		return err
	}
	for _, key := range a.keys {
		payload, err := json.Marshal(a.values[key])
		if err != nil {
			return fmt.Errorf("encode attribute %s: %w", key, err)
		}
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeString(key); err != nil {
			return err
		}
		if err := enc.EncodeBytes(payload); err != nil {
			return err
		}
	}
	return nil
}

func (a *Attributes) DecodeMsgpack(dec *msgpack.Decoder) error {
	*a = Attributes{}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pair, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if pair != 2 {
			return fmt.Errorf("attribute entry %d: expected 2 fields, got %d", i, pair)
		}
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		payload, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		var value any
		if err := json.Unmarshal(payload, &value); err != nil {
			return fmt.Errorf("decode attribute %s: %w", key, err)
		}
		a.Set(key, value)
	}
	return nil
}

func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
