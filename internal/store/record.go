package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema describes the JSON shape of a persisted record. Records are
// validated on load because the KV store may be shared, hand-edited, or
// written by an older build.
type Schema struct {
	// Name identifies the schema and keys the compile cache.
	Name string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// ErrInvalidRecord indicates a stored value does not conform to its schema.
type ErrInvalidRecord struct {
	Key string
	Err error
}

func (e *ErrInvalidRecord) Error() string {
	return fmt.Sprintf("invalid record %q: %v", e.Key, e.Err)
}

func (e *ErrInvalidRecord) Unwrap() error { return e.Err }

// LoadJSON reads key, validates it against schema (when non-nil), and
// decodes it into v. Returns ErrNotFound when the key is absent.
func LoadJSON(ctx context.Context, kv KV, key string, schema *Schema, v any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := validateRecord(schema, raw); err != nil {
		return &ErrInvalidRecord{Key: key, Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ErrInvalidRecord{Key: key, Err: err}
	}
	return nil
}

// SaveJSON encodes v and writes it under key.
func SaveJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

// IsNotFound reports whether err means the key had no value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

func validateRecord(schema *Schema, raw []byte) error {
	if schema == nil {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}

	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// compileSchema returns a cached compiled schema or compiles and caches it.
func compileSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a parsed JSON value, so round-trip the Go map.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
