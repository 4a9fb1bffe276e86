package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoProvider is returned when no LLM provider is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// Schema is a compiled JSON Schema describing the shape a generation must
// return.
type Schema struct {
	Name     string
	Source   string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a draft 2020-12 schema.
func CompileSchema(name, src string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://startopia.local/schemas/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("schema %s load failed: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
	}
	return &Schema{Name: name, Source: src, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name, src string) *Schema {
	s, err := CompileSchema(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks raw JSON against the schema.
func (s *Schema) Validate(raw []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.compiled.Validate(v)
}

// OutputError reports a response that could not be used: not JSON, or
// JSON that does not conform to the requested schema.
type OutputError struct {
	Schema string
	Reason string
	Err    error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s output %s: %v", e.Schema, e.Reason, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

const schemaInstruction = `

Respond with ONLY a JSON object that conforms to this JSON Schema:
%s`

// Structured turns free-text providers into typed, validated generation.
type Structured struct {
	provider  Provider
	maxTokens int
}

// NewStructured wraps a provider. provider may be nil, in which case every
// call fails with ErrNoProvider.
func NewStructured(provider Provider, maxTokens int) *Structured {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Structured{provider: provider, maxTokens: maxTokens}
}

// Generate asks the provider for output matching schema and decodes it into
// out. The response is never partially decoded: out is only written after
// the JSON has passed validation.
func (s *Structured) Generate(ctx context.Context, system, prompt string, schema *Schema, out any) error {
	if s.provider == nil {
		return ErrNoProvider
	}

	responseText, err := s.provider.Generate(ctx, system, prompt+fmt.Sprintf(schemaInstruction, schema.Source), s.maxTokens)
	if err != nil {
		return err
	}

	raw := ExtractJSON(responseText)
	if raw == "" {
		return &OutputError{Schema: schema.Name, Reason: "is empty", Err: errors.New("no content")}
	}
	if !json.Valid([]byte(raw)) {
		return &OutputError{Schema: schema.Name, Reason: "is not valid JSON", Err: errors.New(truncate(raw, 120))}
	}
	if err := schema.Validate([]byte(raw)); err != nil {
		return &OutputError{Schema: schema.Name, Reason: "does not match schema", Err: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &OutputError{Schema: schema.Name, Reason: "could not be decoded", Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
