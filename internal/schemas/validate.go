// Package schemas provides JSON Schema validation for generated and assembled
// artifacts. Schema documents are embedded at compile time.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names accepted by Validate.
const (
	ProfileSnapshot = "profile_snapshot"
	OpportunitiesV3 = "opportunities_v3"
	DecisionModel   = "decision_model"
)

//go:embed *.json
var schemaFiles embed.FS

var (
	compiled   = make(map[string]*gojsonschema.Schema)
	compiledMu sync.Mutex
)

// ValidationError represents a schema validation failure with field paths.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError is a single validation error at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("document does not match %s schema:\n", ve.Schema))
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents a failure to load or compile a schema document.
type SchemaLoadError struct {
	Name    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Name, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// load compiles and caches an embedded schema by name.
func load(name string) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiled[name]; ok {
		return s, nil
	}

	data, err := schemaFiles.ReadFile(name + ".json")
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Message: "unknown schema", Cause: err}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Message: "schema failed to compile", Cause: err}
	}

	compiled[name] = schema
	return schema, nil
}

// Validate checks a JSON document against a named embedded schema. Returns a
// *ValidationError when the document does not conform, a *SchemaLoadError for
// schema problems, and nil on success.
func Validate(name string, document []byte) error {
	schema, err := load(name)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		// The document itself failed to load, e.g. malformed JSON.
		return &ValidationError{
			Schema: name,
			Errors: []FieldError{{Field: "(root)", Message: err.Error()}},
		}
	}

	if result.Valid() {
		return nil
	}

	ve := &ValidationError{
		Schema: name,
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return ve
}

// Describe returns the raw schema document, used when asking the generator to
// repair invalid output against the target shape.
func Describe(name string) (string, error) {
	data, err := schemaFiles.ReadFile(name + ".json")
	if err != nil {
		return "", &SchemaLoadError{Name: name, Message: "unknown schema", Cause: err}
	}
	return string(data), nil
}
