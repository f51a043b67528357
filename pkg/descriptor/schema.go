package descriptor

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// The companion JSON Schema document is the source of truth for structural
// validation. It is embedded so a deployed binary cannot drift from it.
//
//go:embed schema.json
var schemaJSON []byte

// compileSchema parses the embedded schema once per call site; the document
// is small enough that caching is not worth the package-level state.
func compileSchema() (*openapi3.Schema, error) {
	var sch openapi3.Schema
	if err := json.Unmarshal(schemaJSON, &sch); err != nil {
		return nil, fmt.Errorf("embedded descriptor schema is invalid: %w", err)
	}
	return &sch, nil
}

// validateStructure checks the decoded document against the schema,
// collecting every violation instead of stopping at the first.
func validateStructure(doc any) error {
	sch, err := compileSchema()
	if err != nil {
		return err
	}

	err = sch.VisitJSON(doc, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		multi = openapi3.MultiError{err}
	}

	aggr := &AggregateError{}
	for _, e := range multi {
		var schemaErr *openapi3.SchemaError
		if errors.As(e, &schemaErr) {
			aggr.Errors = append(aggr.Errors, &ValidationError{
				Path:   strings.Join(schemaErr.JSONPointer(), "."),
				Reason: schemaErr.Reason,
				Value:  schemaErr.Value,
			})
			continue
		}
		aggr.Errors = append(aggr.Errors, &ValidationError{Reason: e.Error()})
	}
	return aggr
}
