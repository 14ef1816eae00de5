package server

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema accepts any object whose sections member is an array.
// Sections and items are checked structurally when the body is decoded.
var documentSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"sections"},
	"properties": map[string]interface{}{
		"sections": map[string]interface{}{
			"type": "array",
		},
	},
}

type validator struct {
	schema *gojsonschema.Schema
}

func newValidator() (*validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &validator{schema: schema}, nil
}

// check returns nil when body is a JSON object with a sections array.
func (v *validator) check(body []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := result.Errors()
		return fmt.Errorf("%s", errs[0])
	}
	return nil
}
