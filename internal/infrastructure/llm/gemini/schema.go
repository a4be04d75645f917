package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

const yearPattern = `^(19|20)\d{2}$`

// yearCap mirrors the metadata contract: the extended profile tracks up
// to eight reporting years, the base profile four.
func yearCap(profile domain.Profile) int {
	if profile.HasPeriods() {
		return 8
	}
	return 4
}

// responseSchema is handed to the model so it constrains generation to the
// expected JSON shape under the active profile's caps.
func responseSchema(profile domain.Profile) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"periods": {
				Type:     genai.TypeArray,
				Items:    &genai.Schema{Type: genai.TypeString},
				MaxItems: genai.Ptr(int64(8)),
			},
			"years": {
				Type:     genai.TypeArray,
				Items:    &genai.Schema{Type: genai.TypeString, Pattern: yearPattern},
				MaxItems: genai.Ptr(int64(yearCap(profile))),
			},
			"currency": {Type: genai.TypeString},
			"units":    {Type: genai.TypeString},
			"lineItems": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"normalizedLineItem": {Type: genai.TypeString},
						"rawLine":            {Type: genai.TypeString},
						"values": {
							Type:     genai.TypeArray,
							Items:    &genai.Schema{Type: genai.TypeNumber},
							MaxItems: genai.Ptr(int64(profile.ValueCap())),
						},
						"ambiguity":  {Type: genai.TypeString},
						"confidence": {Type: genai.TypeNumber},
					},
					Required: []string{"normalizedLineItem", "rawLine", "values"},
				},
			},
		},
		Required: []string{"lineItems"},
	}
}

// validationSchema re-checks the model output locally. The model-side
// schema is advisory only; malformed output must still be rejected here,
// with the same per-profile caps the batch contract enforces later.
func validationSchema(profile domain.Profile) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"lineItems"},
		"properties": map[string]any{
			"periods": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "minLength": 1},
				"maxItems": 8,
			},
			"years": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "pattern": yearPattern},
				"maxItems": yearCap(profile),
			},
			"currency": map[string]any{"type": "string"},
			"units":    map[string]any{"type": "string"},
			"lineItems": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"normalizedLineItem", "rawLine", "values"},
					"properties": map[string]any{
						"normalizedLineItem": map[string]any{"type": "string", "minLength": 1},
						"rawLine":            map[string]any{"type": "string", "minLength": 1},
						"values": map[string]any{
							"type":     "array",
							"items":    map[string]any{"type": "number"},
							"maxItems": profile.ValueCap(),
						},
						"ambiguity":  map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					},
				},
			},
		},
	}
}

type llmLineItem struct {
	NormalizedLineItem string    `json:"normalizedLineItem"`
	RawLine            string    `json:"rawLine"`
	Values             []float64 `json:"values"`
	Ambiguity          string    `json:"ambiguity"`
	Confidence         *float64  `json:"confidence"`
}

type llmResponse struct {
	Periods   []string      `json:"periods"`
	Years     []string      `json:"years"`
	Currency  string        `json:"currency"`
	Units     string        `json:"units"`
	LineItems []llmLineItem `json:"lineItems"`
}

// decodeResponse validates raw model output against the local schema and
// decodes it. The returned error distinguishes non-JSON content from
// schema-invalid JSON so callers can report the right failure kind.
func decodeResponse(profile domain.Profile, content string) (llmResponse, error) {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return llmResponse{}, fmt.Errorf("non-json content: %w", err)
	}

	raw, err := json.Marshal(validationSchema(profile))
	if err != nil {
		return llmResponse{}, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("llm_response.json", bytes.NewReader(raw)); err != nil {
		return llmResponse{}, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("llm_response.json")
	if err != nil {
		return llmResponse{}, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return llmResponse{}, &schemaError{cause: err}
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return llmResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parsed, nil
}

// schemaError marks JSON that parsed but failed the response schema.
type schemaError struct {
	cause error
}

func (e *schemaError) Error() string {
	ve := &jsonschema.ValidationError{}
	if errors.As(e.cause, &ve) {
		for len(ve.Causes) > 0 {
			ve = ve.Causes[0]
		}
		if ve.InstanceLocation != "" {
			return fmt.Sprintf("%s: %s", ve.InstanceLocation, ve.Message)
		}
		return ve.Message
	}
	return e.cause.Error()
}

func isSchemaError(err error) bool {
	target := &schemaError{}
	return errors.As(err, &target)
}
