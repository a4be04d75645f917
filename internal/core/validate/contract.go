// Package validate enforces the batch shape contract between extraction
// and workbook assembly.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

const yearPattern = `^(19|20)\d{2}$`

func rowsSchema(profile domain.Profile) map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []string{"documentName", "rawLine", "normalizedLineItem", "values", "ambiguity", "confidence"},
			"properties": map[string]any{
				"documentName":       map[string]any{"type": "string", "minLength": 1},
				"rawLine":            map[string]any{"type": "string"},
				"normalizedLineItem": map[string]any{"type": "string", "minLength": 1},
				"values": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "number"},
					"maxItems": profile.ValueCap(),
				},
				"ambiguity":  map[string]any{"type": "string"},
				"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			},
		},
	}
}

func metadataSchema(profile domain.Profile) map[string]any {
	properties := map[string]any{
		"documentName": map[string]any{"type": "string", "minLength": 1},
		"currency":     map[string]any{"type": "string", "minLength": 1},
		"units":        map[string]any{"type": "string", "minLength": 1},
	}
	required := []string{"documentName", "years", "currency", "units"}
	if profile.HasPeriods() {
		properties["periods"] = map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1},
			"maxItems": 8,
		}
		properties["years"] = map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1},
			"maxItems": 8,
		}
		required = append(required, "periods")
	} else {
		properties["years"] = map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "pattern": yearPattern},
			"maxItems": 4,
		}
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"required":   required,
			"properties": properties,
		},
	}
}

func validateAgainst(schemaMap map[string]any, value any) error {
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("contract.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("contract.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return errors.New(firstIssue(err))
	}
	return nil
}

// firstIssue drills into the first leaf cause so the contract error names
// the offending field rather than the schema root.
func firstIssue(err error) string {
	ve := &jsonschema.ValidationError{}
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation != "" {
		return fmt.Sprintf("%s: %s", ve.InstanceLocation, ve.Message)
	}
	return ve.Message
}

// Rows checks every aggregated row against the profile contract and
// returns them unchanged. Any violation fails the whole batch.
func Rows(profile domain.Profile, rows []domain.StatementRow) ([]domain.StatementRow, error) {
	if err := validateAgainst(rowsSchema(profile), rows); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "validate rows", err)
	}
	return rows, nil
}

// Metadata checks every aggregated metadata record against the profile
// contract and returns them unchanged.
func Metadata(profile domain.Profile, metadata []domain.StatementMetadata) ([]domain.StatementMetadata, error) {
	if err := validateAgainst(metadataSchema(profile), metadata); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "validate metadata", err)
	}
	return metadata, nil
}
