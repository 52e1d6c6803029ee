package discovery

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/modelflow/pkg/models"
)

// parameterSchemas constrains the Parameters payload of every rule category.
// A rule whose parameters drift out of shape is deactivated rather than
// applied blindly.
var parameterSchemas = map[models.RuleCategory]string{
	models.RuleWhitespaceNormalization: `{
		"type": "object",
		"required": ["mode"],
		"properties": {"mode": {"type": "string", "enum": ["trim_and_collapse"]}}
	}`,
	models.RuleEncodingNormalization: `{
		"type": "object",
		"required": ["strategy"],
		"properties": {"strategy": {"type": "string", "enum": ["replace_known_mojibake"]}}
	}`,
	models.RuleDateFormatStandardization: `{
		"type": "object",
		"required": ["target_layout", "source_layouts"],
		"properties": {
			"target_layout": {"type": "string", "minLength": 1},
			"source_layouts": {"type": "array", "items": {"type": "string"}, "minItems": 1}
		}
	}`,
	models.RuleNumericFormatStandardization: `{
		"type": "object",
		"required": ["decimal_separator"],
		"properties": {"decimal_separator": {"type": "string", "enum": ["."]}}
	}`,
	models.RuleMissingValueStrategy: `{
		"type": "object",
		"required": ["strategies"],
		"properties": {"strategies": {"type": "array", "items": {"type": "string"}, "minItems": 1}}
	}`,
	models.RuleOutlierHandling: `{
		"type": "object",
		"required": ["method", "threshold"],
		"properties": {
			"method": {"type": "string", "enum": ["zscore"]},
			"threshold": {"type": "number", "minimum": 0}
		}
	}`,
	models.RuleCategoryMapping: `{
		"type": "object",
		"required": ["normalization"],
		"properties": {"normalization": {"type": "string", "enum": ["casefold_trim"]}}
	}`,
	models.RuleTypeConversion: `{
		"type": "object",
		"required": ["target_type"],
		"properties": {"target_type": {"type": "string", "enum": ["numeric", "categorical"]}}
	}`,
	models.RuleBusinessLogicDecision: `{
		"type": "object",
		"required": ["constraint"],
		"properties": {"constraint": {"type": "string", "minLength": 1}}
	}`,
}

var compiledSchemas = map[models.RuleCategory]*gojsonschema.Schema{}

func init() {
	for category, raw := range parameterSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("discovery: invalid parameter schema for %s: %v", category, err))
		}

		compiledSchemas[category] = schema
	}
}

// ValidateParameters checks a rule's parameters against the schema of its
// category. Categories without a schema pass.
func ValidateParameters(category models.RuleCategory, parameters map[string]any) error {
	schema, ok := compiledSchemas[category]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(parameters))
	if err != nil {
		return fmt.Errorf("failed to validate parameters for %s: %w", category, err)
	}

	if !result.Valid() {
		var details []string
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("parameters for %s violate schema: %s", category, strings.Join(details, "; "))
	}

	return nil
}
