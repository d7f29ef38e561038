package ocpay

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var checkPaymentSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["success", "data"],
	"properties": {
		"success": {"enum": [true]},
		"data": {
			"type": "object",
			"required": ["status"],
			"properties": {
				"status": {"type": "string", "minLength": 1}
			}
		}
	}
}`)

var createLinkSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["success", "data"],
	"properties": {
		"success": {"enum": [true]},
		"data": {
			"type": "object",
			"required": ["paymentUrl", "paymentRef"],
			"properties": {
				"paymentUrl": {"type": "string", "minLength": 1},
				"paymentRef": {"type": "string", "minLength": 1}
			}
		}
	}
}`)

// validateEnvelope checks a 2xx response body against the expected envelope
func validateEnvelope(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("unexpected response: %s", strings.Join(problems, "; "))
}
