package validation

import (
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"notify-engine/internal/common/errors"
)

// eventSchema describes the wire shape of an inbound trigger event.
var eventSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"entityType": map[string]interface{}{
			"type": "string",
			"enum": []string{"invoice", "agreement", "custom"},
		},
		"entityId": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"category": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"severity": map[string]interface{}{
			"type": "string",
			"enum": []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"},
		},
		"conditionId": map[string]interface{}{
			"type": "string",
		},
		"payload": map[string]interface{}{
			"type": "object",
		},
	},
	"required": []string{"entityType", "entityId", "category", "severity"},
}

// ValidateEvent checks a raw inbound event against the event schema.
// Returns a MALFORMED_EVENT error listing every violation.
func ValidateEvent(raw map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(eventSchema)
	documentLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewMalformedEventError(err.Error())
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewMalformedEventError(strings.Join(errs, "; "))
	}

	return nil
}

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
)

// ValidateEmail reports whether addr looks like a deliverable address.
func ValidateEmail(addr string) bool {
	return emailRegex.MatchString(addr)
}

// ValidatePhone reports whether num is an E.164-ish phone number.
func ValidatePhone(num string) bool {
	return phoneRegex.MatchString(strings.ReplaceAll(num, " ", ""))
}
