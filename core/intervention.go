package core

import (
	"fmt"
	"strings"
)

// InterventionType is the kind of human input a tool asks for.
type InterventionType string

const (
	// InterventionValidation asks the human to confirm or reject something.
	InterventionValidation InterventionType = "validation"
	// InterventionCorrection asks the human for a corrected value.
	InterventionCorrection InterventionType = "correction"
	// InterventionClarification asks the human to resolve an ambiguity.
	InterventionClarification InterventionType = "clarification"
)

// InterventionTypes lists the supported types in a stable order.
var InterventionTypes = []InterventionType{
	InterventionValidation,
	InterventionCorrection,
	InterventionClarification,
}

// ParseInterventionType parses s case-insensitively.
func ParseInterventionType(s string) (InterventionType, error) {
	t := InterventionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown intervention type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the supported types.
func (t InterventionType) Valid() bool {
	switch t {
	case InterventionValidation, InterventionCorrection, InterventionClarification:
		return true
	default:
		return false
	}
}

// InterventionRequest is the payload of an intervention_requested event.
type InterventionRequest struct {
	CorrelationID string           `json:"correlation_id"`
	Type          InterventionType `json:"type"`
	Message       string           `json:"message"`
	RunID         string           `json:"run_id,omitempty"`
	Tool          string           `json:"tool,omitempty"`
}

// InterventionResponse is the payload of an intervention_completed event.
// Response is always the raw human answer. Data is set for correction and
// clarification and maps the type name to the answer.
type InterventionResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Type          InterventionType  `json:"type"`
	Response      string            `json:"response"`
	Data          map[string]string `json:"data,omitempty"`
}

// Approved reports whether a validation response confirms the request. Only
// an answer of "yes" (case-insensitive) counts as approval.
func (r InterventionResponse) Approved() bool {
	return strings.EqualFold(strings.TrimSpace(r.Response), "yes")
}
