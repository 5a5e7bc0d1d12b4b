package shopify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GraphQLError is one entry of a response-level errors list.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// GraphQLErrors is a response-level error list.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, g := range e {
		msgs = append(msgs, g.Message)
	}
	return "shopify: graphql errors: " + strings.Join(msgs, "; ")
}

// Messages joins the error messages with sep.
func (e GraphQLErrors) Messages(sep string) string {
	msgs := make([]string, 0, len(e))
	for _, g := range e {
		msgs = append(msgs, g.Message)
	}
	return strings.Join(msgs, sep)
}

// UserError is a mutation-level validation error. Field elements are
// strings or list positions.
type UserError struct {
	Field   []json.RawMessage `json:"field,omitempty"`
	Message string            `json:"message"`
}

// FieldPath renders the field path as plain strings.
func (u UserError) FieldPath() []string {
	out := make([]string, 0, len(u.Field))
	for _, raw := range u.Field {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(raw))
	}
	return out
}

// UserErrors reports rejected mutation inputs.
type UserErrors struct {
	Action string
	Errors []UserError
}

func (e *UserErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, u := range e.Errors {
		field := strings.Join(u.FieldPath(), ".")
		if field == "" {
			parts = append(parts, u.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, u.Message))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("shopify: %s failed with user errors", e.Action)
	}
	return fmt.Sprintf("shopify: %s failed: %s", e.Action, strings.Join(parts, "; "))
}

// BulkOperationError is a bulk export that ended in a non-completed state.
type BulkOperationError struct {
	ID        string
	Status    string
	ErrorCode string
}

func (e *BulkOperationError) Error() string {
	return fmt.Sprintf("shopify: bulk operation %s ended with status %s (error code %s)", e.ID, e.Status, e.ErrorCode)
}
