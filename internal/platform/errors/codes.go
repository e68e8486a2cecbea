// Package errors provides structured error handling for the coordination engine.
package errors

import "net/http"

// Code is a machine-readable error code surfaced verbatim to clients.
type Code string

const (
	// CodeUnknown represents an unclassified internal error.
	CodeUnknown Code = "UNKNOWN"

	// CodeUnauthorized covers missing, malformed, or unresolvable bearer
	// secrets and failed claims.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeForbidden covers authenticated agents acting on sessions they do
	// not participate in.
	CodeForbidden Code = "FORBIDDEN"

	// CodeNotFound covers unknown sessions, agents, and templates.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidRequest covers schema-level request malformedness.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// CodeInvalidAction covers actions outside the legal set, actions on
	// waiting or terminal sessions, and out-of-turn sequential submissions.
	CodeInvalidAction Code = "INVALID_ACTION"

	// CodeAlreadyActed covers simultaneous-template roles that exhausted
	// their legal actions for the current phase.
	CodeAlreadyActed Code = "ALREADY_ACTED"

	// CodeConflict covers sequential-template tick mismatches and attempts
	// to fill an already-bound role.
	CodeConflict Code = "CONFLICT"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidRequest, CodeInvalidAction, CodeAlreadyActed:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
