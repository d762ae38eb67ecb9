package submit

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// TransportError means the service could not be reached or the response
// could not be read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: could not reach the analysis service: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError is a response the service sent but that carries no result.
// Structured is true when Detail came from the body's "detail" field.
type ServiceError struct {
	StatusCode int
	Detail     string
	Structured bool
}

func (e *ServiceError) Error() string { return e.Detail }

func genericMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("analysis service error (%d %s)", status, text)
	}
	return fmt.Sprintf("analysis service error (%d)", status)
}

// serviceError builds the error for a non-success response.
func serviceError(status int, body []byte) *ServiceError {
	if gjson.ValidBytes(body) {
		if d := gjson.GetBytes(body, "detail"); d.Type == gjson.String && d.Str != "" {
			return &ServiceError{StatusCode: status, Detail: d.Str, Structured: true}
		}
	}
	return &ServiceError{StatusCode: status, Detail: genericMessage(status)}
}
