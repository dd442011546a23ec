// Package normalize turns adapter payloads and failures into canonical envelopes.
//
// A Builder collects per-adapter success and error mappers at startup; Build
// freezes them into an immutable Registry that is safe for concurrent use.
// Mapping never fails: a missing, failing or panicking mapper falls back to
// the default mapper.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"recon/internal/search/models"
)

// DefaultSuccessMessage is the message of the default success envelope.
const DefaultSuccessMessage = "Operation completed successfully"

// Envelope is the canonical adapter outcome.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code,omitempty"`
	Data      models.Document `json:"data"`
	Metadata  models.Document `json:"metadata,omitempty"`
}

// Kinded errors name their own category for error_code.
type Kinded interface {
	Kind() string
}

// DefaultSuccess wraps raw unchanged.
func DefaultSuccess(raw models.Document) Envelope {
	return Envelope{Success: true, Message: DefaultSuccessMessage, Data: raw}
}

// DefaultError reports the error message and its kind.
func DefaultError(err error) Envelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Envelope{Success: false, Message: msg, ErrorCode: ErrorKind(err)}
}

// ErrorKind names the category of err: the Kind of a Kinded error in the chain,
// Timeout or Canceled for context errors, otherwise the dynamic type name.
func ErrorKind(err error) string {
	if err == nil {
		return "Error"
	}
	var k Kinded
	if errors.As(err, &k) && k.Kind() != "" {
		return k.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	return typeName(err)
}

func typeName(err error) string {
	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		return "Error"
	}
	return name
}
