package apierr

import (
	"fmt"
	"net/http"
)

// ValidationError reports that a request failed schema or parameter
// validation.
type ValidationError struct {
	// Status defaults to 400 when zero.
	Status int
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "validation: " + e.Detail + ": " + e.Err.Error()
	}
	return "validation: " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Malformed body sub-codes. The set is closed.
const (
	TypeEncodingUnsupported = "encoding.unsupported"
	TypeEntityParseFailed   = "entity.parse.failed"
	TypeEntityVerifyFailed  = "entity.verify.failed"
	TypeRequestAborted      = "request.aborted"
	TypeRequestSizeInvalid  = "request.size.invalid"
	TypeStreamEncodingSet   = "stream.encoding.set"
	TypeParametersTooMany   = "parameters.too.many"
	TypeCharsetUnsupported  = "charset.unsupported"
	TypeEntityTooLarge      = "entity.too.large"
)

var malformedTypes = map[string]struct{}{
	TypeEncodingUnsupported: {},
	TypeEntityParseFailed:   {},
	TypeEntityVerifyFailed:  {},
	TypeRequestAborted:      {},
	TypeRequestSizeInvalid:  {},
	TypeStreamEncodingSet:   {},
	TypeParametersTooMany:   {},
	TypeCharsetUnsupported:  {},
	TypeEntityTooLarge:      {},
}

// IsMalformedType reports whether t is one of the known sub-codes.
func IsMalformedType(t string) bool {
	_, ok := malformedTypes[t]
	return ok
}

// MalformedBodyError reports a request body that could not be decoded.
type MalformedBodyError struct {
	Type string
	Err  error
}

func Malformed(typ string, err error) *MalformedBodyError {
	return &MalformedBodyError{Type: typ, Err: err}
}

func (e *MalformedBodyError) Error() string {
	if e.Err != nil {
		return "malformed body (" + e.Type + "): " + e.Err.Error()
	}
	return "malformed body (" + e.Type + ")"
}

func (e *MalformedBodyError) Unwrap() error { return e.Err }

// DomainError is a rejection raised by business logic. Status, Code and
// Message reach the client verbatim.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func NewDomain(status int, code, message string) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message}
}

func (e *DomainError) Error() string {
	s := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DomainError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value into the chain. It is
// unclassified and always reaches the fallback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func validStatus(code int) bool {
	return code >= 400 && code <= 599 && http.StatusText(code) != ""
}
