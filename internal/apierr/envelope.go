package apierr

// Kind is the classification a resolved error fell into.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindMalformedBody Kind = "malformed_body"
	KindDomain        Kind = "domain"
	KindUnclassified  Kind = "unclassified"
)

// Client-visible codes.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeMalformedRequest = "malformed_request"
	CodeInternalServer   = "internal_server"
)

// Envelope is the complete error body sent to clients.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Resolution is what a resolver decided for an error.
type Resolution struct {
	Status   int
	Kind     Kind
	Envelope Envelope
	// SubCode carries the malformed-body detail for logs and metrics. It is
	// never sent to the client.
	SubCode string
}
