// Package body reads and decodes request bodies before routing. Decoded
// values are stored in the request context and the request body is replaced
// with a re-readable copy of the decoded bytes, so later stages and handlers
// can read it again.
//
// Failures are returned as *apierr.MalformedBodyError carrying one of the
// apierr.Type* sub-codes.
package body

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/keithlinneman/apiedge/internal/apierr"
)

const (
	DefaultBaseLimit       int64 = 100 << 10
	DefaultLimitMultiplier int64 = 10
	DefaultParameterLimit        = 1000
	DefaultTextRoutePrefix       = "/v1/callbacks/"
)

type Options struct {
	// BaseLimit is the nominal body size. Bodies up to
	// BaseLimit*LimitMultiplier are accepted.
	BaseLimit       int64
	LimitMultiplier int64
	// TextLimit caps bodies on the text route family. Defaults to the
	// JSON ceiling.
	TextLimit int64
	// TextRoutePrefix selects routes whose JSON and plain text bodies are
	// kept as raw text for the handler to interpret.
	TextRoutePrefix string
	ParameterLimit  int
	// Verify, when set, sees the raw bytes before they are parsed. A
	// non-nil error rejects the request.
	Verify func(r *http.Request, raw []byte) error
}

type Kind string

const (
	KindJSON Kind = "json"
	KindForm Kind = "form"
	KindText Kind = "text"
)

// Decoded is the parsed request body.
type Decoded struct {
	Kind Kind
	// Raw holds the body after content decoding and before charset
	// conversion.
	Raw []byte
	// JSON is a map[string]any or []any with numbers as json.Number.
	JSON any
	Form url.Values
	Text string
}

// Tree returns the decoded value in a form suitable for redaction and
// logging.
func (d *Decoded) Tree() any {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case KindJSON:
		return d.JSON
	case KindForm:
		return d.Form
	case KindText:
		return d.Text
	}
	return nil
}

type ctxKey struct{}

func WithContext(ctx context.Context, d *Decoded) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

func FromContext(ctx context.Context) (*Decoded, bool) {
	d, ok := ctx.Value(ctxKey{}).(*Decoded)
	return d, ok && d != nil
}

// ErrorWriter hands a decoding failure to the error pipeline.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type Decoder struct {
	ceiling    int64
	textLimit  int64
	textPrefix string
	paramLimit int
	verify     func(r *http.Request, raw []byte) error
}

func NewDecoder(o Options) *Decoder {
	if o.BaseLimit <= 0 {
		o.BaseLimit = DefaultBaseLimit
	}
	if o.LimitMultiplier < 1 {
		o.LimitMultiplier = DefaultLimitMultiplier
	}
	if o.ParameterLimit <= 0 {
		o.ParameterLimit = DefaultParameterLimit
	}
	if o.TextRoutePrefix == "" {
		o.TextRoutePrefix = DefaultTextRoutePrefix
	}
	d := &Decoder{
		ceiling:    o.BaseLimit * o.LimitMultiplier,
		textPrefix: o.TextRoutePrefix,
		paramLimit: o.ParameterLimit,
		verify:     o.Verify,
	}
	d.textLimit = o.TextLimit
	if d.textLimit <= 0 {
		d.textLimit = d.ceiling
	}
	return d
}

// Middleware decodes the body of every request it understands and passes
// the rest through untouched. Failures go to errs, or apierr.Write when
// errs is nil.
func (d *Decoder) Middleware(errs ErrorWriter) func(http.Handler) http.Handler {
	if errs == nil {
		errs = apierr.Write
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec, err := d.Decode(r)
			if err != nil {
				errs(w, r, err)
				return
			}
			if dec != nil {
				r = r.WithContext(WithContext(r.Context(), dec))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Decode parses the body of r if its media type is one the decoder
// handles, replacing r.Body with the decoded bytes. It returns nil, nil
// for requests it does not handle.
func (d *Decoder) Decode(r *http.Request) (*Decoded, error) {
	kind, params, ok := d.selectKind(r)
	if !ok {
		return nil, nil
	}
	if _, done := FromContext(r.Context()); done || alreadyConsumed(r) {
		return nil, apierr.Malformed(apierr.TypeStreamEncodingSet, errAlreadyRead)
	}

	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if err := checkCharset(kind, charset); err != nil {
		return nil, err
	}

	if !hasBody(r) {
		return emptyDecoded(kind), nil
	}

	limit := d.ceiling
	if kind == KindText {
		limit = d.textLimit
	}
	raw, err := readBody(r, limit)
	if err != nil {
		return nil, err
	}

	if d.verify != nil {
		if err := d.verify(r, raw); err != nil {
			return nil, apierr.Malformed(apierr.TypeEntityVerifyFailed, err)
		}
	}

	var out *Decoded
	switch kind {
	case KindJSON:
		out, err = parseJSON(raw, charset)
	case KindForm:
		out, err = parseForm(raw, d.paramLimit)
		if err == nil {
			r.PostForm = out.Form
		}
	case KindText:
		out, err = parseText(raw, charset)
	}
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	replaceBody(r, raw)
	return out, nil
}

func (d *Decoder) selectKind(r *http.Request) (Kind, map[string]string, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", nil, false
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", nil, false
	}
	isJSON := mt == "application/json" || strings.HasSuffix(mt, "+json")

	if strings.HasPrefix(r.URL.Path, d.textPrefix) && (mt == "application/json" || mt == "text/plain") {
		return KindText, params, true
	}
	switch {
	case isJSON:
		return KindJSON, params, true
	case mt == "application/x-www-form-urlencoded":
		return KindForm, params, true
	}
	return "", nil, false
}

func hasBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	return r.ContentLength != 0 || len(r.TransferEncoding) > 0
}

func emptyDecoded(kind Kind) *Decoded {
	switch kind {
	case KindJSON:
		return &Decoded{Kind: kind, JSON: map[string]any{}}
	case KindForm:
		return &Decoded{Kind: kind, Form: url.Values{}}
	default:
		return &Decoded{Kind: kind}
	}
}
