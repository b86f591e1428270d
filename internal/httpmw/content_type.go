package httpmw

import (
	"net/http"
	"strings"
)

// SNSMessageTypeHeader is set by Amazon SNS on every HTTP delivery. SNS
// posts JSON as text/plain.
const SNSMessageTypeHeader = "X-Amz-Sns-Message-Type"

// NormalizeContentType rewrites Content-Type to application/json when the
// request carries the sentinel header, so the body decoder treats it as
// JSON. The body is not touched.
func NormalizeContentType(sentinel string) Middleware {
	if sentinel == "" {
		sentinel = SNSMessageTypeHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasHeader(r.Header, sentinel) {
				r.Header.Set("Content-Type", "application/json")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hasHeader also matches keys that bypassed canonicalisation.
func hasHeader(h http.Header, name string) bool {
	if _, ok := h[http.CanonicalHeaderKey(name)]; ok {
		return true
	}
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
