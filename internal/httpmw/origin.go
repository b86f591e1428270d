package httpmw

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const defaultAllowedMethods = "GET, HEAD, PUT, PATCH, POST, DELETE"

// OriginPolicy decides which browser origins may call the API with
// credentials. It is immutable after construction.
type OriginPolicy struct {
	exact   string
	pattern *regexp.Regexp
	methods string
}

// NewOriginPolicy parses the allowed origin setting. A value wrapped in
// slashes ("/^https://.*\.example\.com$/") is a regular expression over the
// Origin header. Anything else must match exactly. An empty value allows no
// origin.
func NewOriginPolicy(allowed string) (*OriginPolicy, error) {
	allowed = strings.TrimSpace(allowed)
	p := &OriginPolicy{methods: defaultAllowedMethods}
	if len(allowed) >= 2 && strings.HasPrefix(allowed, "/") && strings.HasSuffix(allowed, "/") {
		re, err := regexp.Compile(allowed[1 : len(allowed)-1])
		if err != nil {
			return nil, fmt.Errorf("allowed origin %q: %w", allowed, err)
		}
		p.pattern = re
		return p, nil
	}
	p.exact = allowed
	return p, nil
}

// allow returns the Access-Control-Allow-Origin value for origin, or "" if
// the origin is not allowed.
func (p *OriginPolicy) allow(origin string) string {
	if origin == "" {
		return ""
	}
	if p.pattern != nil {
		if p.pattern.MatchString(origin) {
			return origin
		}
		return ""
	}
	if p.exact != "" && origin == p.exact {
		return p.exact
	}
	return ""
}

func (p *OriginPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")

		allowed := p.allow(r.Header.Get("Origin"))
		if allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			next.ServeHTTP(w, r)
			return
		}

		// preflight
		h.Add("Vary", "Access-Control-Request-Headers")
		if allowed != "" {
			h.Set("Access-Control-Allow-Methods", p.methods)
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
		}
		h.Set("Content-Length", "0")
		w.WriteHeader(http.StatusNoContent)
	})
}
