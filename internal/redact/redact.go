// Package redact scrubs sensitive values from request data before it is
// logged. Rules replace values in place on a copy and never remove keys, so
// the logged shape always matches what the client sent.
//
// Body rule paths are dot separated and anchored at the top of the tree:
//
//	body        the top-level "body" key
//	*           any key at that level
//	files[]     the "files" key, which must hold an array; the rest of the
//	            path applies to every element
//	*[].data    the "data" key of every element of every top-level array
package redact

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const Placeholder = "[REDACTED]"

type Strategy string

const (
	// Replace swaps the value for Placeholder.
	Replace Strategy = "replace"
	// Length swaps the value for Placeholder plus the original length, for
	// strings and arrays.
	Length Strategy = "length"
)

type Rule struct {
	Path    string   `yaml:"path"`
	Replace Strategy `yaml:"replace"`
}

// Config is the on-disk form of a rule set.
type Config struct {
	Headers []string `yaml:"headers"`
	Body    []Rule   `yaml:"body"`
}

// Rules is a compiled, immutable rule set safe for concurrent use.
type Rules struct {
	headers []string
	body    []compiled
}

type segment struct {
	key      string
	wildcard bool
	array    bool
}

type compiled struct {
	segs     []segment
	strategy Strategy
}

// DefaultConfig redacts credentials in headers, attachment payloads and
// free-text message bodies.
func DefaultConfig() Config {
	return Config{
		Headers: []string{"Authorization", "Cookie"},
		Body: []Rule{
			{Path: "*[].data", Replace: Replace},
			{Path: "body", Replace: Replace},
		},
	}
}

func Default() *Rules {
	r, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return r
}

func New(c Config) (*Rules, error) {
	r := &Rules{}
	for _, h := range c.Headers {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("redact: empty header name")
		}
		r.headers = append(r.headers, h)
	}
	for i, rule := range c.Body {
		segs, err := parsePath(rule.Path)
		if err != nil {
			return nil, fmt.Errorf("redact: body rule %d: %w", i, err)
		}
		st := rule.Replace
		switch st {
		case "":
			st = Replace
		case Replace, Length:
		default:
			return nil, fmt.Errorf("redact: body rule %d: unknown strategy %q", i, st)
		}
		r.body = append(r.body, compiled{segs: segs, strategy: st})
	}
	return r, nil
}

// Parse reads a YAML rule set.
func Parse(b []byte) (*Rules, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("redact: parse rules: %w", err)
	}
	return New(c)
}

func LoadFile(path string) (*Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("redact: read rules: %w", err)
	}
	return Parse(b)
}

func parsePath(p string) ([]segment, error) {
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(p, ".")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		var s segment
		if strings.HasSuffix(part, "[]") {
			s.array = true
			part = strings.TrimSuffix(part, "[]")
		}
		switch part {
		case "":
			return nil, fmt.Errorf("path %q has an empty segment", p)
		case "*":
			s.wildcard = true
		default:
			s.key = part
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// Headers returns a loggable copy of h with one value per header, multiple
// values joined by ", ". Keys are matched case-insensitively.
func (r *Rules) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if r.sensitiveHeader(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

func (r *Rules) sensitiveHeader(k string) bool {
	for _, h := range r.headers {
		if strings.EqualFold(h, k) {
			return true
		}
	}
	return false
}

// Body returns a redacted copy of a decoded body tree. The input is not
// modified. Values the rules do not understand are returned as they are.
func (r *Rules) Body(tree any) any {
	out := deepCopy(tree)
	for _, c := range r.body {
		out = apply(out, c.segs, c.strategy)
	}
	return out
}

func apply(node any, segs []segment, st Strategy) any {
	if len(segs) == 0 {
		return st.replace(node)
	}
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	seg := segs[0]
	for k, v := range m {
		if !seg.wildcard && seg.key != k {
			continue
		}
		if !seg.array {
			m[k] = apply(v, segs[1:], st)
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		for i := range arr {
			arr[i] = apply(arr[i], segs[1:], st)
		}
	}
	return m
}

func (s Strategy) replace(v any) any {
	if s != Length {
		return Placeholder
	}
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%s len=%d", Placeholder, len(t))
	case []any:
		return fmt.Sprintf("%s len=%d", Placeholder, len(t))
	default:
		return Placeholder
	}
}

// deepCopy copies the container types a decoded body can hold. Form values
// become map[string]any so the same rules apply to them.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		a := make([]any, len(t))
		for i, e := range t {
			a[i] = deepCopy(e)
		}
		return a
	case url.Values:
		return formTree(t)
	case map[string][]string:
		return formTree(t)
	default:
		return v
	}
}

func formTree(vs map[string][]string) map[string]any {
	m := make(map[string]any, len(vs))
	for k, v := range vs {
		if len(v) == 1 {
			m[k] = v[0]
			continue
		}
		a := make([]any, len(v))
		for i, s := range v {
			a[i] = s
		}
		m[k] = a
	}
	return m
}

// HeaderNames lists the sensitive header names, sorted.
func (r *Rules) HeaderNames() []string {
	out := append([]string(nil), r.headers...)
	sort.Strings(out)
	return out
}
