package apierr

import (
	"context"
	"errors"
	"sync"

	"github.com/keithlinneman/apiedge/internal/log"
)

type logEntry struct {
	level string
	msg   string
	err   error
	kv    []any
}

type spyLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (s *spyLogger) With(...any) log.Logger { return s }
func (s *spyLogger) Sync() error            { return nil }

func (s *spyLogger) add(e logEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) {
	s.add(logEntry{level: "debug", msg: msg, kv: kv})
}
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any) {
	s.add(logEntry{level: "info", msg: msg, kv: kv})
}
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any) {
	s.add(logEntry{level: "warn", msg: msg, kv: kv})
}
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.add(logEntry{level: "error", msg: msg, err: err, kv: kv})
}

func (s *spyLogger) byLevel(level string) []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []logEntry
	for _, e := range s.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func kvValue(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

type spyReporter struct {
	mu   sync.Mutex
	errs []error
}

func (s *spyReporter) Report(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *spyReporter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

type observed struct{ kind, code, subCode string }

type spyObserver struct {
	mu  sync.Mutex
	got []observed
}

func (s *spyObserver) ObserveError(kind, code, subCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, observed{kind, code, subCode})
}

var errBoom = errors.New("boom")
