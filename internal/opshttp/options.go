package opshttp

import (
	"net/http"

	"github.com/keithlinneman/apiedge/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic runs for every recovered panic on the ops port, e.g. to bump
	// the panic counter.
	OnPanic func()
}
