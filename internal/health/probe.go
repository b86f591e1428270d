package health

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/apiedge/internal/xerrors"
)

// Probe is evaluated at request time. nil means ok, anything else is the
// failure reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a probe with a constant answer.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// ShutdownGate fails readiness once Drain is called so the load balancer
// stops routing here before the listeners close. The zero value is open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Drain closes the gate. Later calls replace the reason.
func (g *ShutdownGate) Drain(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return xerrors.New(*r)
		}
		return nil
	}
}
