package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/apiedge/internal/log"
)

type lineLogger struct {
	lines []string
}

func (l *lineLogger) With(...any) log.Logger { return l }
func (l *lineLogger) Debug(_ context.Context, msg string, _ ...any) {
	l.lines = append(l.lines, "debug "+msg)
}
func (l *lineLogger) Info(_ context.Context, msg string, _ ...any) {
	l.lines = append(l.lines, "info "+msg)
}
func (l *lineLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.lines = append(l.lines, "warn "+msg)
}
func (l *lineLogger) Error(_ context.Context, _ error, msg string, _ ...any) {
	l.lines = append(l.lines, "error "+msg)
}
func (l *lineLogger) Sync() error { return nil }

func TestStart_Disabled(t *testing.T) {
	ll := &lineLogger{}
	ctx := log.WithContext(context.Background(), ll)

	// nonsense values are ignored while disabled
	stop, err := Start(ctx, Options{
		Enabled:              false,
		AuthToken:            "secret",
		ProfileMutexFraction: 999,
		BlockProfileRate:     999,
	})
	if err != nil {
		t.Fatalf("disabled should never error, got: %v", err)
	}
	stop()
	stop()

	if len(ll.lines) != 1 || ll.lines[0] != "info pyroscope disabled" {
		t.Fatalf("lines = %v", ll.lines)
	}
}

func TestStart_Enabled_EmptyServerAddress(t *testing.T) {
	ll := &lineLogger{}
	ctx := log.WithContext(context.Background(), ll)

	stop, err := Start(ctx, Options{Enabled: true, AppName: "apiedge", TenantID: "t"})
	if err == nil || !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("err = %v, want invalid server address", err)
	}
	if stop == nil {
		t.Fatal("stop must be non-nil even on error")
	}
	stop()

	if len(ll.lines) != 1 || ll.lines[0] != "error pyroscope options" {
		t.Fatalf("lines = %v", ll.lines)
	}
}

func TestStart_Enabled_UnreachableServer(t *testing.T) {
	// the agent connects lazily, so only the stop contract is asserted
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "http://localhost:0/nonexistent",
		AppName:       "apiedge",
	})
	if stop == nil {
		t.Fatal("stop func should always be non-nil")
	}
	stop()
	stop()
}

func TestAgentLogger_Levels(t *testing.T) {
	ll := &lineLogger{}
	a := agentLogger{ctx: context.Background(), L: ll}

	a.Debugf("upload %d", 1)
	a.Infof("started %s", "cpu")
	a.Errorf("upload failed: %v", "timeout")

	want := []string{"debug upload 1", "info started cpu", "warn upload failed: timeout"}
	if strings.Join(ll.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %v, want %v", ll.lines, want)
	}
}
