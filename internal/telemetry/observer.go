// Package telemetry carries optional per-pass observation for the compile
// pipeline. Observers only watch; a pipeline runs the same with or without
// one attached.
package telemetry

import (
	"context"
	"time"
)

// PassSample describes one finished pass.
type PassSample struct {
	Graph       string
	Index       int
	Pass        string
	Duration    time.Duration
	Populations int
	Connections int
	Probes      int
	Err         error
}

type Observer interface {
	// PassStarted may return a derived context (for example one carrying a
	// span); it is handed back to PassFinished.
	PassStarted(ctx context.Context, index int, pass string) context.Context
	PassFinished(ctx context.Context, sample PassSample)
}

type NoopObserver struct{}

func (NoopObserver) PassStarted(ctx context.Context, _ int, _ string) context.Context { return ctx }

func (NoopObserver) PassFinished(context.Context, PassSample) {}

// MultiObserver fans out to each observer in order. Nil entries are skipped.
type MultiObserver []Observer

func (m MultiObserver) PassStarted(ctx context.Context, index int, pass string) context.Context {
	for _, o := range m {
		if o != nil {
			ctx = o.PassStarted(ctx, index, pass)
		}
	}
	return ctx
}

func (m MultiObserver) PassFinished(ctx context.Context, sample PassSample) {
	for _, o := range m {
		if o != nil {
			o.PassFinished(ctx, sample)
		}
	}
}

// OrNoop returns o, or a NoopObserver when o is nil.
func OrNoop(o Observer) Observer {
	if o == nil {
		return NoopObserver{}
	}
	return o
}
