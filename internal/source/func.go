package source

import (
	"context"

	"github.com/markcallen/keylog/internal/keylog"
)

// Func adapts a pair of functions to keylog.Source.
type Func struct {
	Name    string
	StartFn func(ctx context.Context, sink keylog.Sink) error
	StopFn  func() error
}

func (f *Func) ID() string { return f.Name }

func (f *Func) Start(ctx context.Context, sink keylog.Sink) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx, sink)
}

func (f *Func) Stop() error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn()
}
