// Package logger provides adapters for the logging interface.
package logger

import (
	"context"
)

// Logger defines the structured logging interface used throughout the
// application. External loggers implementing these methods can be wrapped
// with ZapAdapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// ZapAdapter adapts an external structured logger to the per-package logging
// interfaces the adapters and usecases declare.
type ZapAdapter struct {
	log Logger
}

// NewZapAdapter creates a new ZapAdapter wrapping the given logger.
func NewZapAdapter(log Logger) *ZapAdapter {
	return &ZapAdapter{log: log}
}

// Info logs an info message.
func (a *ZapAdapter) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	a.log.Info(ctx, msg, fields)
}

// Debug logs a debug message.
func (a *ZapAdapter) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	a.log.Debug(ctx, msg, fields)
}

// Warn logs a warning message.
func (a *ZapAdapter) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	a.log.Warn(ctx, msg, fields)
}

// Error logs an error message.
func (a *ZapAdapter) Error(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	a.log.Error(ctx, msg, err, fields)
}

// Nop is a logger that discards everything. Useful as a default in tests.
type Nop struct{}

// NewNop creates a no-op logger.
func NewNop() *Nop { return &Nop{} }

func (*Nop) Info(context.Context, string, map[string]interface{})         {}
func (*Nop) Debug(context.Context, string, map[string]interface{})        {}
func (*Nop) Warn(context.Context, string, map[string]interface{})         {}
func (*Nop) Error(context.Context, string, error, map[string]interface{}) {}
