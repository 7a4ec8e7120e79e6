package hive

import (
	"context"

	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
)

// WithWriter connects a Writer, runs fn and disconnects on every exit
// path. fn's error is returned unchanged. A disconnect failure is
// returned only when fn succeeded; otherwise it is logged.
func WithWriter(ctx context.Context, cfg Config, factory adapters.Factory, fn func(*Writer) error, opts ...Option) error {
	w := NewWriter(cfg, factory, opts...)
	return scoped(ctx, &w.handle, func() error { return fn(w) })
}

// WithReader is WithWriter for a Reader.
func WithReader(ctx context.Context, cfg Config, factory adapters.Factory, fn func(*Reader) error, opts ...Option) error {
	r := NewReader(cfg, factory, opts...)
	return scoped(ctx, &r.handle, func() error { return fn(r) })
}

func scoped(ctx context.Context, h *handle, fn func() error) (err error) {
	if err := h.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		derr := h.Disconnect()
		if derr == nil {
			return
		}
		if err == nil {
			err = derr
			return
		}
		h.opts.logger.Warn("disconnect failed after error", zap.Error(derr), zap.NamedError("cause", err))
	}()
	return fn()
}
