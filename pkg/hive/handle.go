// Package hive writes Arrow records to a Hive-like warehouse and reads
// query results back.
//
// A Writer or Reader is a connection handle: it is created disconnected,
// Connect opens a warehouse client through an adapters.Factory and pings
// it, and Disconnect closes the client. Every operation requires a
// connected handle. Handles do no internal locking; run one operation at
// a time per handle.
package hive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/ingest"
	"github.com/canonica-labs/rhive/internal/observability"
)

// State is the connection state of a handle.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Option configures a Writer or Reader.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	recorder observability.Recorder
	retry    adapters.RetryConfig
	loader   *ingest.Loader
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets where operation entries go. Default: discarded.
func WithRecorder(r observability.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithRetryConfig overrides the connection retry policy. MaxAttempts
// defaults to Config.RetryAttempts.
func WithRetryConfig(cfg adapters.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithLoader sets the loader a Writer uses. Default: inline INSERT
// batches with default options. Readers ignore it.
func WithLoader(l *ingest.Loader) Option {
	return func(o *options) {
		if l != nil {
			o.loader = l
		}
	}
}

type handle struct {
	cfg     Config
	factory adapters.Factory
	opts    options

	client adapters.Client
	state  State
}

func newHandle(cfg Config, factory adapters.Factory, opts []Option) handle {
	o := options{
		logger:   zap.NewNop(),
		recorder: observability.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retry.MaxAttempts <= 0 {
		o.retry.MaxAttempts = cfg.RetryAttempts
	}
	if o.loader == nil {
		o.loader = ingest.NewLoader(ingest.Inline, ingest.Options{Logger: o.logger})
	}
	return handle{cfg: cfg, factory: factory, opts: o}
}

// Config returns a copy of the handle's configuration.
func (h *handle) Config() Config {
	return h.cfg
}

// State returns the connection state.
func (h *handle) State() State {
	return h.state
}

// IsConnected reports whether the handle is connected.
func (h *handle) IsConnected() bool {
	return h.state == Connected
}

// Connect opens the warehouse client and pings it, retrying transient
// failures. Connecting a connected handle is a no-op.
func (h *handle) Connect(ctx context.Context) error {
	if h.state == Connected {
		return nil
	}
	if err := h.cfg.Validate(); err != nil {
		return err
	}
	if h.factory == nil {
		return errors.NewInvalidArgument("factory", "no warehouse client factory configured")
	}

	address := h.cfg.ConnectionOptions().Address()
	client, err := h.factory(ctx, h.cfg.ConnectionOptions())
	if err != nil {
		return errors.NewConnectionFailed(address, 1, err)
	}

	result := adapters.ExecuteWithRetry(ctx, h.opts.retry, func() error {
		pingCtx, cancel := adapters.WithTimeout(ctx, h.cfg.ConnectTimeout)
		defer cancel()
		return client.Ping(pingCtx)
	})
	if !result.Success {
		if cerr := client.Close(); cerr != nil {
			h.opts.logger.Warn("closing client after failed connect", zap.Error(cerr))
		}
		return errors.NewConnectionFailed(address, result.Attempts, &adapters.RetryableError{Result: result})
	}

	h.client = client
	h.state = Connected
	h.opts.logger.Info("connected",
		zap.String("config", h.cfg.String()),
		zap.String("transport", client.Name()),
		zap.String("attempts", result.String()))
	return nil
}

// Disconnect closes the client. Disconnecting a disconnected handle is a
// no-op. The handle is disconnected even when closing fails.
func (h *handle) Disconnect() error {
	if h.state == Disconnected {
		return nil
	}
	client := h.client
	h.client = nil
	h.state = Disconnected

	if err := client.Close(); err != nil {
		return err
	}
	h.opts.logger.Info("disconnected", zap.String("host", h.cfg.Host))
	return nil
}

func (h *handle) require(operation string) (adapters.Client, error) {
	if h.state != Connected || h.client == nil {
		return nil, errors.NewNotConnected(operation)
	}
	return h.client, nil
}

func newOperation(kind, table string) observability.OperationEntry {
	return observability.OperationEntry{
		OperationID: uuid.NewString(),
		Kind:        kind,
		Table:       table,
		StartedAt:   time.Now(),
	}
}

// record completes entry from err and hands it to the recorder. Recorder
// failures are logged and never change the operation's result.
func (h *handle) record(ctx context.Context, entry observability.OperationEntry, err error) {
	entry.Duration = time.Since(entry.StartedAt)
	switch {
	case err != nil:
		entry.Outcome = observability.OutcomeError
		entry.Error = err.Error()
	case entry.Outcome == "":
		entry.Outcome = observability.OutcomeSuccess
	}
	if rerr := h.opts.recorder.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		h.opts.logger.Warn("recording operation failed",
			zap.String("operation_id", entry.OperationID),
			zap.Error(rerr))
	}
}
