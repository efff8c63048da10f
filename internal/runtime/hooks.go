package runtime

import (
	"context"
	"time"

	"github.com/drblury/asyncflow/internal/runtime/logging"
	"github.com/drblury/asyncflow/transport"
)

// DispatchContext provides information about a dispatch to hooks.
type DispatchContext struct {
	// OperationID is the id of the operation being dispatched.
	OperationID string
	// Verb is publish or subscribe.
	Verb transport.Verb
	// ServerName is the document server the dispatch targets.
	ServerName string
	// Protocol is the protocol the handler was looked up with.
	Protocol string
	// Channel is the interpolated channel address.
	Channel string
	// MessageName is the selected message, empty for subscriptions.
	MessageName string
	// CorrelationID is the evaluated correlation id, if any.
	CorrelationID string
	// Context is the context of the call.
	Context context.Context
	// StartedAt is when the dispatch started.
	StartedAt time.Time
	// Duration is how long the dispatch took (only set in OnDone and OnError).
	Duration time.Duration
}

// DispatchHooks defines callbacks for dispatch lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type DispatchHooks struct {
	// OnStart is called once the operation context is built, right before the
	// protocol handler is invoked.
	OnStart func(ctx DispatchContext)

	// OnDone is called when the protocol handler returns without error.
	OnDone func(ctx DispatchContext)

	// OnError is called when resolution or the protocol handler fails. Fields
	// that were not resolved before the failure are empty.
	OnError func(ctx DispatchContext, err error)
}

// Merge combines two DispatchHooks, creating a new DispatchHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h DispatchHooks) start(ctx DispatchContext) {
	if h.OnStart != nil {
		h.OnStart(ctx)
	}
}

func (h DispatchHooks) finish(ctx DispatchContext, err error) {
	if err != nil {
		if h.OnError != nil {
			h.OnError(ctx, err)
		}
		return
	}
	if h.OnDone != nil {
		h.OnDone(ctx)
	}
}

// LoggingHooks returns pre-built hooks that log dispatch lifecycle events.
func LoggingHooks(logger logging.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			logger.Debug("Dispatch started", logging.LogFields{
				"operation": ctx.OperationID,
				"verb":      string(ctx.Verb),
				"protocol":  ctx.Protocol,
				"channel":   ctx.Channel,
				"message":   ctx.MessageName,
			})
		},
		OnDone: func(ctx DispatchContext) {
			logger.Info("Dispatch completed", logging.LogFields{
				"operation":   ctx.OperationID,
				"verb":        string(ctx.Verb),
				"protocol":    ctx.Protocol,
				"channel":     ctx.Channel,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnError: func(ctx DispatchContext, err error) {
			logger.Error("Dispatch failed", err, logging.LogFields{
				"operation":   ctx.OperationID,
				"verb":        string(ctx.Verb),
				"protocol":    ctx.Protocol,
				"channel":     ctx.Channel,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that report dispatch counts.
func MetricsHooks(onStart, onDone, onError func(operationID, protocol string)) DispatchHooks {
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			if onStart != nil {
				onStart(ctx.OperationID, ctx.Protocol)
			}
		},
		OnDone: func(ctx DispatchContext) {
			if onDone != nil {
				onDone(ctx.OperationID, ctx.Protocol)
			}
		},
		OnError: func(ctx DispatchContext, err error) {
			if onError != nil {
				onError(ctx.OperationID, ctx.Protocol)
			}
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on dispatch errors.
func AlertingHooks(alertFunc func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{
		OnError: alertFunc,
	}
}
