package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns the attributes describing the current session.
// It is called once per emitted record.
type ContextProvider func() []slog.Attr

// SessionGroup holds the provider attributes on every record.
const SessionGroup = "possession"

// Fanout sends each record to every handler enabled for its level.
type Fanout []slog.Handler

// NewFanout drops nil handlers.
func NewFanout(handlers ...slog.Handler) Fanout {
	f := make(Fanout, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			f = append(f, h)
		}
	}
	return f
}

func (f Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to all handlers even when some fail and returns the
// joined failures.
func (f Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f Fanout) each(fn func(slog.Handler) slog.Handler) Fanout {
	out := make(Fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// SessionHandler adds the provider's attributes to every record under
// SessionGroup. Nothing is added while the provider returns none.
type SessionHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewSessionHandler(inner slog.Handler, provider ContextProvider) *SessionHandler {
	return &SessionHandler{inner: inner, provider: provider}
}

func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		if attrs := h.provider(); len(attrs) > 0 {
			args := make([]any, len(attrs))
			for i, a := range attrs {
				args[i] = a
			}
			r.AddAttrs(slog.Group(SessionGroup, args...))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SessionHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SessionHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
