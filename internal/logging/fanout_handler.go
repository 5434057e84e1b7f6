package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler delivers each record to every member handler that accepts
// its level. Used to mirror console output into the run's JSON log file.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	members := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			members = append(members, h)
		}
	}
	switch len(members) {
	case 0:
		return NoopHandler{}
	case 1:
		return members[0]
	}
	return &fanoutHandler{handlers: members}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, member := range h.handlers {
		if member.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, member := range h.handlers {
		if !member.Enabled(ctx, record.Level) {
			continue
		}
		if err := member.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(member slog.Handler) slog.Handler { return member.WithAttrs(attrs) })
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(member slog.Handler) slog.Handler { return member.WithGroup(name) })
}

func (h *fanoutHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, member := range h.handlers {
		next[i] = fn(member)
	}
	return &fanoutHandler{handlers: next}
}
