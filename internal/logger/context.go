package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	registrationIDKey
)

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRegistrationID stores the registration a provisioning run works on.
// Every record logged with the returned context carries it.
func WithRegistrationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, registrationIDKey, id)
}

// RegistrationID returns the registration ID stored in ctx, or "".
func RegistrationID(ctx context.Context) string {
	id, _ := ctx.Value(registrationIDKey).(string)
	return id
}

// contextHandler copies correlation IDs from the record context into the
// record. It must run before any handler that drops the context.
type contextHandler struct {
	inner slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if id := RequestID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	if id := RegistrationID(ctx); id != "" {
		rec.AddAttrs(slog.String("registration_id", id))
	}
	return h.inner.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{inner: h.inner.WithGroup(name)}
}
