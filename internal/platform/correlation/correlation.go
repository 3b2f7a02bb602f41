package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
)

// HeaderName is the request header a caller may use to supply its own ID.
const HeaderName = "X-Request-ID"

type (
	requestKey struct{}
	sessionKey struct{}
)

var validID = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// NewID generates a 16-character hex request ID.
func NewID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromHeader returns the inbound request ID when it is safe to log, or a
// fresh one otherwise.
func FromHeader(value string) string {
	if validID.MatchString(value) {
		return value
	}
	return NewID()
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestKey{}).(string)
	return id, ok && id != ""
}

// WithSession tags ctx with the browser session the request belongs to.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func Session(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// Handler adds "request_id" and "session" attributes to every record whose
// context carries them.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	if sid, ok := Session(ctx); ok {
		r.AddAttrs(slog.String("session", shorten(sid)))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}

// shorten keeps session ids out of the logs in full.
func shorten(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}
