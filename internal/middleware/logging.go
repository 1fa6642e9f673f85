package middleware

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dukerupert/chorekeeper/internal/auth"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack keeps websocket upgrades working behind the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil {
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// RequestLogger returns middleware that logs each HTTP request with method,
// path, status code, duration, remote IP and, once authenticated, the actor.
// Mount it outside RequireActor; the actor is read from the context the inner
// handlers saw.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			actor := &actorSlot{}

			next.ServeHTTP(rec, r.WithContext(withActorSlot(r.Context(), actor)))

			duration := time.Since(start)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
				slog.String("remote", RealIP(r)),
			}
			if actor.id != "" {
				attrs = append(attrs, slog.String("actor", actor.id))
			}

			switch {
			case rec.status >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
			case rec.status >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
			}
		})
	}
}

// actorSlot lets RequireActor report the authenticated user back to the
// logger wrapped around it.
type actorSlot struct {
	id string
}

type actorSlotKey struct{}

func withActorSlot(ctx context.Context, s *actorSlot) context.Context {
	return context.WithValue(ctx, actorSlotKey{}, s)
}

// noteActor records the actor of ctx in the enclosing RequestLogger, if any.
func noteActor(ctx context.Context) {
	if s, ok := ctx.Value(actorSlotKey{}).(*actorSlot); ok {
		s.id = auth.UserID(ctx)
	}
}
