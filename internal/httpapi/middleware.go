package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"rainshop/internal/domain"
	"rainshop/internal/store"
)

// TokenResolver maps an API token to its user.
type TokenResolver interface {
	UserIDForToken(ctx context.Context, key string) (int64, error)
}

type userKey struct{}

func withUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// userFrom returns the authenticated user set by requireUser.
func userFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userKey{}).(int64)
	return id
}

// requireUser authenticates "Authorization: Token <key>" requests.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, key, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Token") || strings.TrimSpace(key) == "" {
			h.writeError(w, r, domain.ErrUnauthorized("Authentication credentials were not provided."))
			return
		}

		userID, err := h.tokens.UserIDForToken(r.Context(), strings.TrimSpace(key))
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, r, domain.ErrUnauthorized("Invalid token."))
			return
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID)))
	})
}

// accessLog logs one line per request through zap.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
