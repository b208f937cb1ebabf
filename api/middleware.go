package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/payroll"
)

// RequestLogger logs one line per request with zap fields. 5xx log at
// error level and 4xx at warn.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("latency", time.Since(start)),
			}
			switch {
			case status >= 500:
				logger.Error("request failed", fields...)
			case status >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}

// =============================================================================
// TENANT AND ROLE SCOPING
// =============================================================================

type bookKey struct{}

// loadBook resolves {employer} once per request.
func (h *Handler) loadBook(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		book, err := h.Directory.Book(payroll.EmployerID(chi.URLParam(r, "employer")))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bookKey{}, book)))
	})
}

func bookFrom(r *http.Request) *payroll.Book {
	return r.Context().Value(bookKey{}).(*payroll.Book)
}

func caller(r *http.Request) string {
	c, _ := CallerFrom(r.Context())
	return c
}

func isOwner(r *http.Request) bool {
	return caller(r) == bookFrom(r).Employer().Owner
}

func isSelf(r *http.Request) bool {
	return caller(r) == chi.URLParam(r, "employee")
}

func requireOwner(next http.Handler) http.Handler {
	return guard(next, isOwner)
}

func requireSelf(next http.Handler) http.Handler {
	return guard(next, isSelf)
}

func requireOwnerOrSelf(next http.Handler) http.Handler {
	return guard(next, func(r *http.Request) bool { return isOwner(r) || isSelf(r) })
}

func guard(next http.Handler, allowed func(*http.Request) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowed(r) {
			writeError(w, http.StatusForbidden, "Forbidden", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
