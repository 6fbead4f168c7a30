package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/redis"
)

// RateLimit applies a fixed-window limit per client IP to write endpoints.
// Redis failures fail open so a cache outage never blocks stock operations.
func RateLimit(scope string, limit int64, window time.Duration, rc *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rc == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := rc.FixedWindowAllow(r.Context(), scope+":"+clientIP(r), limit, window)
			if err != nil {
				if logg != nil {
					ctx := logg.WithField(r.Context(), "scope", scope)
					logg.Warn(ctx, "rate limit check failed, allowing request")
				}
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				err := pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests").WithDetails(map[string]any{
					"scope": scope,
					"count": count,
					"limit": limit,
				})
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
