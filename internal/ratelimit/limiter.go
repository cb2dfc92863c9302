package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window request counter kept in Redis, shared by every
// replica of the service.
type Limiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func New(rdb redis.Cmdable, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allow counts one request for key in the current window and reports whether
// it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := l.now().Truncate(l.window).Unix()
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}

	return incr.Val() <= int64(l.limit), nil
}

// Middleware answers 429 once a client exceeds the limit. A Redis failure
// lets the request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		allowed, err := l.Allow(ctx, clientIP(r))
		cancel()
		if err != nil {
			l.logger.Warn("rate limiter unavailable, allowing request", "error", err)
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":  "error",
				"message": "Too many requests, please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
