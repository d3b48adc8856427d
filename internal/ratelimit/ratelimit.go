package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Counter increments a key and reports the count within the current window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) Counter {
	return &redisCounter{client: client}
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Limiter is a fixed-window limiter keyed by client address.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
	prefix  string
	trusted []*net.IPNet
	logger  *zap.Logger
}

func New(counter Counter, prefix string, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	if window < time.Second {
		window = time.Minute
	}
	return &Limiter{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		logger:  logger,
	}
}

// TrustProxies lists the peers whose X-Forwarded-For header is honoured.
// Forwarded headers from any other peer are ignored.
func (l *Limiter) TrustProxies(cidrs []string) error {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.Contains(c, "/") {
			if ip := net.ParseIP(c); ip != nil && ip.To4() != nil {
				c += "/32"
			} else {
				c += "/128"
			}
		}
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return fmt.Errorf("invalid trusted proxy %q: %w", c, err)
		}
		nets = append(nets, n)
	}
	l.trusted = nets
	return nil
}

// Middleware answers 429 once a client exceeds the limit. Counter failures let the request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.counter == nil || l.limit <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := time.Now().Unix() / int64(l.window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, l.clientIP(r), window)

		count, err := l.counter.Incr(r.Context(), key, l.window)
		if err != nil {
			l.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(l.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(l.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the connection peer, or the nearest untrusted X-Forwarded-For hop
// when the peer is a trusted proxy.
func (l *Limiter) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !l.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if net.ParseIP(hop) == nil {
			break
		}
		if !l.isTrusted(hop) {
			return hop
		}
	}
	return peer
}

func (l *Limiter) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range l.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
