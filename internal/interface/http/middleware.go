package http

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
	codeRateLimited = "RATE_LIMITED"
)

// requestID assigns each request an id and a request-scoped logger.
func requestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(headerRequestID, id)

		reqLog := log.WithRequestID(id)
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			reqLog = reqLog.With(logger.String("trace_id", sc.TraceID().String()))
		}
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		c.Next()
	}
}

func requestIDOf(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// requestLogger logs every request once it has been served.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.ClientIP()),
			logger.String(logger.RequestIDKey, requestIDOf(c)),
		}
		if id := identityOf(c); id.UserID != "" {
			fields = append(fields, logger.UserID(id.UserID))
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// recovery turns a panic into a 500 envelope.
func recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			logger.Any("error", recovered),
			logger.String("stack", string(debug.Stack())),
			logger.String("path", c.Request.URL.Path),
			logger.String(logger.RequestIDKey, requestIDOf(c)),
		)
		abortWithError(c, fmt.Errorf("panic: %v", recovered))
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", headerRequestID},
		ExposeHeaders: []string{headerRequestID},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rps     rate.Limit
	burst   int
	idle    time.Duration
	sweepAt int
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		sweepAt: 1024,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *clientLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.sweepAt {
			l.sweep(now)
		}
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds mu.
func (l *clientLimiter) sweep(now time.Time) {
	for k, b := range l.clients {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.clients, k)
		}
	}
}

func rateLimit(l *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			abortWithError(c, errRateLimited)
			return
		}
		c.Next()
	}
}

var errRateLimited = shared.NewDomainError("request", "RateLimit", shared.ErrServiceUnavailable,
	codeRateLimited, "too many requests, please try again later")
