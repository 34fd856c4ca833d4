package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = make(map[string]int)
	}
	l.seen[key]++
	return l.seen[key] <= limit, nil
}

func newLimitedEngine(cfg RateLimitConfig, limiter RateLimiter) *gin.Engine {
	engine := gin.New()
	engine.Use(RateLimit(cfg, limiter))
	engine.GET("/v1/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func hit(engine *gin.Engine) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	engine.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	limiter := &countingLimiter{}
	engine := newLimitedEngine(RateLimitConfig{Enabled: true, RequestsPerMinute: 2}, limiter)

	for i := 0; i < 2; i++ {
		if code := hit(engine); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := hit(engine); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if _, ok := limiter.seen["ratelimit:10.0.0.1:/v1/sessions"]; !ok {
		t.Fatalf("unexpected keys: %v", limiter.seen)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	engine := newLimitedEngine(RateLimitConfig{Enabled: true, RequestsPerMinute: 1}, &countingLimiter{err: errors.New("redis down")})

	for i := 0; i < 3; i++ {
		if code := hit(engine); code != http.StatusOK {
			t.Fatalf("expected limiter errors to pass through, got %d", code)
		}
	}
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := &countingLimiter{}
	engine := newLimitedEngine(RateLimitConfig{Enabled: false, RequestsPerMinute: 1}, limiter)

	hit(engine)
	hit(engine)
	if len(limiter.seen) != 0 {
		t.Fatal("disabled limiter should not be consulted")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	engine.ServeHTTP(w, req)
	if w.Body.String() != "req-123" || w.Header().Get(RequestIDHeader) != "req-123" {
		t.Fatalf("request id not propagated: body=%q header=%q", w.Body.String(), w.Header().Get(RequestIDHeader))
	}

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Body.Len() != 36 {
		t.Fatalf("expected generated uuid, got %q", w.Body.String())
	}
}

func TestRecoveryReturns500(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
