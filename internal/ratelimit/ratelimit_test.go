package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllowSpendsBurstThenDenies(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Errorf("Request %d should pass within the burst", i)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Request past the burst should be denied")
	}

	// One token refills per second at 60/min.
	time.Sleep(1100 * time.Millisecond)
	if !limiter.Allow("10.0.0.1") {
		t.Error("Request after refill should pass")
	}
}

func TestClientsHaveSeparateBuckets(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("10.0.0.1")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Exhausted client should be denied")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("Fresh client should pass")
	}
}

func TestRefillCapsAtBurst(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 600, BurstSize: 2, CleanupInterval: time.Minute})
	defer limiter.Stop()

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.1")

	// 600/min refills 10 tokens over this sleep, but the bucket holds 2.
	time.Sleep(time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Error("First request after refill should pass")
	}
	if !limiter.Allow("10.0.0.1") {
		t.Error("Second request after refill should pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Third request should exceed the cap")
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer limiter.Stop()

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "ok")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("First request status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "RATE_LIMITED") {
		t.Errorf("Body missing stable code: %s", w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("Expected 60 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("Expected burst size 10, got %d", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("Expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}
