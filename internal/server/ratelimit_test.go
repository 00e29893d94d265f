package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_rejectsWhenBucketEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimiter(1, 1))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("first request: got %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should exhaust the bucket, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestRateLimiter_bucketsArePerClient(t *testing.T) {
	pool := newLimiterPool(1, 1)

	if !pool.get("10.0.0.1").Allow() {
		t.Fatal("first client's first request should pass")
	}
	if pool.get("10.0.0.1").Allow() {
		t.Error("first client's bucket should be empty")
	}
	if !pool.get("10.0.0.2").Allow() {
		t.Error("second client must not share the first client's bucket")
	}
}

func TestLimiterPool_sweepDropsIdleClients(t *testing.T) {
	pool := newLimiterPool(1, 1)
	pool.get("10.0.0.1").Allow()

	pool.mu.Lock()
	pool.lastSeen["10.0.0.1"] = time.Now().Add(-limiterIdleTTL - time.Minute)
	pool.mu.Unlock()

	pool.sweep()

	pool.mu.Lock()
	_, kept := pool.clients["10.0.0.1"]
	pool.mu.Unlock()
	if kept {
		t.Fatal("idle client survived the sweep")
	}

	// A swept client comes back with a full bucket.
	if !pool.get("10.0.0.1").Allow() {
		t.Error("returning client should start with a fresh bucket")
	}
}
