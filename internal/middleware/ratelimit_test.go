package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

func newUserRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 2, Burst: 5, CleanupInterval: time.Minute})
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.Middleware(ByUserID, "general")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newUserRequest("user-1"))

		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware(ByUserID, "general")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newUserRequest("user-retry"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newUserRequest("user-retry"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestRateLimitMiddleware_PerMinuteRetryAfter(t *testing.T) {
	// 1 req/min では1トークンの補充に60秒かかる
	rl := NewRateLimiter(PerMinute(1))
	defer rl.Stop()

	handler := rl.Middleware(ByUserID, "general")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), newUserRequest("u"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newUserRequest("u"))

	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestRateLimitMiddleware_IndependentPerKey(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware(ByUserID, "general")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, user := range []string{"user-a", "user-b"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newUserRequest(user))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", user, w.Code, http.StatusOK)
		}
	}

	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_NoKeyReturns401(t *testing.T) {
	rl := NewRateLimiter(PerMinute(10))
	defer rl.Stop()

	handler := rl.Middleware(ByUserID, "general")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRateLimitMiddleware_ByRemoteIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware(ByRemoteIP, "callback")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/oauth/callback", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1:1234"); code != http.StatusFound {
		t.Errorf("first request: status = %d", code)
	}
	// ポートが異なっても同一IPとして扱う
	if code := send("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", code)
	}
	if code := send("10.0.0.2:1234"); code != http.StatusFound {
		t.Errorf("other IP: status = %d", code)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.getOrCreateLimiter("stale")
	rl.getOrCreateLimiter("fresh")

	rl.mu.Lock()
	rl.limiters["stale"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	if got := rl.LimiterCount(); got != 1 {
		t.Errorf("LimiterCount = %d, want 1", got)
	}
	rl.mu.RLock()
	_, ok := rl.limiters["fresh"]
	rl.mu.RUnlock()
	if !ok {
		t.Error("fresh entry should remain")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1000, Burst: 1000, CleanupInterval: time.Minute})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rl.getOrCreateLimiter("user-" + strconv.Itoa(i%5))
		}(i)
	}
	wg.Wait()

	if got := rl.LimiterCount(); got != 5 {
		t.Errorf("LimiterCount = %d, want 5", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(PerMinute(1))
	rl.Stop()
	rl.Stop()
}
