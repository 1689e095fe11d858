package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/auth"
)

func TestStoreGetSameKeyReturnsSameLimiter(t *testing.T) {
	s := NewStore(10, 1)

	if s.Get("k") != s.Get("k") {
		t.Fatalf("expected same limiter pointer for same key")
	}
	if s.Get("k") == s.Get("other") {
		t.Fatalf("expected different limiters for different keys")
	}
}

func TestStoreLowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := NewStore(0.02, 1)

	lim := s.Get("k")
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}
	if lim.Allow() {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}
}

func TestStoreCleanupRemovesIdleEntries(t *testing.T) {
	s := NewStore(10, 1, WithIdleTTL(2*time.Millisecond), WithCleanupEvery(0))

	before := s.Get("k")
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, %d left", s.Len())
	}

	after := s.Get("k")
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestStoreJanitorStopsWithContext(t *testing.T) {
	s := NewStore(10, 1, WithIdleTTL(time.Millisecond), WithCleanupEvery(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)

	s.Get("k")
	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if s.Len() != 0 {
		t.Fatalf("expected janitor to evict idle key")
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in    string
		rps   float64
		burst int
		ok    bool
		err   bool
	}{
		{"10:20", 10, 20, true, false},
		{"0.5:3", 0.5, 3, true, false},
		{"5", 5, 5, true, false},
		{"0.2", 0.2, 1, true, false},
		{"", 0, 0, false, false},
		{"off", 0, 0, false, false},
		{"abc:1", 0, 0, false, true},
		{"10:x", 0, 0, false, true},
		{"-1:2", 0, 0, false, true},
	}
	for _, tt := range tests {
		rps, burst, ok, err := ParseRate(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseRate(%q) error = %v, want error %v", tt.in, err, tt.err)
			continue
		}
		if rps != tt.rps || burst != tt.burst || ok != tt.ok {
			t.Errorf("ParseRate(%q) = %v, %d, %v; want %v, %d, %v", tt.in, rps, burst, ok, tt.rps, tt.burst, tt.ok)
		}
	}
}

func TestAnonymousOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")
	s := NewStore(0.01, 2)

	r := gin.New()
	r.POST("/shorten", auth.OptionalAuth(secret), AnonymousOnly(s), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(ip, token string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest("POST", "/shorten", nil)
		req.RemoteAddr = ip + ":1234"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	for i := 0; i < 2; i++ {
		if resp := do("10.0.0.1", ""); resp.Code != http.StatusOK {
			t.Fatalf("expected request %d within burst to pass, got %d", i+1, resp.Code)
		}
	}

	resp := do("10.0.0.1", "")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "100" {
		t.Errorf("expected Retry-After 100, got %q", resp.Header().Get("Retry-After"))
	}

	if resp := do("10.0.0.2", ""); resp.Code != http.StatusOK {
		t.Errorf("expected a different IP to have its own bucket, got %d", resp.Code)
	}

	token, _ := auth.GenerateToken(secret, "user-1", "", time.Hour)
	for i := 0; i < 5; i++ {
		if resp := do("10.0.0.1", token); resp.Code != http.StatusOK {
			t.Fatalf("expected authenticated request to bypass the limit, got %d", resp.Code)
		}
	}
}
