package middlewares_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl := middlewares.NewRateLimiter(2, time.Minute)

	r := gin.New()
	r.POST("/login", rl.RateLimiterMiddleware(middlewares.KeyByIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Fatalf("missing Retry-After")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("got codes %v", codes)
	}

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("other client got %d", w.Code)
	}
}

func TestRateLimiter_KeysByAccountWhenAuthenticated(t *testing.T) {
	rl := middlewares.NewRateLimiter(1, time.Minute)

	r := gin.New()
	r.PUT("/me", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Account"); id != "" {
			c.Set(middlewares.CtxAccountID, id)
		}
		c.Next()
	}, rl.RateLimiterMiddleware(middlewares.KeyByAccountOrIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	put := func(account string) int {
		req := httptest.NewRequest(http.MethodPut, "/me", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		if account != "" {
			req.Header.Set("X-Test-Account", account)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// same IP, different accounts: separate buckets
	if got := put("a"); got != http.StatusOK {
		t.Fatalf("account a first call: %d", got)
	}
	if got := put("b"); got != http.StatusOK {
		t.Fatalf("account b first call: %d", got)
	}
	if got := put("a"); got != http.StatusTooManyRequests {
		t.Fatalf("account a second call: %d", got)
	}
	// no account falls back to the IP bucket
	if got := put(""); got != http.StatusOK {
		t.Fatalf("anonymous first call: %d", got)
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		method string
		ct     string
		want   int
	}{
		{"json", http.MethodPost, "application/json", http.StatusOK},
		{"json_charset", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"form", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"missing", http.MethodPost, "", http.StatusUnsupportedMediaType},
		{"get_ignored", http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", bytes.NewBufferString(`{}`))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.SecurityHeaders())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middlewares.CtxRequestID))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("request id header = %q", got)
	}
	if w.Body.String() != "req-123" {
		t.Fatalf("request id on context = %q", w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allowed origin not echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}

func TestMaxBodyBytes_OversizedBodyGetsEnvelope(t *testing.T) {
	r := gin.New()
	r.POST("/register", middlewares.MaxBodyBytes(32), func(c *gin.Context) {
		var req handlers.RegisterRequest
		if !handlers.BindJSON(c, &req) {
			return
		}
		c.Status(http.StatusCreated)
	})

	body := `{"email":"alice@example.com","password":"` + strings.Repeat("p", 64) + `"}`

	tests := []struct {
		name          string
		contentLength int64
	}{
		{name: "declared_length", contentLength: int64(len(body))},
		{name: "unknown_length", contentLength: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.ContentLength = tt.contentLength

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("got status %d, want 413, body=%s", w.Code, w.Body.String())
			}

			var resp struct {
				OK    bool `json:"ok"`
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if resp.OK || resp.Error.Code != "payload_too_large" {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}
