package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentos/studio/api/handlers"
	"github.com/agentos/studio/config"
	"github.com/agentos/studio/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-ID"), "req-"))
		assert.Equal(t, w.Header().Get("X-Request-ID"), seen)
	})

	t.Run("client provided", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "abc")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "abc", seen)
	})
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp handlers.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	skip := []string{"/health"}

	tests := []struct {
		name       string
		allowQuery bool
		path       string
		header     string
		wantStatus int
	}{
		{name: "valid header", path: "/api/v1/workflows", header: "secret", wantStatus: http.StatusOK},
		{name: "invalid header", path: "/api/v1/workflows", header: "wrong", wantStatus: http.StatusUnauthorized},
		{name: "missing key", path: "/api/v1/workflows", wantStatus: http.StatusUnauthorized},
		{name: "skip path", path: "/health", wantStatus: http.StatusOK},
		{name: "query disabled", path: "/api/v1/workflows?api_key=secret", wantStatus: http.StatusUnauthorized},
		{name: "query enabled", allowQuery: true, path: "/api/v1/workflows?api_key=secret", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyAuth([]string{"secret"}, skip, tt.allowQuery, zap.NewNop())(okHandler())
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "top-secret", JWTIssuer: "agentos"}

	var tenant, user string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ = types.TenantID(r.Context())
		user, _ = types.UserID(r.Context())
	})
	handler := JWTAuth(cfg, []string{"/healthz"}, zap.NewNop())(inner)

	valid := signToken(t, cfg.JWTSecret, jwt.MapClaims{
		"iss":       "agentos",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant_id": "acme",
		"user_id":   "u-1",
	})

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
	}{
		{name: "valid token", path: "/api/v1/workflows", auth: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", path: "/api/v1/workflows", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", path: "/api/v1/workflows", auth: "Basic abc", wantStatus: http.StatusUnauthorized},
		{
			name: "wrong issuer",
			path: "/api/v1/workflows",
			auth: "Bearer " + signToken(t, cfg.JWTSecret, jwt.MapClaims{
				"iss": "someone-else",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			path:       "/api/v1/workflows",
			auth:       "Bearer " + signToken(t, "other", jwt.MapClaims{"iss": "agentos"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired",
			path: "/api/v1/workflows",
			auth: "Bearer " + signToken(t, cfg.JWTSecret, jwt.MapClaims{
				"iss": "agentos",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{name: "skip path", path: "/healthz", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant, user = "", ""
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.name == "valid token" {
				assert.Equal(t, "acme", tenant)
				assert.Equal(t, "u-1", user)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 0.001, 2, zap.NewNop())(okHandler())

	do := func(remote string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	// 其他 IP 独立计数
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
}

func TestTenantRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := TenantRateLimiter(ctx, 0.001, 1, zap.NewNop())(okHandler())

	do := func(tenant string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1000"
		if tenant != "" {
			r = r.WithContext(types.WithTenantID(r.Context(), tenant))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	// 同一 IP 的不同租户互不影响
	assert.Equal(t, http.StatusOK, do("b"))
	assert.Equal(t, http.StatusOK, do(""))
}

func TestCORS(t *testing.T) {
	t.Run("allowed origin", func(t *testing.T) {
		handler := CORS([]string{"https://studio.example.com"})(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://studio.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://studio.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})

	t.Run("unknown origin", func(t *testing.T) {
		handler := CORS([]string{"https://studio.example.com"})(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		handler := CORS([]string{"https://studio.example.com"})(okHandler())
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://studio.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("not configured rejects preflight", func(t *testing.T) {
		handler := CORS(nil)(okHandler())
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://studio.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestMaxBody(t *testing.T) {
	handler := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if err := handlers.DecodeJSONBody(w, r, &v, nil); err != nil {
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("declared length too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"too long"}`)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("small body", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		inner := okHandler()
		assert.NotNil(t, MaxBody(0)(inner))
	})
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/workflows", "/api/v1/workflows"},
		{"/api/v1/connections/validate", "/api/v1/connections/validate"},
		{"/api/v1/workflows/7d3c2a1e-9b8f-4c6d-a5e4-3f2b1c0d9e8f", "/api/v1/workflows/:id"},
		{"/api/v1/workflows/wf-1/nodes/agent-1", "/api/v1/workflows/:id/nodes/:id"},
		{"/api/v1/workflows/wf-1/nodes/agent-1/suggestions", "/api/v1/workflows/:id/nodes/:id/suggestions"},
		{"/api/v1/workflows/wf-1/edges/e-1", "/api/v1/workflows/:id/edges/:id"},
		{"/api/v1/executions/exec-9", "/api/v1/executions/:id"},
		{"/api/v1/templates/customer-support", "/api/v1/templates/:id"},
		{"/api/v1/workflows/wf-1/definition", "/api/v1/workflows/:id/definition"},
		{"/something/12345", "/something/:id"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newStatusWriter(rec)

	sw.WriteHeader(http.StatusAccepted)
	sw.WriteHeader(http.StatusTeapot)
	n, err := sw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, sw.statusCode)
	assert.Equal(t, int64(5), sw.bytesWritten)
	assert.Same(t, rec, sw.Unwrap())

	// httptest.ResponseRecorder 不支持 Hijack
	_, _, err = sw.Hijack()
	assert.Error(t, err)
}
