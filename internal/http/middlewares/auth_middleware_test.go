package middlewares_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/authhub/internal/actorctx"
	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fake token codec

type fakeVerifier struct {
	verifyFn func(token string) (auth.Identity, error)
	calls    int
}

func (f *fakeVerifier) Verify(token string) (auth.Identity, error) {
	f.calls++
	if f.verifyFn != nil {
		return f.verifyFn(token)
	}
	return auth.Identity{}, auth.ErrInvalidSignature
}

func identityVerifier(id auth.Identity) *fakeVerifier {
	return &fakeVerifier{verifyFn: func(string) (auth.Identity, error) { return id, nil }}
}

func errVerifier(err error) *fakeVerifier {
	return &fakeVerifier{verifyFn: func(string) (auth.Identity, error) { return auth.Identity{}, err }}
}

func setupGuarded(guard gin.HandlerFunc, seen *auth.Identity) *gin.Engine {
	r := gin.New()
	r.GET("/protected", guard, func(c *gin.Context) {
		if seen != nil {
			*seen, _ = middlewares.IdentityFromContext(c)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doGet(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set(middlewares.TokenHeader, token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRoles(t *testing.T) {
	tests := []struct {
		name       string
		roles      []string
		token      string
		verifier   *fakeVerifier
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "no_token_never_reaches_codec",
			roles:      nil,
			token:      "",
			verifier:   identityVerifier(auth.Identity{ID: "a", Roles: []string{"user"}}),
			wantStatus: http.StatusUnauthorized,
			wantCalls:  0,
		},
		{
			name:       "invalid_signature",
			token:      "garbage",
			verifier:   errVerifier(auth.ErrInvalidSignature),
			wantStatus: http.StatusUnauthorized,
			wantCalls:  1,
		},
		{
			name:       "expired",
			token:      "old",
			verifier:   errVerifier(auth.ErrExpired),
			wantStatus: http.StatusUnauthorized,
			wantCalls:  1,
		},
		{
			name:       "any_authenticated",
			token:      "t",
			verifier:   identityVerifier(auth.Identity{ID: "a", Roles: []string{"user"}}),
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "admin_required_user_only_is_forbidden",
			roles:      []string{"admin"},
			token:      "t",
			verifier:   identityVerifier(auth.Identity{ID: "a", Roles: []string{"user"}}),
			wantStatus: http.StatusForbidden,
			wantCalls:  1,
		},
		{
			name:       "admin_required_user_and_admin_passes",
			roles:      []string{"admin"},
			token:      "t",
			verifier:   identityVerifier(auth.Identity{ID: "a", Roles: []string{"user", "admin"}}),
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "conjunctive_check",
			roles:      []string{"admin", "auditor"},
			token:      "t",
			verifier:   identityVerifier(auth.Identity{ID: "a", Roles: []string{"admin", "user"}}),
			wantStatus: http.StatusForbidden,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			m := middlewares.NewAuthMiddleware(tt.verifier, nil)

			guard, err := m.RequireRoles(tt.roles...)
			if err != nil {
				t.Fatalf("RequireRoles: %v", err)
			}

			w := doGet(setupGuarded(guard, nil), tt.token)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.verifier.calls != tt.wantCalls {
				t.Fatalf("verifier called %d times, want %d", tt.verifier.calls, tt.wantCalls)
			}

			if w.Code != http.StatusOK {
				var body struct {
					OK    bool `json:"ok"`
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.OK {
					t.Fatalf("expected ok=false in error body")
				}
			}
		})
	}
}

func TestRequireRoles_ExpiredAndTamperedLookTheSame(t *testing.T) {
	prom := observability.NewProm(prometheus.NewRegistry())

	expired := doGet(setupGuarded(middlewares.NewAuthMiddleware(errVerifier(auth.ErrExpired), prom).RequireAuth(), nil), "x")
	tampered := doGet(setupGuarded(middlewares.NewAuthMiddleware(errVerifier(auth.ErrInvalidSignature), prom).RequireAuth(), nil), "x")

	if expired.Code != tampered.Code || expired.Body.String() != tampered.Body.String() {
		t.Fatalf("expired %d %s vs tampered %d %s", expired.Code, expired.Body, tampered.Code, tampered.Body)
	}

	if got := testutil.ToFloat64(prom.AuthDecisions.WithLabelValues("expired")); got != 1 {
		t.Fatalf("expired decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(prom.AuthDecisions.WithLabelValues("invalid_signature")); got != 1 {
		t.Fatalf("invalid_signature decisions = %v, want 1", got)
	}
}

func TestRequireRoles_AttachesIdentity(t *testing.T) {
	want := auth.Identity{ID: "acc-9", Roles: []string{"user"}}
	m := middlewares.NewAuthMiddleware(identityVerifier(want), nil)

	var fromCtx auth.Identity
	r := gin.New()
	r.GET("/protected", m.RequireAuth(), func(c *gin.Context) {
		fromCtx, _ = actorctx.IdentityFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	if w := doGet(r, "t"); w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if fromCtx.ID != want.ID {
		t.Fatalf("context identity = %+v, want %+v", fromCtx, want)
	}

	var fromGin auth.Identity
	if w := doGet(setupGuarded(m.RequireAuth(), &fromGin), "t"); w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if fromGin.ID != want.ID {
		t.Fatalf("gin identity = %+v, want %+v", fromGin, want)
	}
}

func TestRequireRoles_RejectsBadConfig(t *testing.T) {
	m := middlewares.NewAuthMiddleware(&fakeVerifier{}, nil)

	for _, roles := range [][]string{{""}, {"  "}, {"admin", ""}, {" admin"}} {
		if _, err := m.RequireRoles(roles...); !errors.Is(err, middlewares.ErrInvalidRoleConfig) {
			t.Fatalf("roles %q: got %v, want ErrInvalidRoleConfig", roles, err)
		}
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("MustRequireRoles should panic on a blank role")
		}
	}()
	m.MustRequireRoles("")
}

func TestTokenPresent(t *testing.T) {
	r := setupGuarded(middlewares.TokenPresent(), nil)

	if w := doGet(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d", w.Code)
	}
	// presence only, even junk passes
	if w := doGet(r, "not-a-jwt"); w.Code != http.StatusOK {
		t.Fatalf("junk token: got %d", w.Code)
	}
}
