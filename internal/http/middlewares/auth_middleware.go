package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/authhub/internal/actorctx"
	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
)

// TokenHeader carries the bearer token verbatim on every protected call.
const TokenHeader = "X-Auth-Token"

const msgNoToken = "Access denied. No token provided."

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type AuthMiddleware struct {
	jwt  TokenVerifier
	prom *observability.Prom
	log  *slog.Logger
}

func NewAuthMiddleware(jwt TokenVerifier, prom *observability.Prom) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, prom: prom, log: slog.Default()}
}

// RequireAuth lets any verified identity through.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.MustRequireRoles()
}

// RequireRoles builds a guard that needs a valid token carrying every role listed.
// The role set is validated and captured here, never per request.
func (m *AuthMiddleware) RequireRoles(roles ...string) (gin.HandlerFunc, error) {
	required, err := validateRoleConfig(roles)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(TokenHeader))
		if raw == "" {
			m.prom.ObserveAuthDecision("no_token")
			abortWithError(c, http.StatusUnauthorized, "unauthorized", msgNoToken)
			return
		}

		id, err := m.jwt.Verify(raw)
		if err != nil {
			decision := "invalid_signature"
			if errors.Is(err, auth.ErrExpired) {
				decision = "expired"
			}
			m.prom.ObserveAuthDecision(decision)
			m.log.DebugContext(c.Request.Context(), "token rejected", "reason", decision, "path", c.FullPath())

			// expired and tampered look the same from outside
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Access denied. Invalid or expired token.")
			return
		}

		if !id.HasAll(required...) {
			m.prom.ObserveAuthDecision("forbidden")
			m.log.DebugContext(c.Request.Context(), "missing role", "account_id", id.ID, "required", required)
			abortWithError(c, http.StatusForbidden, "forbidden", "Access denied. User does not have required roles.")
			return
		}

		m.prom.ObserveAuthDecision("allowed")

		// Stash the identity for handlers and for anything below them that only sees context.Context
		c.Set(CtxIdentity, id)
		c.Set(CtxAccountID, id.ID)
		c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))

		c.Next()
	}, nil
}

// MustRequireRoles is RequireRoles for route registration, where a bad role set is a programming error.
func (m *AuthMiddleware) MustRequireRoles(roles ...string) gin.HandlerFunc {
	h, err := m.RequireRoles(roles...)
	if err != nil {
		panic(err)
	}
	return h
}

// TokenPresent only checks that the header is there. It does not verify anything.
func TokenPresent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader(TokenHeader)) == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", msgNoToken)
			return
		}
		c.Next()
	}
}

// Optional helpers so handlers don't need to know the magic keys.

func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(CtxIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.ID != ""
}

func AccountIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(CtxAccountID)
	return id, id != ""
}
