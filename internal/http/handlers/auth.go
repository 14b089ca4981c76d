package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// hashing at cost 12 plus a store round trip has to fit in here
const accountOpTimeout = 5 * time.Second

type AccountService interface {
	Register(ctx context.Context, email, password string) (user.Account, error)
	Authenticate(ctx context.Context, email, password string) (user.Account, error)
	FetchByID(ctx context.Context, id string) (user.Account, error)
	UpdateProfile(ctx context.Context, id string, req user.UpdateRequest) (user.Account, error)
	SetRoles(ctx context.Context, id string, roles []string) (user.Account, error)
}

type TokenIssuer interface {
	Issue(accountID string, roles []string) (string, error)
}

type AuthHandler struct {
	accounts AccountService
	tokens   TokenIssuer
	log      *slog.Logger
}

func NewAuthHandler(accounts AccountService, tokens TokenIssuer, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		log:      log,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateRequest struct {
	Email    *string `json:"email" binding:"omitempty,email,max=254"`
	Password *string `json:"password" binding:"omitempty,min=1,max=72"`
}

type SetRolesRequest struct {
	Roles []string `json:"roles" binding:"required,min=1,dive,required,max=64"`
}

type sessionResponse struct {
	OK    bool         `json:"ok"`
	User  user.Account `json:"user"`
	Token string       `json:"token"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	acc, err := h.accounts.Register(cctx, req.Email, req.Password)
	if err != nil {
		respondAccountError(ctx, h.log, err, "Could not create user")
		return
	}

	token, err := h.tokens.Issue(acc.ID, acc.Roles)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "issue token", "err", err, "account_id", acc.ID)
		RespondInternal(ctx, "Could not generate token")
		return
	}

	ctx.JSON(http.StatusCreated, sessionResponse{OK: true, User: acc, Token: token})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	// wrong email and wrong password share one response
	acc, err := h.accounts.Authenticate(cctx, req.Email, req.Password)
	if err != nil {
		respondAccountError(ctx, h.log, err, "Could not log in")
		return
	}

	token, err := h.tokens.Issue(acc.ID, acc.Roles)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "issue token", "err", err, "account_id", acc.ID)
		RespondInternal(ctx, "Could not generate token")
		return
	}

	ctx.JSON(http.StatusOK, sessionResponse{OK: true, User: acc, Token: token})
}

// Authorized sits behind a presence-only check, so reaching it means a token was sent.
func (h *AuthHandler) Authorized(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "message": "Authorized"})
}

// Me returns the identity decoded from the token, not a fresh store read.
func (h *AuthHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	ctx.JSON(http.StatusOK, id)
}

// Update changes the caller's own email and/or password.
func (h *AuthHandler) Update(ctx *gin.Context) {
	id, ok := middlewares.AccountIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Email == nil && req.Password == nil {
		RespondBadRequest(ctx, "Nothing to update", gin.H{
			"fields": []FieldError{{Field: "email", Rule: "required_without", Param: "password", Message: "email or password is required"}},
		})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	acc, err := h.accounts.UpdateProfile(cctx, id, user.UpdateRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		respondAccountError(ctx, h.log, err, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"ok": true, "user": acc})
}

// SetRoles replaces the role set of the account named in the path. Admin only.
// Tokens already issued keep their old role snapshot until they expire.
func (h *AuthHandler) SetRoles(ctx *gin.Context) {
	target := ctx.Param("id")

	var req SetRolesRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	acc, err := h.accounts.SetRoles(cctx, target, req.Roles)
	if err != nil {
		respondAccountError(ctx, h.log, err, "Could not set roles")
		return
	}

	actor, _ := middlewares.AccountIDFromContext(ctx)
	h.log.InfoContext(ctx.Request.Context(), "roles set", "actor_id", actor, "account_id", acc.ID, "roles", acc.Roles)

	ctx.JSON(http.StatusOK, gin.H{"ok": true, "user": acc})
}
