package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString(middlewares.CtxRequestID); id != "" {
		return id
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// RespondError writes the error envelope. ok and message sit at the top level for
// simple clients, error carries the machine-readable detail.
func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"ok":      false,
		"message": message,
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// respondAccountError maps the account error taxonomy onto HTTP. Anything it does
// not recognise is logged and hidden behind a generic 500.
func respondAccountError(ctx *gin.Context, log *slog.Logger, err error, fallback string) {
	var vErr *user.ValidationError

	switch {
	case errors.As(err, &vErr):
		RespondBadRequest(ctx, "Invalid request body", gin.H{
			"fields": []FieldError{{Field: vErr.Field, Rule: "invalid", Message: vErr.Message}},
		})
	case errors.Is(err, user.ErrEmailTaken):
		RespondError(ctx, http.StatusBadRequest, "user_exists", "User already exists.", nil)
	case errors.Is(err, user.ErrInvalidCredentials):
		RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Invalid email or password.", nil)
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found.")
	default:
		log.ErrorContext(ctx.Request.Context(), fallback, "err", err, "request_id", requestIDFrom(ctx))
		RespondInternal(ctx, fallback)
	}
}
