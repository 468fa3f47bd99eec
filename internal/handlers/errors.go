package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"cosmicplatform/api/internal/service"
)

// respondError is the single place workflow errors become HTTP responses.
// Credential failures stay generic on purpose; the caller never learns which
// half of the pair was wrong.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	var locked *service.LockedError
	if errors.As(err, &locked) {
		message := fmt.Sprintf("Account is temporarily locked. Try again in %d minutes.", locked.RetryAfterMinutes)
		if locked.JustLocked {
			message = fmt.Sprintf("Too many failed attempts. Account locked for %d minutes.", locked.RetryAfterMinutes)
		}
		c.JSON(http.StatusLocked, gin.H{
			"error":   "account_locked",
			"message": message,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": "Username or password is incorrect.",
		})
	case errors.Is(err, service.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "email_not_verified",
			"message": "Please verify your email address before logging in.",
		})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "username_exists",
			"message": "This username is already taken. Please choose another one.",
		})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "email_exists",
			"message": "An account with this email already exists.",
		})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "Current user not found.",
		})
	case errors.Is(err, service.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_current_password",
			"message": "Current password is incorrect.",
		})
	case errors.Is(err, service.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_refresh_token",
			"message": "Refresh token is invalid or expired.",
		})
	case errors.Is(err, service.ErrInvalidVerifyToken):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_verification_token",
			"message": "Email verification token is invalid or expired.",
		})
	case errors.Is(err, service.ErrInvalidResetToken):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_reset_token",
			"message": "Password reset token is invalid or expired.",
		})
	default:
		h.log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.Writer.Header().Get("X-Request-Id")).
			Msg("unhandled service error")

		body := gin.H{
			"error":   "internal_error",
			"message": "Something went wrong. Please try again.",
		}
		if h.cfg.Environment != "production" {
			body["debug"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

func (h HandlerSet) respondValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": err.Error(),
	})
}
