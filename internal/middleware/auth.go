package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cosmicplatform/api/internal/models"
	"cosmicplatform/api/internal/security"
)

// Context keys set by Auth for downstream handlers.
const (
	ContextUserID = "user_id"
	ContextUser   = "current_user"
)

// UserFinder is the slice of the user repository the guards need.
type UserFinder interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth requires a bearer access token. The subject account is re-read so a
// token outliving its account is rejected. Missing, expired and invalid
// tokens get distinct messages; an expired access token means "refresh",
// an invalid one means "sign in again".
func Auth(tokens *security.TokenManager, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := security.ExtractBearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Please provide a valid access token.",
			})
			return
		}

		claims, err := tokens.Verify(tokenStr, security.TokenTypeAccess)
		if err != nil {
			if errors.Is(err, security.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "token_expired",
					"message": "Access token has expired. Please refresh.",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "The provided access token is invalid.",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "user_not_found",
				"message": "The user associated with this token no longer exists.",
			})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)

		c.Next()
	}
}

// RequireVerified enforces a verified email. Composes after Auth.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get(ContextUser)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Please authenticate first.",
			})
			return
		}

		user, ok := userVal.(models.User)
		if !ok || !user.EmailVerified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "email_not_verified",
				"message": "Please verify your email address to access this feature.",
			})
			return
		}

		c.Next()
	}
}
