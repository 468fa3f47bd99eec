package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cosmicplatform/api/internal/models"
	"cosmicplatform/api/internal/service"
)

const refreshCookieName = "refreshToken"

type userResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName"`
	Bio           string     `json:"bio"`
	AvatarURL     *string    `json:"avatarUrl,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		Bio:           user.Bio,
		AvatarURL:     user.AvatarURL,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
		LastLoginAt:   user.LastLoginAt,
	}
}

type registerRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=30,username"`
	Email       string `json:"email" binding:"required,email,max=320"`
	Password    string `json:"password" binding:"required,min=8,max=128,strongpassword"`
	DisplayName string `json:"displayName" binding:"omitempty,max=50"`
	Bio         string `json:"bio" binding:"omitempty,max=500"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidationError(c, err)
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful. Please verify your email.",
		"user":    toUserResponse(user),
	})
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidationError(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)

	c.JSON(http.StatusOK, gin.H{
		"message":     "Login successful",
		"user":        toUserResponse(result.User),
		"accessToken": result.AccessToken,
	})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "no_refresh_token",
			"message": "Refresh token not provided.",
		})
		return
	}

	accessToken, err := h.auth.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Token refreshed successfully",
		"accessToken": accessToken,
	})
}

// Logout always succeeds from the caller's view; an absent or unknown cookie
// is still a clean logout.
func (h HandlerSet) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(refreshCookieName)

	if err := h.auth.Logout(c.Request.Context(), refreshToken); err != nil {
		h.log.Error().Err(err).Msg("logout session delete failed")
	}

	h.clearRefreshCookie(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "Logout successful",
	})
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Verification token is required.",
		})
		return
	}

	user, err := h.auth.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Email verified successfully",
		"user": gin.H{
			"username":      user.Username,
			"email":         user.Email,
			"emailVerified": true,
		},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email,max=320"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidationError(c, err)
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}

	// Identical body whether the account exists or not.
	c.JSON(http.StatusOK, gin.H{
		"message": "If an account with this email exists, a password reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=128,strongpassword"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidationError(c, err)
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password reset successful. Please log in with your new password.",
	})
}

func (h HandlerSet) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		refreshCookieName,
		token,
		int(h.cfg.Security.RefreshTokenTTL.Seconds()),
		"/auth",
		"",
		h.cfg.Environment == "production",
		true,
	)
}

func (h HandlerSet) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/auth", "", h.cfg.Environment == "production", true)
}
