package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cosmicplatform/api/internal/middleware"
	"cosmicplatform/api/internal/service"
)

func (h HandlerSet) Me(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	user, err := h.auth.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": toUserResponse(user),
	})
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName" binding:"omitempty,max=50"`
	Bio         *string `json:"bio" binding:"omitempty,max=500"`
	AvatarURL   *string `json:"avatarUrl" binding:"omitempty,url"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidationError(c, err)
		return
	}

	userID := c.GetString(middleware.ContextUserID)

	user, err := h.auth.UpdateProfile(c.Request.Context(), userID, service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    toUserResponse(user),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=128,strongpassword"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidationError(c, err)
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	currentRefreshToken, _ := c.Cookie(refreshCookieName)

	if err := h.auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword, currentRefreshToken); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password changed successfully",
	})
}

const maxAvatarSize = 5 << 20 // 5 MiB

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "An avatar file is required.",
		})
		return
	}
	if fileHeader.Size > maxAvatarSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "file_too_large",
			"message": "Avatar must be 5 MB or smaller.",
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unsupported_media_type",
			"message": "Avatar must be an image.",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	userID := c.GetString(middleware.ContextUserID)

	avatarURL, err := h.store.PutAvatar(c.Request.Context(), userID, file, fileHeader.Size, contentType)
	if err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), userID, service.UpdateProfileInput{
		AvatarURL: &avatarURL,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Avatar updated successfully",
		"user":    toUserResponse(user),
	})
}
