package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ngthanhbui/imageflow-be/internal/api/auth"
	"github.com/ngthanhbui/imageflow-be/internal/api/dto"
	"github.com/ngthanhbui/imageflow-be/internal/api/model"
)

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		h.logger.Error("Failed to hash password", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	user := &model.User{
		UserID:       uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.storage.CreateUser(c.Request.Context(), user); err != nil {
		h.logger.Error("Failed to create user",
			slog.String("email", req.Email),
			slog.Any("error", err),
		)
		respondError(c, err)
		return
	}

	token, err := h.tokens.Issue(user.UserID)
	if err != nil {
		h.logger.Error("Failed to issue token", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, dto.AuthResponse{
		UserID: user.UserID,
		Token:  token,
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.storage.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and bad password
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.UserID)
	if err != nil {
		h.logger.Error("Failed to issue token", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, dto.AuthResponse{
		UserID: user.UserID,
		Token:  token,
	})
}
