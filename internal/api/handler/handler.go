package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ngthanhbui/imageflow-be/internal/api/auth"
	"github.com/ngthanhbui/imageflow-be/internal/api/dispatch"
	"github.com/ngthanhbui/imageflow-be/internal/api/domain"
	"github.com/ngthanhbui/imageflow-be/internal/api/notify"
	"github.com/ngthanhbui/imageflow-be/internal/api/storage"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Storage    *storage.Storage
	Dispatcher *dispatch.Dispatcher
	Registry   *notify.Registry
	Tokens     *auth.TokenIssuer
	BcryptCost int
}

// JobHandler handles job submission, retrieval, and the event stream
type JobHandler struct {
	logger     *slog.Logger
	storage    *storage.Storage
	dispatcher *dispatch.Dispatcher
	registry   *notify.Registry
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		storage:    deps.Storage,
		dispatcher: deps.Dispatcher,
		registry:   deps.Registry,
	}
}

// AuthHandler handles user registration and login
type AuthHandler struct {
	logger     *slog.Logger
	storage    *storage.Storage
	tokens     *auth.TokenIssuer
	bcryptCost int
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(deps *Dependencies) *AuthHandler {
	return &AuthHandler{
		logger:     deps.Logger,
		storage:    deps.Storage,
		tokens:     deps.Tokens,
		bcryptCost: deps.BcryptCost,
	}
}

// respondError maps a domain error to an HTTP status and JSON body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAuthentication):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrChannelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
