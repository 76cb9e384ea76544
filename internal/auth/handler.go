package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/pkg/response"
	"github.com/infest-events/registration/pkg/utils"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Staff     models.Staff `json:"staff"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	staff  Directory
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(staff Directory, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{staff: staff, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	staff, err := h.staff.GetByUsername(c.Request.Context(), req.Username)
	if errors.Is(err, ErrStaffNotFound) {
		response.Unauthorized(c, "invalid username or password")
		return
	}
	if err != nil {
		h.logger.Error("staff lookup failed", zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, retry")
		return
	}

	if !utils.CheckPassword(req.Password, staff.PasswordHash) {
		h.logger.Warn("staff login rejected", zap.String("username", req.Username))
		response.Unauthorized(c, "invalid username or password")
		return
	}

	expires := time.Now().Add(time.Duration(h.jwt.expireHours) * time.Hour)
	token, err := h.jwt.Generate(staff.ID, staff.Username, string(staff.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	h.logger.Info("staff login", zap.String("username", staff.Username), zap.String("role", string(staff.Role)))
	c.JSON(http.StatusOK, response.Body{Status: response.StatusSuccess, Success: true, Data: TokenResponse{Token: token, ExpiresAt: expires, Staff: *staff}})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	response.OK(c, gin.H{
		"username": c.GetString("username"),
		"role":     c.GetString("user_role"),
	})
}
