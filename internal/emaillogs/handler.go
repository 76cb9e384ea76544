package emaillogs

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	log    Log
	store  registrations.Store
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(log Log, store registrations.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{log: log, store: store, logger: logger}
}

// ListByRegistration handles GET /registration/:registration_id/emails.
// Mount behind staff auth.
func (h *Handler) ListByRegistration(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("registration_id")
	if _, err := h.store.FindByID(ctx, id); err != nil {
		if errors.Is(err, registrations.ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		h.logger.Error("registration lookup failed", zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, retry")
		return
	}
	logs, err := h.log.ListByRegistration(ctx, id)
	if err != nil {
		h.logger.Error("list email logs failed", zap.String("registration_id", id), zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
