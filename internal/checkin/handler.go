// Package checkin serves the staff desk: marking offline registrations paid,
// scanning tickets at the entrance and resending confirmations.
package checkin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/confirmation"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/payments"
	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/response"
)

const (
	StatusTypePaid     = "paid"
	StatusTypeAttended = "attended"
)

// UpdateStatusRequest is the body for POST /update-status.
type UpdateStatusRequest struct {
	TicketID   string `json:"ticket_id" binding:"required"`
	StatusType string `json:"status_type" binding:"required,oneof=paid attended"`
}

// Handler handles staff endpoints.
type Handler struct {
	reconciler *payments.Reconciler
	store      registrations.Store
	dispatcher payments.Dispatcher
	logger     *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(reconciler *payments.Reconciler, store registrations.Store, dispatcher payments.Dispatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reconciler: reconciler, store: store, dispatcher: dispatcher, logger: logger}
}

// UpdateStatus handles POST /update-status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ticketID := strings.ToUpper(strings.TrimSpace(req.TicketID))
	ctx := c.Request.Context()

	if req.StatusType == StatusTypePaid {
		res, err := h.reconciler.Apply(ctx, payments.Update{
			TicketID: ticketID,
			Status:   models.PaymentStatusPaid,
			Source:   payments.SourceDesk,
		})
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Result(c, http.StatusOK, gin.H{
			"ticket_id":       res.Registration.TicketID,
			"registration_id": res.Registration.ID,
			"payment_status":  res.Registration.PaymentStatus,
			"outcome":         res.Outcome,
			"email_sent":      res.EmailSent,
		})
		return
	}

	reg, err := h.store.FindByTicket(ctx, ticketID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !reg.PaymentStatus.IsPaid() {
		response.Conflict(c, "payment not completed for ticket "+ticketID)
		return
	}
	reg, err = h.store.MarkAttended(ctx, ticketID, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("attendee checked in", zap.String("ticket_id", ticketID), zap.String("checked_in_by", c.GetString("username")))
	response.Result(c, http.StatusOK, gin.H{
		"ticket_id":   reg.TicketID,
		"name":        reg.Name,
		"events":      reg.Events,
		"attended":    reg.Attended,
		"attended_at": reg.AttendedAt,
	})
}

// ResendConfirmation handles POST /registration/:registration_id/resend-confirmation.
func (h *Handler) ResendConfirmation(c *gin.Context) {
	ctx := c.Request.Context()
	reg, err := h.store.FindByID(ctx, c.Param("registration_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !reg.PaymentStatus.IsPaid() {
		response.Conflict(c, "registration is not paid")
		return
	}

	sent, err := h.dispatcher.Dispatch(ctx, reg)
	switch {
	case errors.Is(err, confirmation.ErrAlreadySent):
		response.Conflict(c, "confirmation already sent")
		return
	case errors.Is(err, confirmation.ErrMailDisabled):
		response.ServiceUnavailable(c, "mail is not configured")
		return
	case err != nil:
		h.logger.Error("resend confirmation failed", zap.String("registration_id", reg.ID), zap.Error(err))
		response.ServiceUnavailable(c, "confirmation could not be sent, retry")
		return
	}
	response.Result(c, http.StatusOK, gin.H{"registration_id": reg.ID, "ticket_id": reg.TicketID, "email_sent": sent})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registrations.ErrNotFound):
		response.NotFound(c, "registration not found")
	default:
		h.logger.Error("check-in failed", zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, retry")
	}
}
