package payments

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/response"
)

const (
	// HeaderSignature carries the webhook HMAC.
	HeaderSignature = "X-Razorpay-Signature"
	// HeaderEventID carries the gateway's unique delivery id.
	HeaderEventID = "X-Razorpay-Event-Id"

	maxWebhookBytes = 1 << 20
)

// ConfirmPaymentRequest is the body for POST /confirm-payment.
type ConfirmPaymentRequest struct {
	RegistrationID    string `json:"registration_id"`
	TicketID          string `json:"ticket_id"`
	PaymentID         string `json:"payment_id"`
	PaymentStatus     string `json:"payment_status" binding:"required,oneof=paid completed failed"`
	OrderID           string `json:"order_id"`
	PaymentLinkID     string `json:"payment_link_id"`
	PaymentLinkRef    string `json:"payment_link_reference_id"`
	PaymentLinkStatus string `json:"payment_link_status"`
	Signature         string `json:"signature"`
}

// Handler serves the client confirmation and webhook endpoints.
type Handler struct {
	reconciler *Reconciler
	verifier   *ClientVerifier
	webhooks   *WebhookProcessor
	qr         registrations.QRProvider
	logger     *zap.Logger
}

// NewHandler creates a payments handler. verifier and qr may be nil.
func NewHandler(reconciler *Reconciler, verifier *ClientVerifier, webhooks *WebhookProcessor, qr registrations.QRProvider, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reconciler: reconciler, verifier: verifier, webhooks: webhooks, qr: qr, logger: logger}
}

// ConfirmPayment handles POST /confirm-payment.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status := models.PaymentStatus(req.PaymentStatus)
	if req.RegistrationID == "" && req.TicketID == "" {
		response.BadRequest(c, ErrMissingKey.Error())
		return
	}
	if status.IsPaid() && strings.TrimSpace(req.PaymentID) == "" {
		response.BadRequest(c, "payment_id required")
		return
	}

	ctx := c.Request.Context()
	err := h.verifier.Verify(ctx, ClientConfirmation{
		PaymentID:         req.PaymentID,
		OrderID:           req.OrderID,
		PaymentLinkID:     req.PaymentLinkID,
		PaymentLinkRef:    req.PaymentLinkRef,
		PaymentLinkStatus: req.PaymentLinkStatus,
		Signature:         req.Signature,
		Status:            status,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.reconciler.Apply(ctx, Update{
		RegistrationID: strings.TrimSpace(req.RegistrationID),
		TicketID:       strings.ToUpper(strings.TrimSpace(req.TicketID)),
		PaymentID:      strings.TrimSpace(req.PaymentID),
		Status:         status,
		Source:         SourceClient,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	reg := res.Registration
	body := gin.H{
		"registration_id": reg.ID,
		"payment_status":  reg.PaymentStatus,
		"outcome":         res.Outcome,
		"email_sent":      res.EmailSent,
	}
	if reg.TicketID != "" {
		body["ticket_id"] = reg.TicketID
		if h.qr != nil && reg.PaymentStatus.IsPaid() {
			qr, err := h.qr.QRCode(ctx, reg.TicketID)
			if err != nil {
				h.logger.Warn("qr artifact", zap.String("ticket_id", reg.TicketID), zap.Error(err))
			}
			if qr != "" {
				body["qr_code"] = qr
			}
		}
	}
	response.Result(c, http.StatusOK, body)
}

// Webhook handles POST /webhook/razorpay. Every outcome but a bad signature
// or a transient store failure is acknowledged with 200.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.logger.Warn("webhook body unreadable", zap.Error(err))
		response.Result(c, http.StatusOK, gin.H{"status": response.StatusError, "error": "unreadable body"})
		return
	}

	out, err := h.webhooks.Process(c.Request.Context(), Delivery{
		Body:      body,
		Signature: c.GetHeader(HeaderSignature),
		EventID:   c.GetHeader(HeaderEventID),
	})
	switch {
	case errors.Is(err, ErrSignatureInvalid):
		response.Result(c, http.StatusUnauthorized, gin.H{"status": response.StatusError, "error": "invalid signature"})
		return
	case err != nil:
		response.Result(c, http.StatusInternalServerError, gin.H{"status": response.StatusError, "error": "temporarily unavailable"})
		return
	}

	fields := gin.H{"status": out.Status}
	if out.Reason != "" {
		fields["message"] = out.Reason
	}
	if out.Result != nil {
		fields["registration_id"] = out.Result.Registration.ID
		fields["ticket_id"] = out.Result.Registration.TicketID
		fields["outcome"] = out.Result.Outcome
		fields["email_sent"] = out.Result.EmailSent
	}
	response.Result(c, http.StatusOK, fields)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registrations.ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrSignatureInvalid):
		response.Unauthorized(c, "payment signature invalid")
	case errors.Is(err, ErrPaymentNotCaptured):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrMissingKey), errors.Is(err, ErrInvalidStatus):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("confirm payment failed", zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, retry")
	}
}
