package registrations

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/pkg/response"
)

// RegisterRequest is the body for POST /register.
type RegisterRequest struct {
	Name        string   `json:"name" binding:"required"`
	Email       string   `json:"email" binding:"required,email"`
	Phone       string   `json:"phone" binding:"required"`
	WhatsApp    string   `json:"whatsapp"`
	College     string   `json:"college"`
	Year        string   `json:"year"`
	Department  string   `json:"department"`
	Events      []string `json:"events" binding:"required,min=1"`
	PaymentMode string   `json:"payment_mode" binding:"required,oneof=online offline"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	store  Store
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, store: store, logger: logger}
}

// Register handles POST /register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	res, err := h.svc.Register(c.Request.Context(), RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		WhatsApp:    req.WhatsApp,
		College:     req.College,
		Year:        req.Year,
		Department:  req.Department,
		Events:      req.Events,
		PaymentMode: req.PaymentMode,
	})
	var verr *ValidationError
	if errors.As(err, &verr) {
		response.BadRequest(c, verr.Error())
		return
	}
	if err != nil {
		h.logger.Error("register failed", zap.Error(err))
		response.ServiceUnavailable(c, "registration temporarily unavailable, please retry")
		return
	}

	reg := res.Registration
	body := gin.H{
		"registration_id": reg.ID,
		"payment_mode":    reg.PaymentMode,
		"payment_status":  reg.PaymentStatus,
		"email_sent":      reg.ConfirmationSent,
		"duplicate":       res.Duplicate,
	}
	if reg.TicketID != "" {
		body["ticket_id"] = reg.TicketID
	}
	if res.QRCode != "" {
		body["qr_code"] = res.QRCode
	}
	if res.PaymentURL != "" {
		body["payment_url"] = res.PaymentURL
	}
	code := http.StatusCreated
	if res.Duplicate {
		code = http.StatusOK
	}
	response.Result(c, code, body)
}

// GetRegistration handles GET /registration/:registration_id. The route is
// public, so contact details are masked and the payment id is left out.
func (h *Handler) GetRegistration(c *gin.Context) {
	reg, err := h.store.FindByID(c.Request.Context(), c.Param("registration_id"))
	h.respondLookup(c, reg, err, func(r *models.Registration) interface{} {
		view := gin.H{
			"registration_id":   r.ID,
			"name":              r.Name,
			"email":             MaskEmail(r.Email),
			"events":            r.Events,
			"payment_mode":      r.PaymentMode,
			"payment_status":    r.PaymentStatus,
			"confirmation_sent": r.ConfirmationSent,
			"attended":          r.Attended,
			"created_at":        r.CreatedAt,
		}
		if r.TicketID != "" {
			view["ticket_id"] = r.TicketID
		}
		if r.PaymentMode == models.PaymentModeOnline && r.PaymentStatus == models.PaymentStatusPending && r.PaymentURL != "" {
			view["payment_url"] = r.PaymentURL
		}
		return view
	})
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// PaymentStatus handles GET /payment-status/:ticket_id.
func (h *Handler) PaymentStatus(c *gin.Context) {
	reg, err := h.store.FindByTicket(c.Request.Context(), strings.ToUpper(c.Param("ticket_id")))
	h.respondLookup(c, reg, err, func(r *models.Registration) interface{} {
		return gin.H{
			"ticket_id":         r.TicketID,
			"registration_id":   r.ID,
			"payment_status":    r.PaymentStatus,
			"payment_id":        r.PaymentID,
			"confirmation_sent": r.ConfirmationSent,
		}
	})
}

// Participant handles GET /participant/:ticket_id, used by the check-in scanner.
func (h *Handler) Participant(c *gin.Context) {
	reg, err := h.store.FindByTicket(c.Request.Context(), strings.ToUpper(c.Param("ticket_id")))
	h.respondLookup(c, reg, err, func(r *models.Registration) interface{} {
		return gin.H{
			"ticket_id":      r.TicketID,
			"name":           r.Name,
			"email":          r.Email,
			"college":        r.College,
			"events":         r.Events,
			"payment_status": r.PaymentStatus,
			"attended":       r.Attended,
			"attended_at":    r.AttendedAt,
		}
	})
}

func (h *Handler) respondLookup(c *gin.Context, reg *models.Registration, err error, view func(*models.Registration) interface{}) {
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "registration not found")
		return
	}
	if err != nil {
		h.logger.Error("registration lookup failed", zap.Error(err))
		response.ServiceUnavailable(c, "lookup temporarily unavailable")
		return
	}
	response.OK(c, view(reg))
}
