// Package analytics serves the desk dashboard summary.
package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/pkg/response"
)

// Source aggregates registration counts.
type Source interface {
	Stats(ctx context.Context) (*models.RegistrationStats, error)
}

// SummaryResponse is the JSON shape for GET /stats.
type SummaryResponse struct {
	*models.RegistrationStats
	TotalNoShow    int     `json:"total_no_show"`
	RevenuePaise   int64   `json:"revenue_paise"`
	Currency       string  `json:"currency"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Handler handles GET /stats.
type Handler struct {
	source      Source
	amountPaise int64
	currency    string
	logger      *zap.Logger
}

// NewHandler creates an analytics handler. amountPaise is the ticket price.
func NewHandler(source Source, amountPaise int64, currency string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, amountPaise: amountPaise, currency: currency, logger: logger}
}

// Summarize derives dashboard figures from raw counts.
func Summarize(stats *models.RegistrationStats, amountPaise int64, currency string) SummaryResponse {
	out := SummaryResponse{
		RegistrationStats: stats,
		RevenuePaise:      int64(stats.Paid) * amountPaise,
		Currency:          currency,
	}
	// no-shows are paid attendees who never scanned in
	if noShow := stats.Paid - stats.Attended; noShow > 0 {
		out.TotalNoShow = noShow
	}
	if stats.Total > 0 {
		out.ConversionRate = float64(stats.Paid) / float64(stats.Total)
	}
	return out
}

// Summary handles GET /stats. Mount behind staff auth.
func (h *Handler) Summary(c *gin.Context) {
	stats, err := h.source.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("load stats failed", zap.Error(err))
		response.Internal(c, "failed to load registration stats")
		return
	}
	response.OK(c, Summarize(stats, h.amountPaise, h.currency))
}
