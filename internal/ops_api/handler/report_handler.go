package handler

import (
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/ops_api/service"
	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
)

// ReportHandler serves reconciliation reports
type ReportHandler struct {
	reports service.ReportService
	clock   clock.Clock
	logger  *slog.Logger
}

func NewReportHandler(logger *slog.Logger, reports service.ReportService, clk clock.Clock) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		clock:   clk,
		logger:  logger,
	}
}

func (h *ReportHandler) Latest(c *gin.Context) {
	report, err := h.reports.Latest(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load latest reconciliation report", "error", err)
		RespondInternalError(c)
		return
	}
	if report == nil {
		RespondNotFound(c, "No reconciliation run has finished yet")
		return
	}
	RespondOK(c, report)
}

// List returns reports started in [from, to], newest first. The window
// defaults to the last 24 hours.
func (h *ReportHandler) List(c *gin.Context) {
	var params ReportRangeParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	to := params.To
	if to.IsZero() {
		to = h.clock.Now().UTC()
	}
	from := params.From
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if from.After(to) {
		RespondBadRequest(c, "from must not be after to")
		return
	}

	reports, err := h.reports.List(c.Request.Context(), from, to, params.Page, params.PerPage)
	if err != nil {
		h.logger.Error("Failed to list reconciliation reports", "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, mapReports(reports))
}
