package handlers

import (
	"net/http"
	"strconv"

	"checkin-system/internal/ledger"
	"checkin-system/internal/stats"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// StatsHandler serves the read-side projections: attempt history for
// audit/dispute review and attendance counters for dashboards.
type StatsHandler struct {
	ledger     *ledger.Ledger
	aggregator *stats.Aggregator
	pageSize   int
}

func NewStatsHandler(l *ledger.Ledger, aggregator *stats.Aggregator, pageSize int) *StatsHandler {
	return &StatsHandler{
		ledger:     l,
		aggregator: aggregator,
		pageSize:   pageSize,
	}
}

// ListAttempts returns one page of an event's attempt history, newest
// first.
func (h *StatsHandler) ListAttempts(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("eventId")
	page, _ := strconv.Atoi(e.Request.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	attempts, err := h.ledger.ListAttempts(e.Request.Context(), eventID, page, h.pageSize)
	if err != nil {
		return apis.NewApiError(http.StatusServiceUnavailable, "Ledger unavailable", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"page":     page,
		"per_page": h.pageSize,
		"attempts": attempts,
	})
}

// GetStats returns the live attendance counters for an event. Counters
// are eventually consistent with the ledger; the attempt history is
// the authoritative record.
func (h *StatsHandler) GetStats(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("eventId")
	summary, err := h.aggregator.Summary(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewApiError(http.StatusServiceUnavailable, "Stats unavailable", err)
	}

	return e.JSON(http.StatusOK, summary)
}
