package handlers

import (
	"errors"
	"net/http"

	"checkin-system/internal/ledger"
	"checkin-system/internal/scancode"
	"checkin-system/models"
	"checkin-system/monitoring"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	ledger *ledger.Ledger
	codec  *scancode.Codec
}

func NewTicketHandler(l *ledger.Ledger, codec *scancode.Codec) *TicketHandler {
	return &TicketHandler{
		ledger: l,
		codec:  codec,
	}
}

// IssueCode returns the scannable string for a ticket. Encoding is
// deterministic, so re-issuing (lost email, reprint) yields the same
// code.
func (h *TicketHandler) IssueCode(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	ticket, err := h.ledger.GetTicket(e.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, ledger.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", err)
		}
		return apis.NewApiError(http.StatusServiceUnavailable, "Ledger unavailable", err)
	}
	if ticket.Status == models.TicketRefunded {
		return apis.NewBadRequestError("Ticket is refunded", nil)
	}

	code, err := h.codec.Encode(ticket.ID, ticket.EventID)
	if err != nil {
		return apis.NewBadRequestError("Failed to encode ticket", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticket.ID,
		"event_id":  ticket.EventID,
		"code":      code,
	})
}

// Refund marks a ticket refunded. Terminal: a refunded ticket never
// admits again.
func (h *TicketHandler) Refund(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")

	if err := h.ledger.RefundTicket(e.Request.Context(), ticketID); err != nil {
		monitoring.TrackAdminOp("refund", "error")
		if errors.Is(err, ledger.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", err)
		}
		return apis.NewApiError(http.StatusServiceUnavailable, "Ledger unavailable", err)
	}

	monitoring.TrackAdminOp("refund", "success")
	return e.JSON(http.StatusOK, map[string]string{
		"ticket_id": ticketID,
		"status":    string(models.TicketRefunded),
	})
}

// Reopen reverses an accidental scan (used back to unused). A
// separately authorized correction, deliberately outside the normal
// validation path.
func (h *TicketHandler) Reopen(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")

	if err := h.ledger.ReopenTicket(e.Request.Context(), ticketID); err != nil {
		monitoring.TrackAdminOp("reopen", "error")
		switch {
		case errors.Is(err, ledger.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", err)
		case errors.Is(err, ledger.ErrNotReopenable):
			return apis.NewBadRequestError("Only used tickets can be reopened", err)
		default:
			return apis.NewApiError(http.StatusServiceUnavailable, "Ledger unavailable", err)
		}
	}

	monitoring.TrackAdminOp("reopen", "success")
	return e.JSON(http.StatusOK, map[string]string{
		"ticket_id": ticketID,
		"status":    string(models.TicketUnused),
	})
}
