package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketUnused   TicketStatus = "unused"
	TicketUsed     TicketStatus = "used"
	TicketRefunded TicketStatus = "refunded"
)

type Ticket struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	TicketType  string          `json:"ticket_type"`
	HolderName  string          `json:"holder_name"`
	HolderEmail string          `json:"holder_email"` // empty for guest purchases
	Price       decimal.Decimal `json:"price"`
	Status      TicketStatus    `json:"status"`
	PurchasedAt time.Time       `json:"purchased_at"`
	UsedAt      *time.Time      `json:"used_at,omitempty"`
	UsedBy      string          `json:"used_by,omitempty"`
}

// Guest reports whether the ticket was bought without an account.
func (t *Ticket) Guest() bool {
	return t.HolderEmail == ""
}

// TicketSummary is the holder-facing slice of a ticket returned to the
// scanning device on accepted and already-used outcomes.
type TicketSummary struct {
	TicketID       string          `json:"ticket_id"`
	EventID        string          `json:"event_id"`
	TicketType     string          `json:"ticket_type"`
	HolderName     string          `json:"holder_name"`
	HolderEmail    string          `json:"holder_email"`
	Price          decimal.Decimal `json:"price"`
	PurchasedAt    time.Time       `json:"purchased_at"`
	PriorValidator string          `json:"prior_validator,omitempty"`
	PriorUsedAt    *time.Time      `json:"prior_used_at,omitempty"`
}

func (t *Ticket) Summary() *TicketSummary {
	email := t.HolderEmail
	if email == "" {
		email = "Guest"
	}
	return &TicketSummary{
		TicketID:    t.ID,
		EventID:     t.EventID,
		TicketType:  t.TicketType,
		HolderName:  t.HolderName,
		HolderEmail: email,
		Price:       t.Price,
		PurchasedAt: t.PurchasedAt,
	}
}
