package models

import (
	"time"
)

// Outcome is the closed set of results a single scan submission can
// produce. Every consumer (handlers, stats, fan-out) switches over
// these values; there is no free-form outcome string anywhere.
type Outcome string

const (
	Accepted              Outcome = "accepted"
	RejectedAlreadyUsed   Outcome = "rejected_already_used"
	RejectedWrongEvent    Outcome = "rejected_wrong_event"
	RejectedRefunded      Outcome = "rejected_refunded"
	RejectedMalformed     Outcome = "rejected_malformed"
	RejectedForged        Outcome = "rejected_forged"
	RejectedUnknownTicket Outcome = "rejected_unknown_ticket"
)

// Outcomes lists every member, in display order.
var Outcomes = []Outcome{
	Accepted,
	RejectedAlreadyUsed,
	RejectedWrongEvent,
	RejectedRefunded,
	RejectedMalformed,
	RejectedForged,
	RejectedUnknownTicket,
}

func (o Outcome) Rejected() bool {
	return o != Accepted
}

// Known reports whether o is a member of the closed outcome set.
// Consumers reading outcomes back from external stores use this to
// keep stray fields out of typed maps.
func (o Outcome) Known() bool {
	for _, outcome := range Outcomes {
		if o == outcome {
			return true
		}
	}
	return false
}

// RedemptionAttempt is one immutable ledger row per scan submission.
type RedemptionAttempt struct {
	ID            string    `json:"id"`
	TicketID      string    `json:"ticket_id"` // empty when the code never resolved to a ticket
	EventID       string    `json:"event_id"`
	ValidatorID   string    `json:"validator_id"`
	ValidatorName string    `json:"validator_name"`
	Outcome       Outcome   `json:"outcome"`
	ManualEntry   bool      `json:"manual_entry"`
	Location      string    `json:"location,omitempty"`
	RawHash       string    `json:"raw_hash,omitempty"` // forensic hash of unresolvable input, never the raw text
	CreatedAt     time.Time `json:"created_at"`
}

// RedemptionResult is what a scanning device gets back for one
// submission.
type RedemptionResult struct {
	Outcome     Outcome        `json:"outcome"`
	Ticket      *TicketSummary `json:"ticket,omitempty"` // set on accepted and already-used only
	ManualEntry bool           `json:"manual_entry"`
	AuditGap    bool           `json:"audit_gap,omitempty"` // redemption stands but the attempt row could not be written
	ValidatedAt time.Time      `json:"validated_at"`
}

// EventStats is the read-side attendance projection for one event.
type EventStats struct {
	EventID    string            `json:"event_id"`
	Total      int64             `json:"total"`
	ByOutcome  map[Outcome]int64 `json:"by_outcome"`
	LastScanAt *time.Time        `json:"last_scan_at,omitempty"`
}

// Attendance is the number of accepted scans.
func (s *EventStats) Attendance() int64 {
	return s.ByOutcome[Accepted]
}
