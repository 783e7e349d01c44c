package models

// ScanPayload is the decoded content of a scanned code. It is never
// persisted; the ledger is keyed by ticket id alone.
type ScanPayload struct {
	TicketID string `json:"ticket_id"`
	EventID  string `json:"event_id"` // empty for bare-identifier fallback scans
	Bare     bool   `json:"bare"`     // true when the scan carried only a ticket id, no token
}

// ValidateRequest is one scan submission presented to the coordinator.
type ValidateRequest struct {
	Raw           string `json:"raw"`
	EventID       string `json:"event_id"`
	ValidatorID   string `json:"validator_id"`
	ValidatorName string `json:"validator_name"`
	Location      string `json:"location,omitempty"`
	ManualEntry   bool   `json:"manual_entry"`
}
