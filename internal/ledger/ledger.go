package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

const (
	ticketsCollection  = "tickets"
	attemptsCollection = "checkin_attempts"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrNotReopenable  = errors.New("ticket is not in used state")

	// ErrUnavailable wraps storage failures so callers can tell a
	// transient infrastructure problem apart from a business rejection.
	ErrUnavailable = errors.New("ledger unavailable")
)

// Ledger is the durable, authoritative store of ticket status and the
// append-only redemption attempt history. It is the sole writer of
// ticket status.
type Ledger struct {
	app core.App
}

func New(app core.App) *Ledger {
	return &Ledger{app: app}
}

func (l *Ledger) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	record, err := l.app.FindRecordById(ticketsCollection, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ticketFromRecord(record), nil
}

// TryMarkUsed is the single authoritative check-and-transition. The
// status flip is one conditional UPDATE, so under a race of two
// simultaneous scans exactly one caller sees Accepted and the other
// sees RejectedAlreadyUsed. A returned error is always transient;
// business rejections come back as outcomes.
func (l *Ledger) TryMarkUsed(ctx context.Context, ticketID, expectedEventID, validatorID string) (models.Outcome, error) {
	result, err := l.app.NonconcurrentDB().
		NewQuery(`UPDATE tickets
			SET status = {:used}, used_at = {:now}, used_by = {:validator}
			WHERE id = {:id} AND event_id = {:event} AND status = {:unused}`).
		Bind(dbx.Params{
			"used":      string(models.TicketUsed),
			"now":       types.NowDateTime().String(),
			"validator": validatorID,
			"id":        ticketID,
			"event":     expectedEventID,
			"unused":    string(models.TicketUnused),
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rows == 1 {
		return models.Accepted, nil
	}

	// The guarded update did not fire; a follow-up read classifies why.
	// Any concurrent winner has already committed, so the read is safe.
	ticket, err := l.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return models.RejectedUnknownTicket, nil
		}
		return "", err
	}

	switch {
	case ticket.EventID != expectedEventID:
		return models.RejectedWrongEvent, nil
	case ticket.Status == models.TicketRefunded:
		return models.RejectedRefunded, nil
	default:
		return models.RejectedAlreadyUsed, nil
	}
}

// RefundTicket is the refund workflow's entry point, outside the scan
// path. Refund is terminal; refunding an already refunded ticket is a
// no-op.
func (l *Ledger) RefundTicket(ctx context.Context, ticketID string) error {
	result, err := l.app.NonconcurrentDB().
		NewQuery(`UPDATE tickets SET status = {:refunded}
			WHERE id = {:id} AND status != {:refunded}`).
		Bind(dbx.Params{
			"refunded": string(models.TicketRefunded),
			"id":       ticketID,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := l.GetTicket(ctx, ticketID); err != nil {
			return err
		}
	}
	return nil
}

// ReopenTicket reverses an accidental scan: used back to unused. This
// is a separately authorized administrative correction and never runs
// inside the coordinator's scan path.
func (l *Ledger) ReopenTicket(ctx context.Context, ticketID string) error {
	result, err := l.app.NonconcurrentDB().
		NewQuery(`UPDATE tickets SET status = {:unused}, used_at = '', used_by = ''
			WHERE id = {:id} AND status = {:used}`).
		Bind(dbx.Params{
			"unused": string(models.TicketUnused),
			"used":   string(models.TicketUsed),
			"id":     ticketID,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := l.GetTicket(ctx, ticketID); err != nil {
			return err
		}
		return ErrNotReopenable
	}
	return nil
}

// AppendAttempt inserts one immutable attempt row. Attempts are never
// updated or deleted.
func (l *Ledger) AppendAttempt(ctx context.Context, attempt *models.RedemptionAttempt) error {
	collection, err := l.app.FindCollectionByNameOrId(attemptsCollection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record := core.NewRecord(collection)
	record.Set("ticket_id", attempt.TicketID)
	record.Set("event_id", attempt.EventID)
	record.Set("validator_id", attempt.ValidatorID)
	record.Set("validator_name", attempt.ValidatorName)
	record.Set("outcome", string(attempt.Outcome))
	record.Set("manual_entry", attempt.ManualEntry)
	record.Set("location", attempt.Location)
	record.Set("raw_hash", attempt.RawHash)

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	attempt.ID = record.Id
	attempt.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

// ListAttempts returns one page of attempt history for an event,
// newest first. Read-only projection for stats and audit UIs.
func (l *Ledger) ListAttempts(ctx context.Context, eventID string, page, perPage int) ([]*models.RedemptionAttempt, error) {
	if page < 1 {
		page = 1
	}
	records, err := l.app.FindRecordsByFilter(
		attemptsCollection,
		"event_id = {:eventId}",
		"-created",
		perPage,
		(page-1)*perPage,
		map[string]any{"eventId": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	attempts := make([]*models.RedemptionAttempt, len(records))
	for i, record := range records {
		attempts[i] = attemptFromRecord(record)
	}
	return attempts, nil
}

// FindAcceptedAttempt returns the attempt that redeemed a ticket, if
// any, so already-used responses can say who scanned it first.
func (l *Ledger) FindAcceptedAttempt(ctx context.Context, ticketID string) (*models.RedemptionAttempt, error) {
	record, err := l.app.FindFirstRecordByFilter(
		attemptsCollection,
		"ticket_id = {:ticketId} && outcome = {:outcome}",
		map[string]any{"ticketId": ticketID, "outcome": string(models.Accepted)},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return attemptFromRecord(record), nil
}

func ticketFromRecord(record *core.Record) *models.Ticket {
	ticket := &models.Ticket{
		ID:          record.Id,
		EventID:     record.GetString("event_id"),
		TicketType:  record.GetString("ticket_type"),
		HolderName:  record.GetString("holder_name"),
		HolderEmail: record.GetString("holder_email"),
		Price:       decimal.NewFromFloat(record.GetFloat("price")),
		Status:      models.TicketStatus(record.GetString("status")),
		PurchasedAt: record.GetDateTime("purchased_at").Time(),
		UsedBy:      record.GetString("used_by"),
	}
	if usedAt := record.GetDateTime("used_at"); !usedAt.IsZero() {
		t := usedAt.Time()
		ticket.UsedAt = &t
	}
	return ticket
}

func attemptFromRecord(record *core.Record) *models.RedemptionAttempt {
	return &models.RedemptionAttempt{
		ID:            record.Id,
		TicketID:      record.GetString("ticket_id"),
		EventID:       record.GetString("event_id"),
		ValidatorID:   record.GetString("validator_id"),
		ValidatorName: record.GetString("validator_name"),
		Outcome:       models.Outcome(record.GetString("outcome")),
		ManualEntry:   record.GetBool("manual_entry"),
		Location:      record.GetString("location"),
		RawHash:       record.GetString("raw_hash"),
		CreatedAt:     record.GetDateTime("created").Time(),
	}
}
