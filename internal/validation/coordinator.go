package validation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"checkin-system/internal/scancode"
	"checkin-system/models"
	"checkin-system/monitoring"
)

// Store is the slice of the ledger the coordinator needs. The ledger
// package provides the durable implementation; tests substitute an
// in-memory one.
type Store interface {
	GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	TryMarkUsed(ctx context.Context, ticketID, expectedEventID, validatorID string) (models.Outcome, error)
	AppendAttempt(ctx context.Context, attempt *models.RedemptionAttempt) error
	FindAcceptedAttempt(ctx context.Context, ticketID string) (*models.RedemptionAttempt, error)
}

// Publisher fans a finished result out to live dashboards. Implemented
// by the notify package; optional.
type Publisher interface {
	PublishResult(eventID string, result *models.RedemptionResult)
}

// Recorder feeds the read-side attendance projection. Implemented by
// the stats package; optional.
type Recorder interface {
	Record(ctx context.Context, eventID string, outcome models.Outcome) error
}

// ErrTransient marks submissions that failed on infrastructure, not on
// the ticket. Devices must surface these as "retry", never as an
// invalid ticket.
var ErrTransient = errors.New("transient validation failure")

// Coordinator adjudicates one scan submission end to end: decode,
// resolve, atomic check-and-transition, audit, respond. It holds no
// per-submission state; every call is an independent unit of work.
type Coordinator struct {
	store         Store
	codec         *scancode.Codec
	publisher     Publisher
	recorder      Recorder
	ledgerTimeout time.Duration
}

func NewCoordinator(store Store, codec *scancode.Codec, ledgerTimeout time.Duration) *Coordinator {
	return &Coordinator{
		store:         store,
		codec:         codec,
		ledgerTimeout: ledgerTimeout,
	}
}

// WithPublisher attaches a live result sink.
func (c *Coordinator) WithPublisher(p Publisher) *Coordinator {
	c.publisher = p
	return c
}

// WithRecorder attaches the attendance stats sink.
func (c *Coordinator) WithRecorder(r Recorder) *Coordinator {
	c.recorder = r
	return c
}

// Validate runs one submission through the state machine. Business
// rejections come back as outcomes with a nil error; a non-nil error
// always wraps ErrTransient and means the submission decided nothing.
func (c *Coordinator) Validate(ctx context.Context, req *models.ValidateRequest) (*models.RedemptionResult, error) {
	payload, decodeOutcome := c.decode(req)
	if decodeOutcome != "" {
		// Structural rejection: the ledger is never touched, but the
		// attempt is still logged with a forensic hash of the input.
		result, err := c.finish(ctx, req, &models.RedemptionAttempt{
			EventID:       req.EventID,
			ValidatorID:   req.ValidatorID,
			ValidatorName: req.ValidatorName,
			Outcome:       decodeOutcome,
			ManualEntry:   req.ManualEntry,
			Location:      req.Location,
			RawHash:       scancode.Fingerprint(req.Raw),
		}, nil)
		return result, err
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, c.ledgerTimeout)
	defer cancel()

	started := time.Now()
	outcome, err := c.store.TryMarkUsed(ledgerCtx, payload.TicketID, req.EventID, req.ValidatorID)
	monitoring.ObserveLedgerLatency(time.Since(started))
	if err != nil {
		// Infrastructure failure: nothing was decided, nothing is
		// recorded, the device is told to retry.
		return nil, transient(err)
	}

	attempt := &models.RedemptionAttempt{
		TicketID:      payload.TicketID,
		EventID:       req.EventID,
		ValidatorID:   req.ValidatorID,
		ValidatorName: req.ValidatorName,
		Outcome:       outcome,
		ManualEntry:   req.ManualEntry,
		Location:      req.Location,
	}

	var summary *models.TicketSummary
	if outcome == models.Accepted || outcome == models.RejectedAlreadyUsed {
		summary = c.summarize(ledgerCtx, payload.TicketID, outcome)
	}

	return c.finish(ctx, req, attempt, summary)
}

// decode maps raw input to a payload, or to a structural rejection
// outcome. Manual entries skip token verification entirely: the typed
// identifier goes straight to the ledger resolve, flagged as
// reduced-assurance on the attempt row.
func (c *Coordinator) decode(req *models.ValidateRequest) (models.ScanPayload, models.Outcome) {
	if req.ManualEntry {
		typed := strings.TrimSpace(req.Raw)
		if !scancode.IsBareID(typed) {
			return models.ScanPayload{}, models.RejectedMalformed
		}
		return models.ScanPayload{TicketID: typed, Bare: true}, ""
	}

	payload, err := c.codec.Decode(req.Raw)
	switch {
	case errors.Is(err, scancode.ErrForged):
		return models.ScanPayload{}, models.RejectedForged
	case err != nil:
		return models.ScanPayload{}, models.RejectedMalformed
	}
	return payload, ""
}

// summarize fetches display details for the operator. A failure here
// degrades the response but never changes the outcome: the transition
// has already committed.
func (c *Coordinator) summarize(ctx context.Context, ticketID string, outcome models.Outcome) *models.TicketSummary {
	ticket, err := c.store.GetTicket(ctx, ticketID)
	if err != nil {
		slog.Error("ticket summary lookup failed", "ticket_id", ticketID, "error", err)
		return nil
	}
	summary := ticket.Summary()

	if outcome == models.RejectedAlreadyUsed {
		prior, err := c.store.FindAcceptedAttempt(ctx, ticketID)
		if err != nil {
			slog.Error("prior validator lookup failed", "ticket_id", ticketID, "error", err)
		} else if prior != nil {
			summary.PriorValidator = prior.ValidatorName
			if summary.PriorValidator == "" {
				summary.PriorValidator = prior.ValidatorID
			}
			usedAt := prior.CreatedAt
			summary.PriorUsedAt = &usedAt
		}
	}
	return summary
}

// finish appends the audit row, notifies the sinks and builds the
// response. An audit write failure after an accepted transition is
// degraded-but-successful: the redemption stands and the gap is
// flagged for reconciliation. For rejections nothing was mutated, so
// the same failure is safe to surface as transient instead of leaving
// the audit trail short.
func (c *Coordinator) finish(ctx context.Context, req *models.ValidateRequest, attempt *models.RedemptionAttempt, summary *models.TicketSummary) (*models.RedemptionResult, error) {
	result := &models.RedemptionResult{
		Outcome:     attempt.Outcome,
		Ticket:      summary,
		ManualEntry: req.ManualEntry,
		ValidatedAt: time.Now().UTC(),
	}

	// The audit insert is bounded like the transition: a hung storage
	// round-trip must not stall the submission indefinitely.
	appendCtx, cancel := context.WithTimeout(ctx, c.ledgerTimeout)
	defer cancel()

	if err := c.store.AppendAttempt(appendCtx, attempt); err != nil {
		if attempt.Outcome == models.Accepted {
			slog.Error("audit append failed after accepted redemption",
				"ticket_id", attempt.TicketID, "validator_id", attempt.ValidatorID, "error", err)
			monitoring.TrackAuditGap(req.EventID)
			result.AuditGap = true
		} else {
			return nil, transient(err)
		}
	}

	monitoring.TrackValidation(req.EventID, string(attempt.Outcome), req.ManualEntry)

	if c.recorder != nil {
		go func() {
			if err := c.recorder.Record(context.Background(), req.EventID, attempt.Outcome); err != nil {
				slog.Error("stats record failed", "event_id", req.EventID, "error", err)
			}
		}()
	}
	if c.publisher != nil {
		go c.publisher.PublishResult(req.EventID, result)
	}

	return result, nil
}

func transient(err error) error {
	return errors.Join(ErrTransient, err)
}
