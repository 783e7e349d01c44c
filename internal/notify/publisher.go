package notify

import (
	"context"
	"fmt"
	"log/slog"

	"checkin-system/models"
	"checkin-system/utils"

	pubnub "github.com/pubnub/go"
)

// Publisher pushes every redemption result to the event's live
// channel so door dashboards and the audit view update in real time.
// Publishing is best-effort: the breaker fails fast during a PubNub
// outage and the gate keeps scanning.
type Publisher struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPublisher(pn *pubnub.PubNub) *Publisher {
	return &Publisher{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub-results"),
	}
}

func channelFor(eventID string) string {
	return fmt.Sprintf("checkin-%s", eventID)
}

func (p *Publisher) PublishResult(eventID string, result *models.RedemptionResult) {
	message := map[string]interface{}{
		"type":         "checkin_result",
		"outcome":      string(result.Outcome),
		"manual_entry": result.ManualEntry,
		"validated_at": result.ValidatedAt,
	}
	if result.Ticket != nil {
		message["ticket_id"] = result.Ticket.TicketID
		message["holder_name"] = result.Ticket.HolderName
		message["ticket_type"] = result.Ticket.TicketType
		if result.Ticket.PriorValidator != "" {
			message["prior_validator"] = result.Ticket.PriorValidator
		}
	}

	err := p.breaker.Do(context.Background(), func() error {
		_, _, err := p.pubnub.Publish().
			Channel(channelFor(eventID)).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Warn("result publish dropped", "event_id", eventID, "error", err)
	}
}
