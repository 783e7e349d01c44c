package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkin-system/internal/scancode"
	"checkin-system/internal/validation"
	"checkin-system/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestEvent(method, path string, body []byte) (*core.RequestEvent, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	event := &core.RequestEvent{}
	event.Request = req
	event.Response = rec
	return event, rec
}

func authedEvent(method, path string, body []byte) (*core.RequestEvent, *httptest.ResponseRecorder) {
	event, rec := newRequestEvent(method, path, body)

	record := core.NewRecord(core.NewAuthCollection("users"))
	record.Id = "val0000000000aa"
	record.Set("name", "Gate 1 Staff")
	event.Auth = record
	return event, rec
}

func TestCheckinHandler_Validate_Unauthorized(t *testing.T) {
	handler := NewCheckinHandler(nil, validation.NewSessionRegistry(time.Second))

	event, _ := newRequestEvent(http.MethodPost, "/api/checkin/validate", []byte(`{}`))

	err := handler.Validate(event)
	assert.Error(t, err)
}

func TestCheckinHandler_Validate_MissingFields(t *testing.T) {
	handler := NewCheckinHandler(nil, validation.NewSessionRegistry(time.Second))

	event, _ := authedEvent(http.MethodPost, "/api/checkin/validate", []byte(`{"raw":""}`))

	err := handler.Validate(event)
	assert.Error(t, err)
}

func TestCheckinHandler_Validate_SuppressedDuplicateSkipsCoordinator(t *testing.T) {
	sessions := validation.NewSessionRegistry(time.Minute)
	// nil coordinator: a suppressed scan must never reach it
	handler := NewCheckinHandler(nil, sessions)

	// Prime the device's session with a first sighting of the code
	sessions.Get("val0000000000aa", "gate-1").Suppress("ET1.raw.code.aa")

	body := []byte(`{"raw":"ET1.raw.code.aa","event_id":"event00000000aa","device_id":"gate-1"}`)
	event, rec := authedEvent(http.MethodPost, "/api/checkin/validate", body)

	err := handler.Validate(event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"suppressed":true`)
}

// outageStore fails the atomic transition while down, then behaves
// like a one-ticket ledger once back up.
type outageStore struct {
	down   bool
	ticket *models.Ticket
}

func (s *outageStore) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	copied := *s.ticket
	return &copied, nil
}

func (s *outageStore) TryMarkUsed(ctx context.Context, ticketID, expectedEventID, validatorID string) (models.Outcome, error) {
	if s.down {
		return "", errors.New("database is locked")
	}
	if s.ticket.Status == models.TicketUsed {
		return models.RejectedAlreadyUsed, nil
	}
	s.ticket.Status = models.TicketUsed
	return models.Accepted, nil
}

func (s *outageStore) AppendAttempt(ctx context.Context, attempt *models.RedemptionAttempt) error {
	return nil
}

func (s *outageStore) FindAcceptedAttempt(ctx context.Context, ticketID string) (*models.RedemptionAttempt, error) {
	return nil, nil
}

func TestCheckinHandler_Validate_RetryAfterTransientFailureGoesThrough(t *testing.T) {
	store := &outageStore{down: true, ticket: &models.Ticket{
		ID:      "t1cket0000000aa",
		EventID: "event00000000aa",
		Status:  models.TicketUnused,
	}}

	codec, err := scancode.NewCodec("test-secret")
	require.NoError(t, err)
	coord := validation.NewCoordinator(store, codec, time.Second)
	handler := NewCheckinHandler(coord, validation.NewSessionRegistry(time.Minute))

	code, err := codec.Encode("t1cket0000000aa", "event00000000aa")
	require.NoError(t, err)
	body := []byte(`{"raw":"` + code + `","event_id":"event00000000aa","device_id":"gate-1"}`)

	// First pass hits the outage and comes back as "retry"
	event, _ := authedEvent(http.MethodPost, "/api/checkin/validate", body)
	err = handler.Validate(event)
	require.Error(t, err)

	// The device resubmits the identical code once the ledger is back.
	// It must reach the coordinator and decide, not die in the
	// duplicate-scan window.
	store.down = false
	event, rec := authedEvent(http.MethodPost, "/api/checkin/validate", body)
	err = handler.Validate(event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"suppressed":true`)
	assert.Contains(t, rec.Body.String(), `"outcome":"accepted"`)
}

func TestCheckinHandler_ResetSession_NewSessionID(t *testing.T) {
	sessions := validation.NewSessionRegistry(time.Minute)
	handler := NewCheckinHandler(nil, sessions)

	before := sessions.Get("val0000000000aa", "gate-1").ID

	body := []byte(`{"device_id":"gate-1"}`)
	event, rec := authedEvent(http.MethodPost, "/api/checkin/session/reset", body)

	err := handler.ResetSession(event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	after := sessions.Get("val0000000000aa", "gate-1").ID
	assert.NotEqual(t, before, after)
}

func TestCheckinHandler_GetSession(t *testing.T) {
	sessions := validation.NewSessionRegistry(time.Minute)
	handler := NewCheckinHandler(nil, sessions)

	event, rec := authedEvent(http.MethodGet, "/api/checkin/session?device_id=gate-1", nil)

	err := handler.GetSession(event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id"`)
}
