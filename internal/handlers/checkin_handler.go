package handlers

import (
	"net/http"

	"checkin-system/internal/validation"
	"checkin-system/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CheckinHandler struct {
	coordinator *validation.Coordinator
	sessions    *validation.SessionRegistry
}

func NewCheckinHandler(coordinator *validation.Coordinator, sessions *validation.SessionRegistry) *CheckinHandler {
	return &CheckinHandler{
		coordinator: coordinator,
		sessions:    sessions,
	}
}

type validateRequest struct {
	Raw         string `json:"raw"`
	EventID     string `json:"event_id"`
	DeviceID    string `json:"device_id"`
	Location    string `json:"location"`
	ManualEntry bool   `json:"manual_entry"`
}

type validateResponse struct {
	Suppressed bool                       `json:"suppressed"`
	Result     *models.RedemptionResult   `json:"result,omitempty"`
	Session    validation.SessionSnapshot `json:"session"`
}

// Validate handles one scan submission from a device.
func (h *CheckinHandler) Validate(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req validateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Raw == "" || req.EventID == "" {
		return apis.NewBadRequestError("raw and event_id are required", nil)
	}

	session := h.sessions.Get(e.Auth.Id, deviceOrDefault(req.DeviceID))

	// Manual entries express deliberate operator intent and skip the
	// duplicate-scan window.
	if !req.ManualEntry && session.Suppress(req.Raw) {
		return e.JSON(http.StatusOK, validateResponse{
			Suppressed: true,
			Session:    session.Snapshot(),
		})
	}

	result, err := h.coordinator.Validate(e.Request.Context(), &models.ValidateRequest{
		Raw:           req.Raw,
		EventID:       req.EventID,
		ValidatorID:   e.Auth.Id,
		ValidatorName: validatorName(e.Auth),
		Location:      req.Location,
		ManualEntry:   req.ManualEntry,
	})
	if err != nil {
		// Transient: the device retries; this is never "invalid ticket".
		// The retry resubmits the identical raw code, so it must not be
		// sitting in the suppression window.
		session.Forget(req.Raw)
		return apis.NewApiError(http.StatusServiceUnavailable,
			"Validation temporarily unavailable, please retry", err)
	}

	session.RecordOutcome(result.Outcome)

	return e.JSON(http.StatusOK, validateResponse{
		Result:  result,
		Session: session.Snapshot(),
	})
}

// GetSession returns the device's rolling counters.
func (h *CheckinHandler) GetSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	device := deviceOrDefault(e.Request.URL.Query().Get("device_id"))
	return e.JSON(http.StatusOK, h.sessions.Get(e.Auth.Id, device).Snapshot())
}

// ResetSession discards the device's session, as when validation
// restarts on it.
func (h *CheckinHandler) ResetSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	h.sessions.Reset(e.Auth.Id, deviceOrDefault(req.DeviceID))
	return e.JSON(http.StatusOK, map[string]string{"status": "reset"})
}

func deviceOrDefault(deviceID string) string {
	if deviceID == "" {
		return "default"
	}
	return deviceID
}

func validatorName(auth *core.Record) string {
	if name := auth.GetString("name"); name != "" {
		return name
	}
	return auth.GetString("email")
}
