package validation

import (
	"sync"
	"time"

	"checkin-system/models"
	"checkin-system/monitoring"

	"github.com/google/uuid"
)

// Session is the per-scanning-device state: the most recently
// submitted raw code, a short suppression window, and rolling outcome
// counters. It exists so a code sitting in the camera frame for
// several capture cycles produces one submission, not a storm. It is a
// client-side optimization only; the ledger's atomic transition stays
// authoritative even when two devices bypass it simultaneously.
type Session struct {
	ID          string
	ValidatorID string
	DeviceID    string

	mu        sync.Mutex
	window    time.Duration
	lastRaw   string
	lastAt    time.Time
	counts    map[models.Outcome]int
	total     int
	startedAt time.Time
}

func newSession(validatorID, deviceID string, window time.Duration) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ValidatorID: validatorID,
		DeviceID:    deviceID,
		window:      window,
		counts:      make(map[models.Outcome]int),
		startedAt:   time.Now(),
	}
}

// Suppress reports whether raw is a duplicate of the last submission
// inside the cool-down window and should be dropped without reaching
// the coordinator. A suppressed scan refreshes the window, so a code
// held in frame stays suppressed until it leaves.
func (s *Session) Suppress(raw string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if raw == s.lastRaw && now.Sub(s.lastAt) < s.window {
		s.lastAt = now
		monitoring.TrackSuppressedScan()
		return true
	}
	s.lastRaw = raw
	s.lastAt = now
	return false
}

// Forget drops the suppression entry for raw so an immediate
// resubmission goes through. Called when a submission ends undecided
// (transient failure) and the device has been told to retry: that
// retry must reach the coordinator, not be dropped as a duplicate.
func (s *Session) Forget(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRaw == raw {
		s.lastRaw = ""
		s.lastAt = time.Time{}
	}
}

// RecordOutcome bumps the rolling counters after a coordinator
// response.
func (s *Session) RecordOutcome(outcome models.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[outcome]++
	s.total++
}

// Reset clears suppression state and counters, as when validation
// restarts on the device.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRaw = ""
	s.lastAt = time.Time{}
	s.counts = make(map[models.Outcome]int)
	s.total = 0
	s.startedAt = time.Now()
}

// SessionSnapshot is the operator-facing view of a session.
type SessionSnapshot struct {
	SessionID string                 `json:"session_id"`
	Scans     int                    `json:"scans"`
	ByOutcome map[models.Outcome]int `json:"by_outcome"`
	StartedAt time.Time              `json:"started_at"`
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Outcome]int, len(s.counts))
	for outcome, n := range s.counts {
		counts[outcome] = n
	}
	return SessionSnapshot{
		SessionID: s.ID,
		Scans:     s.total,
		ByOutcome: counts,
		StartedAt: s.startedAt,
	}
}

// SessionRegistry hands out one session per validator/device pair.
type SessionRegistry struct {
	mu       sync.Mutex
	window   time.Duration
	sessions map[string]*Session
}

func NewSessionRegistry(window time.Duration) *SessionRegistry {
	return &SessionRegistry{
		window:   window,
		sessions: make(map[string]*Session),
	}
}

func (r *SessionRegistry) Get(validatorID, deviceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := validatorID + "/" + deviceID
	session, ok := r.sessions[key]
	if !ok {
		session = newSession(validatorID, deviceID, r.window)
		r.sessions[key] = session
	}
	return session
}

// Reset discards a device's session entirely; the next scan starts a
// fresh one.
func (r *SessionRegistry) Reset(validatorID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, validatorID+"/"+deviceID)
}
