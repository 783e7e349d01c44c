package scancode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"checkin-system/models"

	"golang.org/x/crypto/blake2b"
)

// Wire shape: ET1.<ticketId>.<eventId>.<token>
// The token is a keyed BLAKE2b MAC over "<ticketId>.<eventId>", so a
// payload cannot be fabricated without the server-held secret. A bare
// ticket id (the fallback shape) carries no token and is resolved
// against the ledger instead.

const (
	Prefix    = "ET1"
	separator = "."
	tokenSize = 16 // bytes of MAC, hex-encoded on the wire
)

var (
	ErrMalformed = errors.New("malformed scan code")
	ErrForged    = errors.New("forged scan code")
)

// idPattern matches record identifiers. Anything else cannot be the
// bare fallback shape and is malformed.
var idPattern = regexp.MustCompile(`^[a-z0-9]{15}$`)

type Codec struct {
	key [32]byte
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("scan code secret must not be empty")
	}
	// Stretch the secret to a fixed-size MAC key
	return &Codec{key: blake2b.Sum256([]byte(secret))}, nil
}

// Encode produces the scannable string for a ticket. Deterministic:
// re-issuing a ticket's code always yields the same string.
func (c *Codec) Encode(ticketID, eventID string) (string, error) {
	if !idPattern.MatchString(ticketID) {
		return "", fmt.Errorf("invalid ticket id %q", ticketID)
	}
	if !idPattern.MatchString(eventID) {
		return "", fmt.Errorf("invalid event id %q", eventID)
	}
	return strings.Join([]string{Prefix, ticketID, eventID, c.token(ticketID, eventID)}, separator), nil
}

// Decode interprets raw scanned text. Structured payloads have their
// tag and token verified here; a token mismatch is ErrForged and is
// never reinterpreted as the bare fallback shape. Bare ids are passed
// through for the coordinator to resolve.
func (c *Codec) Decode(raw string) (models.ScanPayload, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, Prefix+separator) {
		parts := strings.Split(raw, separator)
		if len(parts) != 4 {
			return models.ScanPayload{}, ErrMalformed
		}
		ticketID, eventID, token := parts[1], parts[2], parts[3]
		if !idPattern.MatchString(ticketID) || !idPattern.MatchString(eventID) {
			return models.ScanPayload{}, ErrMalformed
		}
		if len(token) != tokenSize*2 {
			return models.ScanPayload{}, ErrMalformed
		}
		if !hmac.Equal([]byte(token), []byte(c.token(ticketID, eventID))) {
			return models.ScanPayload{}, ErrForged
		}
		return models.ScanPayload{TicketID: ticketID, EventID: eventID}, nil
	}

	if idPattern.MatchString(raw) {
		return models.ScanPayload{TicketID: raw, Bare: true}, nil
	}

	return models.ScanPayload{}, ErrMalformed
}

func (c *Codec) token(ticketID, eventID string) string {
	mac, _ := blake2b.New(tokenSize, c.key[:])
	mac.Write([]byte(ticketID))
	mac.Write([]byte(separator))
	mac.Write([]byte(eventID))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsBareID reports whether s can be the bare-identifier fallback shape.
func IsBareID(s string) bool {
	return idPattern.MatchString(s)
}

// Fingerprint hashes raw scanned input for the forensic audit trail.
// The attempt log stores this, never the raw text itself.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
