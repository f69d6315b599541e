package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EnvelopeKind discriminates normalized webhook units.
type EnvelopeKind string

const (
	KindMessage EnvelopeKind = "message"
	KindStatus  EnvelopeKind = "status"
	KindError   EnvelopeKind = "error"
)

// Event names published on the bus, one per envelope kind.
const (
	EventMessages = "webhook.messages"
	EventStatuses = "webhook.statuses"
	EventErrors   = "webhook.errors"
)

func (k EnvelopeKind) EventName() string {
	switch k {
	case KindMessage:
		return EventMessages
	case KindStatus:
		return EventStatuses
	default:
		return EventErrors
	}
}

// Envelope is one normalized unit of inbound webhook work.
type Envelope struct {
	ExternalID string
	Kind       EnvelopeKind
	OccurredAt time.Time
	// TimestampFallback is set when OccurredAt is the receipt time because
	// the delivered timestamp was missing or implausible.
	TimestampFallback bool
	Sender            string
	PhoneNumberID     string
	Payload           map[string]any
}

// EventPayload flattens the envelope into the bus event payload.
func (e Envelope) EventPayload() map[string]any {
	out := make(map[string]any, len(e.Payload)+6)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["external_id"] = e.ExternalID
	out["kind"] = string(e.Kind)
	out["occurred_at"] = e.OccurredAt.UTC().Format(time.RFC3339)
	out["timestamp_fallback"] = e.TimestampFallback
	out["sender"] = e.Sender
	out["phone_number_id"] = e.PhoneNumberID
	return out
}

const maxExternalIDLen = 256

var externalIDPattern = regexp.MustCompile(`^wamid\.[A-Za-z0-9_\-=+/]+$`)

// ValidateExternalID rejects ids that are not platform message ids, not just empty ones.
func ValidateExternalID(id string) error {
	if id == "" || len(id) > maxExternalIDLen || !externalIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidExternalID, truncate(id, 64))
	}
	return nil
}

// SanitizePhone strips formatting and returns an E.164-like digit string of 7 to 15 digits.
func SanitizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("%w: unexpected character in %q", ErrInvalidPhone, truncate(raw, 32))
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %d digits", ErrInvalidPhone, len(digits))
	}
	return digits, nil
}

const (
	maxTimestampSkew = 5 * time.Minute
	maxTimestampAge  = 30 * 24 * time.Hour
)

// ParseTimestamp parses unix seconds. Unparseable, non-positive, more than
// five minutes ahead of receivedAt or older than 30 days falls back to
// receivedAt with ok=false.
func ParseTimestamp(raw string, receivedAt time.Time) (time.Time, bool) {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return receivedAt, false
	}
	ts := time.Unix(secs, 0).UTC()
	if ts.After(receivedAt.Add(maxTimestampSkew)) || ts.Before(receivedAt.Add(-maxTimestampAge)) {
		return receivedAt, false
	}
	return ts, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
