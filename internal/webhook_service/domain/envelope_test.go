package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExternalID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"Simple", "wamid.ABC", false},
		{"Base64ish", "wamid.HBgLMTU1NTEyMzQ1NjcVAgASGBQzQTdCRDQ5RkE0NkY2RjQ4QUZGNgA=", false},
		{"Empty", "", true},
		{"MissingPrefix", "ABC123", true},
		{"PrefixOnly", "wamid.", true},
		{"Whitespace", "wamid.AB C", true},
		{"Injection", "wamid.x';DROP TABLE", true},
		{"TooLong", "wamid." + strings.Repeat("A", 251), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExternalID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidExternalID)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizePhone(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"15551234567", "15551234567", false},
		{"+1 (555) 123-4567", "15551234567", false},
		{"1234567", "1234567", false},
		{"123456", "", true},
		{"1234567890123456", "", true},
		{"1555abc4567", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := SanitizePhone(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		raw    string
		want   time.Time
		wantOK bool
	}{
		{"Valid", "1714564740", time.Unix(1714564740, 0).UTC(), true},
		{"SmallFutureSkew", "1714565040", time.Unix(1714565040, 0).UTC(), true},
		{"Garbage", "yesterday", received, false},
		{"Empty", "", received, false},
		{"Zero", "0", received, false},
		{"Negative", "-5", received, false},
		{"TooFarAhead", "1714566000", received, false},
		{"TooOld", "1700000000", received, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw, received)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestEnvelope_EventPayload(t *testing.T) {
	env := Envelope{
		ExternalID: "wamid.ABC",
		Kind:       KindMessage,
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Sender:     "15551234567",
		Payload:    map[string]any{"intent": "greeting", "kind": "overwritten"},
	}
	p := env.EventPayload()
	assert.Equal(t, "wamid.ABC", p["external_id"])
	assert.Equal(t, "message", p["kind"])
	assert.Equal(t, "greeting", p["intent"])
	assert.Equal(t, "2024-05-01T12:00:00Z", p["occurred_at"])
	assert.Equal(t, "webhook.messages", env.Kind.EventName())
	assert.Equal(t, "webhook.errors", KindError.EventName())
	assert.Equal(t, "overwritten", env.Payload["kind"], "source payload is not mutated")
}
