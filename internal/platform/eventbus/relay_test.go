package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

func TestNATSRelay_PublishesEveryEvent(t *testing.T) {
	bus := newTestBus()
	pub := new(MockPublisher)
	relay := NewNATSRelay(pub, "wa", bus.logger)
	require.True(t, relay.Register(bus))

	var order []string
	bus.Listen("webhook.messages", func(context.Context, Event) error {
		order = append(order, "handler")
		return nil
	}, 10)

	e := NewEvent("webhook.messages", map[string]any{"external_id": "wamid.ABC"})
	pub.On("Publish", mock.Anything, "wa.webhook.messages", mock.MatchedBy(func(data []byte) bool {
		var decoded Event
		if err := json.Unmarshal(data, &decoded); err != nil {
			return false
		}
		return decoded.ID == e.ID && decoded.Payload["external_id"] == "wamid.ABC"
	})).Run(func(mock.Arguments) { order = append(order, "relay") }).Return(nil).Once()

	out := bus.Dispatch(context.Background(), e)
	assert.Empty(t, out.Failed)
	assert.Equal(t, []string{"handler", "relay"}, order)
	pub.AssertExpectations(t)
}

func TestNATSRelay_PublishErrorIsIsolated(t *testing.T) {
	bus := newTestBus()
	pub := new(MockPublisher)
	NewNATSRelay(pub, "", bus.logger).Register(bus)
	pub.On("Publish", mock.Anything, "events.x", mock.Anything).Return(errors.New("nats: connection closed")).Once()

	out := bus.Dispatch(context.Background(), NewEvent("x", nil))
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "*", out.Failed[0].Pattern)
}
