package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/wa_gateway/internal/platform/eventbus"
	"github.com/aradsms/wa_gateway/internal/platform/graphapi"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
)

type MockReadMarker struct {
	mock.Mock
}

func (m *MockReadMarker) MarkRead(ctx context.Context, phoneNumberID, messageID string) error {
	return m.Called(ctx, phoneNumberID, messageID).Error(0)
}

func TestReadReceiptHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("UsesPayloadPhoneNumberID", func(t *testing.T) {
		client := new(MockReadMarker)
		h := NewReadReceiptHandler(client, "fallback-id", discardLogger())
		client.On("MarkRead", ctx, "106540352242922", "wamid.ABC").Return(nil).Once()

		err := h.Handle(ctx, eventbus.NewEvent(domain.EventMessages, map[string]any{
			"external_id": "wamid.ABC", "phone_number_id": "106540352242922",
		}))
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("FallsBackToConfiguredID", func(t *testing.T) {
		client := new(MockReadMarker)
		h := NewReadReceiptHandler(client, "fallback-id", discardLogger())
		client.On("MarkRead", ctx, "fallback-id", "wamid.ABC").Return(nil).Once()

		require.NoError(t, h.Handle(ctx, eventbus.NewEvent(domain.EventMessages, map[string]any{"external_id": "wamid.ABC"})))
		client.AssertExpectations(t)
	})

	t.Run("MissingIDsAreIgnored", func(t *testing.T) {
		client := new(MockReadMarker)
		h := NewReadReceiptHandler(client, "", discardLogger())

		require.NoError(t, h.Handle(ctx, eventbus.NewEvent(domain.EventMessages, map[string]any{"external_id": "wamid.ABC"})))
		client.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ErrorIsIsolatedOnTheBus", func(t *testing.T) {
		client := new(MockReadMarker)
		h := NewReadReceiptHandler(client, "pnid", discardLogger())
		bus := eventbus.New(discardLogger())
		require.True(t, h.Register(bus))

		rec := &recorder{}
		bus.Listen(domain.EventMessages, rec.handle, ReadReceiptPriority+1)

		openErr := &graphapi.APIError{Kind: graphapi.KindCircuitOpen, Message: "circuit open"}
		client.On("MarkRead", mock.Anything, "pnid", "wamid.ABC").Return(openErr).Once()

		out := bus.Dispatch(ctx, eventbus.NewEvent(domain.EventMessages, map[string]any{"external_id": "wamid.ABC"}))
		require.Len(t, out.Failed, 1)
		assert.True(t, graphapi.IsCircuitOpen(out.Failed[0]))
		assert.Len(t, rec.byName(domain.EventMessages), 1)
	})
}
