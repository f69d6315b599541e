package app

import (
	"context"
	"log/slog"

	"github.com/aradsms/wa_gateway/internal/platform/eventbus"
	"github.com/aradsms/wa_gateway/internal/platform/graphapi"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
)

// ReadReceiptPriority runs read receipts after domain handlers.
const ReadReceiptPriority = 100

// ReadMarker sends read receipts. *graphapi.Client implements it.
type ReadMarker interface {
	MarkRead(ctx context.Context, phoneNumberID, messageID string) error
}

// ReadReceiptHandler marks every inbound message as read.
type ReadReceiptHandler struct {
	client               ReadMarker
	defaultPhoneNumberID string
	logger               *slog.Logger
}

func NewReadReceiptHandler(client ReadMarker, defaultPhoneNumberID string, logger *slog.Logger) *ReadReceiptHandler {
	return &ReadReceiptHandler{
		client:               client,
		defaultPhoneNumberID: defaultPhoneNumberID,
		logger:               logger.With("component", "read_receipts"),
	}
}

func (h *ReadReceiptHandler) Register(bus *eventbus.Bus) bool {
	_, ok := bus.Listen(domain.EventMessages, h.Handle, ReadReceiptPriority)
	return ok
}

func (h *ReadReceiptHandler) Handle(ctx context.Context, e eventbus.Event) error {
	messageID, _ := e.Payload["external_id"].(string)
	phoneNumberID, _ := e.Payload["phone_number_id"].(string)
	if phoneNumberID == "" {
		phoneNumberID = h.defaultPhoneNumberID
	}
	if messageID == "" || phoneNumberID == "" {
		h.logger.WarnContext(ctx, "Cannot send read receipt, missing ids", "event_id", e.ID)
		return nil
	}

	if err := h.client.MarkRead(ctx, phoneNumberID, messageID); err != nil {
		if graphapi.IsCircuitOpen(err) {
			readReceiptsCounter.WithLabelValues("circuit_open").Inc()
		} else {
			readReceiptsCounter.WithLabelValues("failed").Inc()
		}
		return err
	}
	readReceiptsCounter.WithLabelValues("sent").Inc()
	return nil
}
