package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/wa_gateway/internal/platform/eventbus"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
	"github.com/aradsms/wa_gateway/internal/webhook_service/intent"
)

// EventPublisher is the bus surface the processor publishes through.
type EventPublisher interface {
	Dispatch(ctx context.Context, e eventbus.Event) eventbus.Outcome
}

// Result counts what happened to the units of one webhook delivery.
type Result struct {
	Published  int
	Duplicates int
	Rejected   int
	Skipped    int
}

type changeHandler func(ctx context.Context, entryID string, raw json.RawMessage, receivedAt time.Time, res *Result)

// Processor normalizes a verified webhook payload into envelopes and
// publishes them. It never fails the delivery as a whole.
type Processor struct {
	claims     domain.IdempotencyStore
	bus        EventPublisher
	classifier *intent.Classifier
	logger     *slog.Logger
	routes     map[string]changeHandler
}

func NewProcessor(claims domain.IdempotencyStore, bus EventPublisher, classifier *intent.Classifier, logger *slog.Logger) *Processor {
	p := &Processor{
		claims:     claims,
		bus:        bus,
		classifier: classifier,
		logger:     logger.With("component", "webhook_processor"),
	}
	p.routes = map[string]changeHandler{
		domain.FieldMessages: p.handleMessagesField,
	}
	return p
}

// Process walks entries and changes in payload order.
func (p *Processor) Process(ctx context.Context, payload *domain.WebhookPayload, receivedAt time.Time) Result {
	var res Result
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			route, ok := p.routes[change.Field]
			if !ok {
				p.logger.InfoContext(ctx, "Skipping unrouted webhook field", "field", change.Field, "entry_id", entry.ID)
				unknownFieldsCounter.WithLabelValues(change.Field).Inc()
				res.Skipped++
				continue
			}
			route(ctx, entry.ID, change.Value, receivedAt, &res)
		}
	}
	p.logger.InfoContext(ctx, "Webhook delivery processed",
		"published", res.Published, "duplicates", res.Duplicates, "rejected", res.Rejected, "skipped", res.Skipped)
	return res
}

func (p *Processor) handleMessagesField(ctx context.Context, entryID string, raw json.RawMessage, receivedAt time.Time, res *Result) {
	var value domain.WebhookValue
	if err := json.Unmarshal(raw, &value); err != nil {
		p.logger.WarnContext(ctx, "Failed to decode messages change value", "error", err, "entry_id", entryID)
		envelopesRejectedCounter.WithLabelValues("decode_error").Inc()
		res.Rejected++
		return
	}

	for _, msg := range value.Messages {
		p.handleMessage(ctx, value, msg, receivedAt, res)
	}
	for _, st := range value.Statuses {
		p.handleStatus(ctx, value, st, receivedAt, res)
	}
	for _, we := range value.Errors {
		p.handleError(ctx, value, we, receivedAt, res)
	}
}

func (p *Processor) handleMessage(ctx context.Context, value domain.WebhookValue, msg map[string]any, receivedAt time.Time, res *Result) {
	id, _ := msg["id"].(string)
	logger := p.logger.With("external_id", id)

	if err := domain.ValidateExternalID(id); err != nil {
		logger.WarnContext(ctx, "Rejecting message with invalid id", "error", err)
		envelopesRejectedCounter.WithLabelValues("invalid_id").Inc()
		res.Rejected++
		return
	}

	claimed, err := p.claims.Claim(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "Could not claim message, dropping it", "error", err)
		envelopesRejectedCounter.WithLabelValues("claim_error").Inc()
		res.Rejected++
		return
	}
	if !claimed {
		logger.InfoContext(ctx, "Duplicate message skipped")
		duplicatesSkippedCounter.Inc()
		res.Duplicates++
		return
	}

	rawFrom, _ := msg["from"].(string)
	sender, err := domain.SanitizePhone(rawFrom)
	if err != nil {
		logger.WarnContext(ctx, "Invalid sender phone, publishing without sender", "error", err)
	}

	rawTS, _ := msg["timestamp"].(string)
	occurredAt, ok := domain.ParseTimestamp(rawTS, receivedAt)
	if !ok {
		logger.WarnContext(ctx, "Implausible message timestamp, using receipt time", "timestamp", rawTS)
	}

	parsed := p.classifier.Parse(msg)
	intentsDetectedCounter.WithLabelValues(string(parsed.Intent)).Inc()

	p.publish(ctx, domain.Envelope{
		ExternalID:        id,
		Kind:              domain.KindMessage,
		OccurredAt:        occurredAt,
		TimestampFallback: !ok,
		Sender:            sender,
		PhoneNumberID:     value.Metadata.PhoneNumberID,
		Payload: map[string]any{
			"message_type": string(parsed.MessageType),
			"intent":       string(parsed.Intent),
			"fields":       parsed.Fields,
			"contact_name": value.ContactName(rawFrom),
			"message":      msg,
		},
	}, res)
}

func (p *Processor) handleStatus(ctx context.Context, value domain.WebhookValue, st domain.MessageStatus, receivedAt time.Time, res *Result) {
	recipient, err := domain.SanitizePhone(st.RecipientID)
	if err != nil {
		p.logger.WarnContext(ctx, "Invalid status recipient, publishing without it", "external_id", st.ID, "error", err)
	}
	occurredAt, ok := domain.ParseTimestamp(st.Timestamp, receivedAt)

	payload := map[string]any{"status": st.Status}
	if st.Conversation != nil {
		payload["conversation"] = st.Conversation
	}
	if st.Pricing != nil {
		payload["pricing"] = st.Pricing
	}
	if len(st.Errors) > 0 {
		payload["errors"] = st.Errors
	}

	p.publish(ctx, domain.Envelope{
		ExternalID:        st.ID,
		Kind:              domain.KindStatus,
		OccurredAt:        occurredAt,
		TimestampFallback: !ok,
		Sender:            recipient,
		PhoneNumberID:     value.Metadata.PhoneNumberID,
		Payload:           payload,
	}, res)
}

func (p *Processor) handleError(ctx context.Context, value domain.WebhookValue, we domain.WebhookError, receivedAt time.Time, res *Result) {
	p.publish(ctx, domain.Envelope{
		ExternalID:        fmt.Sprintf("err_%d", time.Now().UnixNano()),
		Kind:              domain.KindError,
		OccurredAt:        receivedAt,
		TimestampFallback: true,
		PhoneNumberID:     value.Metadata.PhoneNumberID,
		Payload: map[string]any{
			"code":       we.Code,
			"title":      we.Title,
			"message":    we.Message,
			"error_data": we.ErrorData,
		},
	}, res)
}

// publish hands the envelope to the bus. Handler failures are isolated and
// logged by the bus and do not affect the delivery.
func (p *Processor) publish(ctx context.Context, env domain.Envelope, res *Result) {
	out := p.bus.Dispatch(ctx, eventbus.NewEvent(env.Kind.EventName(), env.EventPayload()))
	if len(out.Failed) > 0 {
		p.logger.WarnContext(ctx, "Some event handlers failed", "event", env.Kind.EventName(),
			"external_id", env.ExternalID, "failed", len(out.Failed))
	}
	envelopesPublishedCounter.WithLabelValues(string(env.Kind)).Inc()
	res.Published++
}
