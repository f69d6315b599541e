package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aradsms/wa_gateway/internal/platform/messagebroker"
)

// RelayPriority runs the relay after in-process handlers.
const RelayPriority = 1000

// NATSRelay forwards every event to the broker as JSON on <prefix>.<name>
// so out-of-process consumers can subscribe.
type NATSRelay struct {
	publisher messagebroker.Publisher
	prefix    string
	logger    *slog.Logger
}

func NewNATSRelay(publisher messagebroker.Publisher, subjectPrefix string, logger *slog.Logger) *NATSRelay {
	if subjectPrefix == "" {
		subjectPrefix = "events"
	}
	return &NATSRelay{
		publisher: publisher,
		prefix:    subjectPrefix,
		logger:    logger.With("component", "event_relay"),
	}
}

func (r *NATSRelay) Subject(eventName string) string {
	return r.prefix + "." + eventName
}

// Handle is the bus Handler that publishes e.
func (r *NATSRelay) Handle(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Name, err)
	}
	subject := r.Subject(e.Name)
	if err := r.publisher.Publish(ctx, subject, data); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "Event relayed", "subject", subject, "event_id", e.ID)
	return nil
}

// Register attaches the relay to every event on bus.
func (r *NATSRelay) Register(bus *Bus) bool {
	_, ok := bus.Listen("*", r.Handle, RelayPriority)
	return ok
}
