package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTopic carries invoice status events
const DefaultTopic = "ksef.invoice.status"

// WatermillNotifier publishes events as JSON messages
type WatermillNotifier struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillNotifier creates a notifier publishing to topic
func NewWatermillNotifier(publisher message.Publisher, topic string) *WatermillNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillNotifier{
		publisher: publisher,
		topic:     topic,
	}
}

// Notify publishes the event. The message UUID is derived from the invoice
// and status so consumers can deduplicate repeated deliveries.
func (n *WatermillNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := watermill.NewUUID()
	if event.InvoiceID != "" {
		id = event.InvoiceID + ":" + string(event.Status)
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("status", string(event.Status))

	if err := n.publisher.Publish(n.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NewGoChannel creates an in-process pub/sub, used when no broker is configured
func NewGoChannel(logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, NewWatermillLogger(logger))
}

// NewRedisStreamPublisher creates a publisher writing to Redis streams
func NewRedisStreamPublisher(client *redis.Client, logger zerolog.Logger) (message.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		NewWatermillLogger(logger),
	)
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter
type watermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger wraps logger for use by watermill components
func NewWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return watermillLogger{logger: logger}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}

var _ Notifier = (*WatermillNotifier)(nil)
