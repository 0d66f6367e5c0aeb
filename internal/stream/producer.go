package stream

import (
	"context"
	"encoding/json"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/models"
	"ridepool/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Producer journals lifecycle events to Kafka for downstream analytics.
// The journal is best-effort: a broker outage never blocks or fails a
// ride or booking transition.
type Producer struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewProducer returns nil when streaming is disabled; all methods are
// nil-safe so callers wire it unconditionally.
func NewProducer(cfg *config.StreamConfig, log *logger.Logger) *Producer {
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		logger: log.WithField("component", "stream"),
	}
}

type journalRecord struct {
	EventID    string    `json:"event_id"`
	RideID     string    `json:"ride_id"`
	BookingID  string    `json:"booking_id,omitempty"`
	Type       string    `json:"type"`
	Recipients int       `json:"recipients"`
	OccurredAt time.Time `json:"occurred_at"`
}

// JournalEvent appends one lifecycle event to the topic, keyed by ride
// so per-ride ordering survives partitioning.
func (p *Producer) JournalEvent(ctx context.Context, event *models.LifecycleEvent) {
	if p == nil || event == nil {
		return
	}

	record := journalRecord{
		EventID:    event.EventID,
		RideID:     event.RideID.Hex(),
		Type:       string(event.Payload.NotificationType()),
		Recipients: len(event.Recipients),
		OccurredAt: event.OccurredAt,
	}
	if event.BookingID != nil {
		record.BookingID = event.BookingID.Hex()
	}

	value, err := json.Marshal(record)
	if err != nil {
		p.logger.WithError(err).Error("failed to encode journal record")
		return
	}

	msg := kafka.Message{
		Key:   []byte(record.RideID),
		Value: value,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithError(err).WithField("event_id", event.EventID).Warn("event journal write failed")
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
