package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/infrastructure/config"
)

// publisher is the subset of Client the sink needs.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventSink forwards lifecycle events to the broker. It implements
// events.Publisher.
type EventSink struct {
	client publisher
	topics Topics
	qos    byte
	logger Logger
}

// NewEventSink builds a sink publishing through client with the configured
// QoS and topic prefix. logger may be nil.
func NewEventSink(client publisher, cfg config.MQTTConfig, logger Logger) *EventSink {
	return &EventSink{
		client: client,
		topics: Topics{Prefix: cfg.TopicPrefix},
		qos:    byte(cfg.QoS),
		logger: logger,
	}
}

// eventMessage is the wire format consumed by queue workers.
type eventMessage struct {
	Event          string `json:"event"`
	ExperimentID   string `json:"experiment_id,omitempty"`
	ResultID       int64  `json:"result_id,omitempty"`
	Status         string `json:"status,omitempty"`
	PreviousStatus string `json:"previous_status,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Publish implements events.Publisher. Failures are logged and dropped.
func (s *EventSink) Publish(_ context.Context, ev events.Event) {
	topic := s.topicFor(ev)
	if topic == "" {
		return
	}

	payload, err := buildEventPayload(ev)
	if err != nil {
		s.warn("mqtt event encode failed", "event", ev.Type, "error", err)
		return
	}

	if err := s.client.Publish(topic, payload, s.qos, false); err != nil {
		s.warn("mqtt event publish failed", "event", ev.Type, "topic", topic, "error", err)
	}
}

func (s *EventSink) topicFor(ev events.Event) string {
	switch ev.Type {
	case events.ExperimentQueued:
		return s.topics.ExperimentQueued(ev.ExperimentID)
	case events.ExperimentStatusChanged:
		return s.topics.ExperimentStatus(ev.ExperimentID)
	case events.ExperimentDeleted:
		return s.topics.ExperimentDeleted(ev.ExperimentID)
	case events.ResultRecorded:
		return s.topics.ResultRecorded(ev.ResultID)
	default:
		return ""
	}
}

func buildEventPayload(ev events.Event) ([]byte, error) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(eventMessage{
		Event:          string(ev.Type),
		ExperimentID:   ev.ExperimentID,
		ResultID:       ev.ResultID,
		Status:         ev.Status,
		PreviousStatus: ev.PrevStatus,
		UserID:         ev.OwnerID,
		Timestamp:      ts.UTC().Format(time.RFC3339Nano),
	})
}

func (s *EventSink) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
