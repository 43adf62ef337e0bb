package mqtt

import (
	"encoding/json"
	"time"
)

// publisher is the subset of Client the event publisher uses.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Event is the envelope of every gateway event published on the bus.
type Event struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// EventPublisher publishes gateway events to graylogic/gateway/event/{type}.
// Publishing is best effort: failures are logged and dropped.
type EventPublisher struct {
	pub    publisher
	qos    byte
	source string
	logger Logger
}

// NewEventPublisher publishes events through c, tagged with source
// (typically the gateway ID).
func NewEventPublisher(c *Client, source string) *EventPublisher {
	return &EventPublisher{
		pub:    c,
		qos:    c.QoS(),
		source: source,
		logger: c.getLogger(),
	}
}

// SetLogger sets the logger for dropped events.
func (e *EventPublisher) SetLogger(logger Logger) {
	e.logger = logger
}

// PublishEvent publishes one event. Events are not retained.
func (e *EventPublisher) PublishEvent(eventType string, payload any) {
	b, err := json.Marshal(Event{
		Type:      eventType,
		Source:    e.source,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		e.warn("encoding event failed", eventType, err)
		return
	}
	if err := e.pub.Publish(Topics{}.Event(eventType), b, e.qos, false); err != nil {
		e.warn("publishing event failed", eventType, err)
	}
}

func (e *EventPublisher) warn(msg, eventType string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, "event", eventType, "error", err)
	}
}
