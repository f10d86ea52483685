package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tasktrack/apiserver/types"
)

// EventType names a domain event published after a successful mutation.
type EventType string

const (
	EventTaskCreated EventType = "task.created"
	EventTaskUpdated EventType = "task.updated"
	EventTaskToggled EventType = "task.toggled"
	EventTaskDeleted EventType = "task.deleted"
	EventUserDeleted EventType = "user.deleted"
)

// DefaultEventChannel is the channel events are published to.
const DefaultEventChannel = "tasks.events"

// Event is the JSON payload published for every domain event.
type Event struct {
	Type       EventType   `json:"type"`
	UserID     string      `json:"userId"`
	TaskID     string      `json:"taskId,omitempty"`
	Task       *types.Task `json:"task,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Publisher is the broker operation used to emit events. *mq.MQ satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// EventPublisher emits domain events. A nil *EventPublisher or one without a
// backend drops events silently.
type EventPublisher struct {
	backend Publisher
	channel string
	logger  *log.Logger
}

func NewEventPublisher(backend Publisher, channel string, logger *log.Logger) *EventPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &EventPublisher{backend: backend, channel: channel, logger: logger}
}

// Emit publishes event. Failures are logged and never returned.
func (p *EventPublisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.backend == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode event", "type", event.Type, "err", err)
		return
	}

	attrs := map[string]string{
		"type":   string(event.Type),
		"userId": event.UserID,
	}
	id, err := p.backend.Publish(context.WithoutCancel(ctx), p.channel, data, attrs)
	if err != nil {
		p.logger.Warn("publish event failed", "type", event.Type, "user_id", event.UserID, "err", err)
		return
	}
	p.logger.Debug("event published", "type", event.Type, "message_id", id)
}

func taskEvent(kind EventType, task types.Task) Event {
	return Event{
		Type:   kind,
		UserID: task.UserID,
		TaskID: task.ID,
		Task:   &task,
	}
}
