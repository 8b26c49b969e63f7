// Package notify delivers fire-and-forget scheduling events (appointment
// confirmed/cancelled, queue calls) to interested listeners. Delivery
// failures are logged and dropped; they never affect the transaction that
// produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentConfirmed = "appointment.confirmed"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentCompleted = "appointment.completed"
	EventAppointmentNoShow    = "appointment.no_show"
	EventQueueCheckedIn       = "queue.checked_in"
	EventQueueCalled          = "queue.called"
	EventQueueCompleted       = "queue.completed"
)

type Event struct {
	Type          string     `json:"type"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	QueueEntryID  *uuid.UUID `json:"queue_entry_id,omitempty"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	At            time.Time  `json:"at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// RedisDispatcher publishes events on a single pub/sub channel.
type RedisDispatcher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisDispatcher(client *redis.Client, channel string, log zerolog.Logger) *RedisDispatcher {
	return &RedisDispatcher{client: client, channel: channel, log: log}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}

	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}

	d.log.Debug().Str("event", ev.Type).Str("provider_id", ev.ProviderID.String()).Msg("event published")
	return nil
}

// Noop discards all events. Used in tests and when Redis is unavailable.
type Noop struct{}

func (Noop) Dispatch(context.Context, Event) error { return nil }
