// internal/events/events.go

// Package events publishes rank-up and goal-crossed notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"goldencobra/internal/spending"
)

const (
	TypeRankUp      = "RankUp"
	TypeGoalCrossed = "GoalCrossed"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends envelopes to <prefix>.rank_up and <prefix>.goal_crossed.
type NATSPublisher struct {
	conn   Conn
	prefix string
}

var _ spending.Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Connect dials url and returns the connection with a publisher on top of it.
func Connect(url, prefix string, log zerolog.Logger) (*nats.Conn, *NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("goldencobra"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, NewNATSPublisher(conn, prefix), nil
}

func (p *NATSPublisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

func (p *NATSPublisher) publish(subject, eventType string, data any) error {
	env, err := newEnvelope(eventType, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) PublishRankUp(_ context.Context, event spending.RankUpEvent) error {
	return p.publish(p.Subject("rank_up"), TypeRankUp, event)
}

func (p *NATSPublisher) PublishGoalCrossed(_ context.Context, event spending.GoalCrossedEvent) error {
	return p.publish(p.Subject("goal_crossed"), TypeGoalCrossed, event)
}

// LogPublisher writes notifications to the log when no broker is configured.
type LogPublisher struct {
	log zerolog.Logger
}

var _ spending.Publisher = (*LogPublisher)(nil)

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishRankUp(_ context.Context, event spending.RankUpEvent) error {
	p.log.Info().
		Str("event", TypeRankUp).
		Str("identity", event.Identity).
		Str("old_rank", event.OldRank).
		Str("new_rank", event.NewRank).
		Str("balance", event.Balance.String()).
		Msg("rank up")
	return nil
}

func (p *LogPublisher) PublishGoalCrossed(_ context.Context, event spending.GoalCrossedEvent) error {
	p.log.Info().
		Str("event", TypeGoalCrossed).
		Str("identity", event.Identity).
		Str("target", event.Target.String()).
		Str("total", event.Total.String()).
		Msg("community goal crossed")
	return nil
}
