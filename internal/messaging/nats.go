// Package messaging publishes presence lifecycle events to NATS so external
// consumers (monitoring, analytics, moderation tooling) can observe the relay
// without a connection to it. Publishing is fire-and-forget: the relay never
// waits on, or fails because of, the audit feed.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for the presence audit feed.
const (
	SubjectPresenceJoined = "presence.joined"
	SubjectPresenceLeft   = "presence.left"
	SubjectPresenceStatus = "presence.status"
	SubjectMessageSent    = "messages.sent"
)

// PresenceEvent is the payload published on presence.* subjects.
type PresenceEvent struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"`
	LastSeen int64  `json:"last_seen,omitempty"`
	Ts       int64  `json:"ts"`
}

// MessageEvent is the payload published on messages.sent. It deliberately
// excludes the body; the feed carries traffic metadata, not content.
type MessageEvent struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Delivered bool   `json:"delivered"` // false = recipient absent, archived only
	Ts        int64  `json:"ts"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "presence-relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Publisher wraps the NATS connection with helpers for the audit subjects.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS with the given config and returns a ready
// publisher. It returns an error if the initial connection fails.
func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("messaging: nats disconnected: %v", err)
			} else {
				log.Printf("messaging: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("messaging: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("messaging: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}

	log.Printf("messaging: connected to %s", nc.ConnectedUrl())

	return &Publisher{conn: nc}, nil
}

// PresenceJoined publishes a joined event. Nil-safe: a nil publisher is a
// disabled audit feed.
func (p *Publisher) PresenceJoined(ev PresenceEvent) {
	p.publish(SubjectPresenceJoined, ev)
}

// PresenceLeft publishes a left event.
func (p *Publisher) PresenceLeft(ev PresenceEvent) {
	p.publish(SubjectPresenceLeft, ev)
}

// PresenceStatus publishes a status-change event.
func (p *Publisher) PresenceStatus(ev PresenceEvent) {
	p.publish(SubjectPresenceStatus, ev)
}

// MessageSent publishes message traffic metadata.
func (p *Publisher) MessageSent(ev MessageEvent) {
	p.publish(SubjectMessageSent, ev)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("messaging: marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("messaging: publish %s: %v", subject, err)
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.Printf("messaging: connection drain: %v", err)
	}
	log.Printf("messaging: publisher closed")
}
