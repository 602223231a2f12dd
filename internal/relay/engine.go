// Package relay implements the presence and messaging engine: the event
// handlers that mutate the registry and history store on each inbound event
// and produce the outbound emissions. All handlers, including the deferred
// profile-removal timer, serialize through a single mutex so multi-step
// mutations (append history, check recipient presence, emit) never interleave.
package relay

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beacon/presence-app/internal/conversation"
	"github.com/beacon/presence-app/internal/presence"
	"github.com/beacon/presence-app/internal/protocol"
)

// DefaultGracePeriod is how long a disconnected profile stays in the registry
// (marked offline) before it is purged.
const DefaultGracePeriod = 5 * time.Second

// Config holds engine tuning parameters. Now and NewID default to the system
// clock and random UUIDs; tests inject their own for determinism.
type Config struct {
	GracePeriod time.Duration
	Now         func() time.Time
	NewID       func() string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod: DefaultGracePeriod,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// Engine is the event-driven core of the relay. Each handler takes the
// connection ID that raised the event ("self") plus the event payload and
// returns the emissions the boundary adapter must perform.
type Engine struct {
	mu       sync.Mutex
	registry *presence.Registry
	history  *conversation.History
	config   Config
	timers   map[string]*time.Timer // pending grace-period removals by connection ID
}

// NewEngine creates an Engine around the given registry and history store.
func NewEngine(registry *presence.Registry, history *conversation.History, config Config) *Engine {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Engine{
		registry: registry,
		history:  history,
		config:   config,
		timers:   make(map[string]*time.Timer),
	}
}

// Login registers (or re-registers) the connection as online. Any pending
// grace-period removal for the same ID is cancelled first, so a profile that
// has come back can never be purged by a stale timer. The new arrival gets the
// current peer list; everyone else is told about the new peer.
func (e *Engine) Login(self, name, avatar string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelRemoval(self)
	p := e.registry.Register(self, name, avatar)

	log.Printf("relay: login id=%s name=%q (online=%d)", self, name, e.registry.CountOnline())

	return []Emission{
		emitSelf(protocol.TypePeerList, protocol.PeerListMsg{
			Peers: e.registry.ListOthers(self),
		}),
		emitAllExceptSelf(protocol.TypePeerJoined, protocol.PeerJoinedMsg{
			Peer: p,
		}),
	}
}

// Peers returns the current list of other users to the requester.
func (e *Engine) Peers(self string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	return []Emission{
		emitSelf(protocol.TypePeerList, protocol.PeerListMsg{
			Peers: e.registry.ListOthers(self),
		}),
	}
}

// SetStatus updates the sender's presence status. Unregistered senders are
// ignored silently.
func (e *Engine) SetStatus(self, status string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Has(self) {
		return nil
	}
	e.registry.UpdateStatus(self, status)
	p := e.registry.Get(self)

	return []Emission{
		emitAllExceptSelf(protocol.TypeStatusChanged, protocol.StatusChangedMsg{
			ID:       self,
			Status:   p.Status,
			LastSeen: p.LastSeen,
		}),
	}
}

// Send records a private message and emits it. The record is appended to
// history unconditionally, so an offline recipient can retrieve it later via
// a history query. The live copy goes to the recipient only while they are in
// the registry; the sender always gets an ack for the stored record. A send
// from an unregistered connection is dropped entirely.
func (e *Engine) Send(self, to, body string, clientTs int64) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	sender := e.registry.Get(self)
	if sender == nil {
		return nil
	}

	ts := clientTs
	if ts <= 0 {
		ts = e.config.Now().UnixMilli()
	}

	msg := conversation.Message{
		ID:        e.config.NewID(),
		From:      self,
		FromName:  sender.Name,
		To:        to,
		Body:      body,
		Ts:        ts,
		Direction: conversation.DirectionPrivate,
	}
	e.history.Append(conversation.KeyOf(self, to), msg)

	emissions := make([]Emission, 0, 2)
	if e.registry.Has(to) {
		emissions = append(emissions, emitOne(to, protocol.TypePrivateMessage, protocol.PrivateMessageMsg{
			Message: msg,
		}))
	}
	emissions = append(emissions, emitSelf(protocol.TypeMessageAck, protocol.MessageAckMsg{
		Message: msg,
	}))
	return emissions
}

// History returns the conversation log between the sender and another
// connection. The response carries the queried ID so the client can correlate
// it with the request. Queries from unregistered connections are dropped.
func (e *Engine) History(self, with string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Has(self) {
		return nil
	}

	return []Emission{
		emitSelf(protocol.TypeHistoryResult, protocol.HistoryResultMsg{
			With:     with,
			Messages: e.history.Fetch(conversation.KeyOf(self, with)),
		}),
	}
}

// TypingStart relays a typing indicator to the recipient. Nothing is stored;
// the signal is dropped unless both sender and recipient are registered.
func (e *Engine) TypingStart(self, to string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	sender := e.registry.Get(self)
	if sender == nil || !e.registry.Has(to) {
		return nil
	}

	return []Emission{
		emitOne(to, protocol.TypePeerTyping, protocol.PeerTypingMsg{
			ID:   self,
			Name: sender.Name,
		}),
	}
}

// TypingStop relays a stopped-typing indicator under the same gating as
// TypingStart.
func (e *Engine) TypingStop(self, to string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Has(self) || !e.registry.Has(to) {
		return nil
	}

	return []Emission{
		emitOne(to, protocol.TypePeerStoppedTyping, protocol.PeerStoppedTypingMsg{
			ID: self,
		}),
	}
}

// Disconnect marks the connection offline, announces the departure, and
// schedules the profile's removal after the grace period. The profile stays
// visible (status offline) until the timer fires; a login for the same ID
// before then supersedes the removal.
func (e *Engine) Disconnect(self string) []Emission {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.registry.Get(self)
	if p == nil {
		return nil
	}

	e.registry.MarkOffline(self)
	offline := e.registry.Get(self)
	e.scheduleRemoval(self)

	log.Printf("relay: disconnect id=%s name=%q (grace=%s)", self, p.Name, e.config.GracePeriod)

	return []Emission{
		emitAllExceptSelf(protocol.TypePeerLeft, protocol.PeerLeftMsg{
			ID:       self,
			Name:     offline.Name,
			LastSeen: offline.LastSeen,
		}),
	}
}

// OnlineCount reports the number of registered profiles not marked offline.
func (e *Engine) OnlineCount() int {
	return e.registry.CountOnline()
}

// Snapshot returns the message history between two connections. It exists for
// consumers outside the event path (e.g. attaching context to abuse reports).
func (e *Engine) Snapshot(a, b string) []conversation.Message {
	return e.history.Fetch(conversation.KeyOf(a, b))
}

// Stop cancels all pending removal timers. Used during shutdown and in tests.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// scheduleRemoval arms the grace-period timer for a connection ID, replacing
// any timer already pending for it. Caller must hold e.mu.
func (e *Engine) scheduleRemoval(id string) {
	e.cancelRemoval(id)
	e.timers[id] = time.AfterFunc(e.config.GracePeriod, func() {
		e.expire(id)
	})
}

// cancelRemoval stops and forgets a pending removal timer, if any. Caller
// must hold e.mu.
func (e *Engine) cancelRemoval(id string) {
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

// expire is the grace-period timer callback. It re-checks the profile under
// the engine mutex: if a login has since transitioned the profile back to
// online (or removed it), the expiry is a no-op. This makes a racing timer
// harmless even if it fired before Login could stop it.
func (e *Engine) expire(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.timers, id)

	p := e.registry.Get(id)
	if p == nil || p.Status != presence.StatusOffline {
		return
	}
	e.registry.Remove(id)
	log.Printf("relay: purged id=%s after grace period", id)
}
