// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/beacon/presence-app/internal/conversation"
	"github.com/beacon/presence-app/internal/presence"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeLogin        = "login"
	TypeGetPeers     = "get_peers"
	TypeSendMessage  = "send_message"
	TypeGetHistory   = "get_history"
	TypeTypingStart  = "typing_start"
	TypeTypingStop   = "typing_stop"
	TypeStatusUpdate = "status_update"
	TypeReport       = "report"
	TypePing         = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated    = "session_created"
	TypePeerList          = "peer_list"
	TypePeerJoined        = "peer_joined"
	TypePeerLeft          = "peer_left"
	TypePrivateMessage    = "private_message"
	TypeMessageAck        = "message_ack"
	TypeHistoryResult     = "history_result"
	TypePeerTyping        = "peer_typing"
	TypePeerStoppedTyping = "peer_stopped_typing"
	TypeStatusChanged     = "status_changed"
	TypeRateLimited       = "rate_limited"
	TypeError             = "error"
	TypePong              = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// LoginMsg announces the client's identity for this session. Avatar is
// optional; the server assigns a generated one when empty.
type LoginMsg struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// GetPeersMsg requests the current list of other online users.
type GetPeersMsg struct {
	Type string `json:"type"`
}

// SendMessageMsg carries a private message to another connection. Ts is the
// client's send timestamp in unix milliseconds; the server substitutes its own
// clock when it is absent or malformed.
type SendMessageMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Body string `json:"body"`
	Ts   int64  `json:"ts,omitempty"`
}

// GetHistoryMsg requests the message history with another connection.
type GetHistoryMsg struct {
	Type string `json:"type"`
	With string `json:"with"`
}

// TypingStartMsg signals that the client started typing to a recipient.
type TypingStartMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

// TypingStopMsg signals that the client stopped typing to a recipient.
type TypingStopMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

// StatusUpdateMsg sets the client's presence status to an arbitrary string
// (e.g. "away", "busy").
type StatusUpdateMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// ReportMsg files an abuse report against another connection.
type ReportMsg struct {
	Type   string `json:"type"`
	ID     string `json:"id"` // reported connection ID
	Reason string `json:"reason"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new connection is established,
// informing the client of its connection ID.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// PeerListMsg carries the registry's current view of other users, in
// registration order.
type PeerListMsg struct {
	Type  string              `json:"type"`
	Peers []*presence.Profile `json:"peers"`
}

// PeerJoinedMsg announces a newly logged-in user to everyone else.
type PeerJoinedMsg struct {
	Type string            `json:"type"`
	Peer *presence.Profile `json:"peer"`
}

// PeerLeftMsg announces a disconnected user to everyone else.
type PeerLeftMsg struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	LastSeen int64  `json:"last_seen"`
}

// PrivateMessageMsg delivers a message record to its recipient.
type PrivateMessageMsg struct {
	Type    string               `json:"type"`
	Message conversation.Message `json:"message"`
}

// MessageAckMsg echoes the stored record back to the sender. The ack does not
// distinguish "delivered" from "queued"; delivery is best effort.
type MessageAckMsg struct {
	Type    string               `json:"type"`
	Message conversation.Message `json:"message"`
}

// HistoryResultMsg carries the conversation history with one peer. With echoes
// the queried connection ID so the client can correlate the response.
type HistoryResultMsg struct {
	Type     string                 `json:"type"`
	With     string                 `json:"with"`
	Messages []conversation.Message `json:"messages"`
}

// PeerTypingMsg relays a typing-start signal to the recipient.
type PeerTypingMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PeerStoppedTypingMsg relays a typing-stop signal to the recipient.
type PeerStoppedTypingMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// StatusChangedMsg announces a peer's status change to everyone else.
type StatusChangedMsg struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

// RateLimitedMsg is sent when the client exceeds the message rate limit.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"` // seconds
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeLogin:
		var m LoginMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetPeers:
		var m GetPeersMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetHistory:
		var m GetHistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart:
		var m TypingStartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStop:
		var m TypingStopMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStatusUpdate:
		var m StatusUpdateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
