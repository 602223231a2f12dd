package protocol

import (
	"encoding/json"
	"testing"

	"github.com/beacon/presence-app/internal/conversation"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid login message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Login(t *testing.T) {
	input := []byte(`{"type":"login","name":"Alice","avatar":"https://example.com/a.png"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeLogin {
		t.Fatalf("expected type %q, got %q", TypeLogin, msgType)
	}

	lm, ok := msg.(LoginMsg)
	if !ok {
		t.Fatalf("expected LoginMsg, got %T", msg)
	}
	if lm.Name != "Alice" {
		t.Errorf("expected name %q, got %q", "Alice", lm.Name)
	}
	if lm.Avatar != "https://example.com/a.png" {
		t.Errorf("unexpected avatar: %q", lm.Avatar)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","to":"c2","body":"Hello!","ts":1700000000000}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.To != "c2" {
		t.Errorf("expected to %q, got %q", "c2", sm.To)
	}
	if sm.Body != "Hello!" {
		t.Errorf("expected body %q, got %q", "Hello!", sm.Body)
	}
	if sm.Ts != 1700000000000 {
		t.Errorf("expected ts 1700000000000, got %d", sm.Ts)
	}
}

// Omitted ts must decode to zero so the server falls back to its own clock.
func TestParseClientMessage_SendMessageNoTs(t *testing.T) {
	input := []byte(`{"type":"send_message","to":"c2","body":"hi"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sm := msg.(SendMessageMsg)
	if sm.Ts != 0 {
		t.Errorf("expected zero ts, got %d", sm.Ts)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a history_result server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_HistoryResult(t *testing.T) {
	payload := HistoryResultMsg{
		With: "c2",
		Messages: []conversation.Message{
			{ID: "m1", From: "c1", FromName: "Alice", To: "c2", Body: "hi", Ts: 100, Direction: conversation.DirectionPrivate},
		},
	}

	data, err := NewServerMessage(TypeHistoryResult, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeHistoryResult {
		t.Errorf("expected type %q, got %v", TypeHistoryResult, result["type"])
	}
	if result["with"] != "c2" {
		t.Errorf("expected with %q, got %v", "c2", result["with"])
	}

	msgs, ok := result["messages"].([]interface{})
	if !ok {
		t.Fatalf("expected messages to be an array, got %T", result["messages"])
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	first, ok := msgs[0].(map[string]interface{})
	if !ok {
		t.Fatalf("expected message object, got %T", msgs[0])
	}
	if first["body"] != "hi" {
		t.Errorf("expected body %q, got %v", "hi", first["body"])
	}
	if first["from_name"] != "Alice" {
		t.Errorf("expected from_name %q, got %v", "Alice", first["from_name"])
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Round-trip fidelity (marshal -> unmarshal)
// ---------------------------------------------------------------------------

func TestRoundTrip_Login(t *testing.T) {
	original := LoginMsg{
		Type: TypeLogin,
		Name: "Bob",
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeLogin {
		t.Fatalf("expected type %q, got %q", TypeLogin, msgType)
	}

	decoded, ok := msg.(LoginMsg)
	if !ok {
		t.Fatalf("expected LoginMsg, got %T", msg)
	}
	if decoded.Name != original.Name {
		t.Errorf("name mismatch: expected %q, got %q", original.Name, decoded.Name)
	}
	if decoded.Avatar != "" {
		t.Errorf("expected empty avatar, got %q", decoded.Avatar)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"login", `{"type":"login","name":"Alice"}`, TypeLogin},
		{"get_peers", `{"type":"get_peers"}`, TypeGetPeers},
		{"send_message", `{"type":"send_message","to":"c2","body":"hi"}`, TypeSendMessage},
		{"get_history", `{"type":"get_history","with":"c2"}`, TypeGetHistory},
		{"typing_start", `{"type":"typing_start","to":"c2"}`, TypeTypingStart},
		{"typing_stop", `{"type":"typing_stop","to":"c2"}`, TypeTypingStop},
		{"status_update", `{"type":"status_update","status":"away"}`, TypeStatusUpdate},
		{"report", `{"type":"report","id":"c2","reason":"spam"}`, TypeReport},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
