package conversation

import "sync"

// DirectionPrivate tags every record stored here; the relay only carries
// pairwise private messages.
const DirectionPrivate = "private"

// Message is a single private message record. Records are immutable once
// created: the store and every response payload share them by value.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	FromName  string `json:"from_name"` // sender display name, snapshotted at send time
	To        string `json:"to"`
	Body      string `json:"body"`
	Ts        int64  `json:"ts"` // unix milliseconds
	Direction string `json:"direction"`
}

// History stores per-conversation message logs in memory, keyed by the
// KeyOf pair key. It is goroutine-safe and strictly accumulate-only: there is
// no delete or mutate operation, and logs live for the process lifetime.
type History struct {
	mu   sync.RWMutex
	logs map[string][]Message
}

// NewHistory creates an empty History store.
func NewHistory() *History {
	return &History{
		logs: make(map[string][]Message),
	}
}

// Append pushes a record onto the end of the conversation's log, creating the
// log lazily on first use.
func (h *History) Append(key string, msg Message) {
	h.mu.Lock()
	h.logs[key] = append(h.logs[key], msg)
	h.mu.Unlock()
}

// Fetch returns the conversation's records in append (chronological) order.
// A conversation with no messages yields an empty, non-nil slice. The result
// is a copy; callers cannot affect stored records.
func (h *History) Fetch(key string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	log, ok := h.logs[key]
	if !ok {
		return []Message{}
	}
	out := make([]Message, len(log))
	copy(out, log)
	return out
}

// Len returns the number of records in one conversation.
func (h *History) Len(key string) int {
	h.mu.RLock()
	n := len(h.logs[key])
	h.mu.RUnlock()
	return n
}
