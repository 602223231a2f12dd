package conversation

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAndFetchOrder(t *testing.T) {
	h := NewHistory()
	key := KeyOf("c1", "c2")

	for i := 1; i <= 10; i++ {
		h.Append(key, Message{
			ID:        fmt.Sprintf("m%d", i),
			From:      "c1",
			To:        "c2",
			Body:      fmt.Sprintf("msg-%d", i),
			Ts:        int64(i),
			Direction: DirectionPrivate,
		})
	}

	msgs := h.Fetch(key)
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		want := fmt.Sprintf("msg-%d", i+1)
		if m.Body != want {
			t.Errorf("index %d: expected %q, got %q", i, want, m.Body)
		}
	}
}

func TestFetchAbsentIsEmptyNotNil(t *testing.T) {
	h := NewHistory()

	msgs := h.Fetch(KeyOf("x", "y"))
	if msgs == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(msgs))
	}
}

func TestFetchBothDirectionsSameBucket(t *testing.T) {
	h := NewHistory()

	h.Append(KeyOf("c1", "c2"), Message{ID: "m1", From: "c1", To: "c2", Body: "hi"})
	h.Append(KeyOf("c2", "c1"), Message{ID: "m2", From: "c2", To: "c1", Body: "hey"})

	msgs := h.Fetch(KeyOf("c1", "c2"))
	if len(msgs) != 2 {
		t.Fatalf("expected both directions in one bucket, got %d messages", len(msgs))
	}
}

func TestFetchReturnsCopy(t *testing.T) {
	h := NewHistory()
	key := KeyOf("c1", "c2")

	h.Append(key, Message{ID: "m1", Body: "original"})
	msgs := h.Fetch(key)
	msgs[0].Body = "mutated"

	if h.Fetch(key)[0].Body != "original" {
		t.Error("mutating a fetched slice must not affect stored records")
	}
}

func TestSeparateConversations(t *testing.T) {
	h := NewHistory()

	h.Append(KeyOf("c1", "c2"), Message{ID: "m1", Body: "a"})
	h.Append(KeyOf("c1", "c3"), Message{ID: "m2", Body: "b"})

	if h.Len(KeyOf("c1", "c2")) != 1 || h.Len(KeyOf("c1", "c3")) != 1 {
		t.Error("conversations must not share logs")
	}
}

func TestConcurrentAppendFetch(t *testing.T) {
	h := NewHistory()
	key := KeyOf("c1", "c2")
	goroutines := 50
	perGoroutine := 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for m := 0; m < perGoroutine; m++ {
				h.Append(key, Message{
					ID:   fmt.Sprintf("g%d-m%d", id, m),
					Body: "x",
				})
				_ = h.Fetch(key)
			}
		}(g)
	}
	wg.Wait()

	if got := h.Len(key); got != goroutines*perGoroutine {
		t.Fatalf("expected %d messages, got %d", goroutines*perGoroutine, got)
	}
}
