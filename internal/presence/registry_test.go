package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	p := r.Register("c1", "Alice", "https://example.com/a.png")
	if p.ID != "c1" || p.Name != "Alice" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.Status != StatusOnline {
		t.Errorf("expected status %q, got %q", StatusOnline, p.Status)
	}
	if p.LastSeen == 0 {
		t.Error("expected non-zero last_seen")
	}

	got := r.Get("c1")
	if got == nil {
		t.Fatal("expected profile for c1, got nil")
	}
	if got.Name != "Alice" {
		t.Errorf("expected name Alice, got %q", got.Name)
	}
}

func TestGetAbsent(t *testing.T) {
	r := NewRegistry()

	if p := r.Get("nope"); p != nil {
		t.Fatalf("expected nil for absent id, got %+v", p)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	r.Register("c1", "Alicia", "https://example.com/new.png")

	if r.Count() != 1 {
		t.Fatalf("expected exactly 1 profile, got %d", r.Count())
	}

	p := r.Get("c1")
	if p.Name != "Alicia" {
		t.Errorf("expected most recent name Alicia, got %q", p.Name)
	}
	if p.Avatar != "https://example.com/new.png" {
		t.Errorf("expected most recent avatar, got %q", p.Avatar)
	}
	if p.Status != StatusOnline {
		t.Errorf("expected status online after re-register, got %q", p.Status)
	}
}

func TestListOthersInsertionOrder(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	r.Register("c2", "Bob", "")
	r.Register("c3", "Carol", "")

	others := r.ListOthers("c2")
	if len(others) != 2 {
		t.Fatalf("expected 2 others, got %d", len(others))
	}
	if others[0].ID != "c1" || others[1].ID != "c3" {
		t.Errorf("expected order [c1 c3], got [%s %s]", others[0].ID, others[1].ID)
	}
}

func TestListOthersOrderSurvivesReRegister(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	r.Register("c2", "Bob", "")
	r.Register("c3", "Carol", "")

	// Re-registering c1 must not move it to the end of the iteration order.
	r.Register("c1", "Alice2", "")

	others := r.ListOthers("c2")
	if others[0].ID != "c1" || others[1].ID != "c3" {
		t.Errorf("expected order [c1 c3] after re-register, got [%s %s]",
			others[0].ID, others[1].ID)
	}
}

func TestUpdateStatus(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	before := r.Get("c1").LastSeen

	r.UpdateStatus("c1", "away")
	p := r.Get("c1")
	if p.Status != "away" {
		t.Errorf("expected status away, got %q", p.Status)
	}
	if p.LastSeen < before {
		t.Error("expected last_seen to be refreshed")
	}
}

func TestUpdateStatusAbsentIsNoop(t *testing.T) {
	r := NewRegistry()

	// Must not panic or create an entry.
	r.UpdateStatus("ghost", "away")
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d entries", r.Count())
	}
}

func TestMarkOfflineKeepsEntry(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	r.MarkOffline("c1")

	p := r.Get("c1")
	if p == nil {
		t.Fatal("expected profile to survive MarkOffline")
	}
	if p.Status != StatusOffline {
		t.Errorf("expected status offline, got %q", p.Status)
	}
	if r.CountOnline() != 0 {
		t.Errorf("expected 0 online, got %d", r.CountOnline())
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	r.Remove("c1")
	if r.Get("c1") != nil {
		t.Fatal("expected c1 to be removed")
	}

	// Removing again must not panic.
	r.Remove("c1")
	r.Remove("never-existed")
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRegistry()

	r.Register("c1", "Alice", "")
	p := r.Get("c1")
	p.Name = "Mallory"

	if r.Get("c1").Name != "Alice" {
		t.Error("mutating a returned profile must not affect registry state")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	goroutines := 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			cid := fmt.Sprintf("c%d", id)
			r.Register(cid, fmt.Sprintf("user-%d", id), "")
			_ = r.ListOthers(cid)
			r.UpdateStatus(cid, "busy")
			_ = r.Get(cid)
		}(g)
	}
	wg.Wait()

	if r.Count() != goroutines {
		t.Fatalf("expected %d profiles, got %d", goroutines, r.Count())
	}
}
