package continuation

import "testing"

func TestNewAndTakeSingleShot(t *testing.T) {
	s := NewStore()
	id := s.New("state-a")

	got, ok := s.Take(id)
	if !ok || got != "state-a" {
		t.Fatalf("Take(%d) = %v, %v, want \"state-a\", true", id, got, ok)
	}

	if _, ok := s.Take(id); ok {
		t.Fatal("second Take of the same id must fail: continuations are single-shot")
	}
}

func TestTakeUnknownID(t *testing.T) {
	s := NewStore()
	if _, ok := s.Take(999); ok {
		t.Fatal("Take of an id that was never issued must fail")
	}
}

func TestNewSkipsLiveIDsOnCollision(t *testing.T) {
	s := NewStore()
	s.next = 5
	s.live[5] = "occupied"
	id := s.New("new-state")
	if id == 5 {
		t.Fatal("New must not reuse an id that is still live")
	}
	if got, ok := s.Take(id); !ok || got != "new-state" {
		t.Fatalf("Take(%d) = %v, %v", id, got, ok)
	}
}

func TestLenTracksLiveContinuations(t *testing.T) {
	s := NewStore()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	id := s.New("x")
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	s.Take(id)
	if s.Len() != 0 {
		t.Fatalf("Len() after Take = %d, want 0", s.Len())
	}
}
