package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAppendAndHistory(t *testing.T) {
	s := NewStore(10)
	s.Append("s1", Entry{UserQuery: "top products"})
	s.Append("s1", Entry{UserQuery: "what about Q4?"})

	h := s.History("s1")
	if len(h) != 2 {
		t.Fatalf("len = %d, want 2", len(h))
	}
	if h[0].UserQuery != "top products" || h[1].UserQuery != "what about Q4?" {
		t.Errorf("order wrong: %+v", h)
	}
	if h[0].Timestamp.IsZero() {
		t.Error("timestamp not set on append")
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 13; i++ {
		s.Append("s1", Entry{UserQuery: fmt.Sprintf("q%d", i)})
	}

	h := s.History("s1")
	if len(h) != 10 {
		t.Fatalf("len = %d, want 10", len(h))
	}
	if h[0].UserQuery != "q3" || h[9].UserQuery != "q12" {
		t.Errorf("eviction kept wrong window: first=%s last=%s", h[0].UserQuery, h[9].UserQuery)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(10)
	s.Append("s1", Entry{UserQuery: "original"})

	h := s.History("s1")
	h[0].UserQuery = "mutated"

	if got := s.History("s1")[0].UserQuery; got != "original" {
		t.Errorf("History leaked internal slice: %s", got)
	}
}

func TestClearDropsSession(t *testing.T) {
	s := NewStore(10)
	s.Append("s1", Entry{UserQuery: "q1"})
	s.Clear("s1")

	if h := s.History("s1"); h != nil {
		t.Fatalf("history after clear = %v, want nil", h)
	}

	// A post-clear append starts a fresh session, never resurrects old entries.
	s.Append("s1", Entry{UserQuery: "q2"})
	h := s.History("s1")
	if len(h) != 1 || h[0].UserQuery != "q2" {
		t.Errorf("resurrected stale entries: %+v", h)
	}
}

func TestConcurrentSessions(t *testing.T) {
	s := NewStore(10)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", g%4)
			for i := 0; i < 50; i++ {
				s.Append(id, Entry{UserQuery: fmt.Sprintf("g%d-q%d", g, i)})
				s.History(id)
			}
		}(g)
	}
	wg.Wait()

	if s.Len() != 4 {
		t.Errorf("sessions = %d, want 4", s.Len())
	}
	for i := 0; i < 4; i++ {
		if n := len(s.History(fmt.Sprintf("s%d", i))); n != 10 {
			t.Errorf("session s%d has %d entries, want 10", i, n)
		}
	}
}

func TestJanitorSweepsIdleSessions(t *testing.T) {
	s := NewStore(10)
	s.Append("idle", Entry{UserQuery: "q"})

	// Backdate the session so the sweep sees it as expired.
	s.mu.Lock()
	s.sessions["idle"].lastActive = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	s.sweep(30 * time.Minute)

	if s.Len() != 0 {
		t.Errorf("sessions after sweep = %d, want 0", s.Len())
	}
}

func TestJanitorStopsOnContextCancel(t *testing.T) {
	s := NewStore(10)
	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	// goleak in TestMain verifies the goroutine exits.
	time.Sleep(20 * time.Millisecond)
}
