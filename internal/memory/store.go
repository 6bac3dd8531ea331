// Package memory holds per-session conversation history for follow-up
// resolution. State is volatile and process-lifetime.
package memory

import (
	"context"
	"sync"
	"time"

	"sqlscout/internal/logging"
	"sqlscout/internal/observability"
)

// DefaultHistoryLimit caps entries per session, oldest evicted first.
const DefaultHistoryLimit = 10

// Filter is one WHERE equality predicate recovered from SQL.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// KeyEntities are the semantic entities recovered from a generated statement.
type KeyEntities struct {
	Dimensions []string `json:"dimensions"`
	Metrics    []string `json:"metrics"`
	Filters    []Filter `json:"filters"`
	TimePeriod string   `json:"time_period"`
	Grouping   []string `json:"grouping"`
	Limit      int      `json:"limit,omitempty"` // 0 means no LIMIT clause
}

// Entry is one completed exchange. Immutable once written.
type Entry struct {
	UserQuery      string      `json:"user_query"`
	ResolvedQuery  string      `json:"resolved_query"`
	SQL            string      `json:"sql"`
	ResultsSummary string      `json:"results_summary"`
	KeyEntities    KeyEntities `json:"key_entities"`
	Timestamp      time.Time   `json:"timestamp"`
	IsFollowup     bool        `json:"is_followup"`
}

type session struct {
	mu         sync.Mutex
	entries    []Entry
	lastActive time.Time
}

// Store maps session IDs to history. The top-level map has its own lock;
// each session's entry list is serialized independently so traffic on one
// session never blocks another.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	limit    int
}

// NewStore creates a store with the given per-session entry cap.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Store{
		sessions: make(map[string]*session),
		limit:    limit,
	}
}

func (s *Store) get(sessionID string, create bool) *session {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok || !create {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[sessionID]; ok {
		return sess
	}
	sess = &session{lastActive: time.Now()}
	s.sessions[sessionID] = sess
	logging.Session("Created new session: %s", sessionID)
	observability.SetActiveSessions(len(s.sessions))
	return sess
}

// Append adds an entry to the session, creating it if needed. Appending
// after a Clear starts a fresh session; cleared entries never come back.
func (s *Store) Append(sessionID string, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	sess := s.get(sessionID, true)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.entries = append(sess.entries, entry)
	sess.lastActive = time.Now()
	if n := len(sess.entries) - s.limit; n > 0 {
		sess.entries = sess.entries[n:]
		logging.Session("Session %s: trimmed %d old entries, keeping %d most recent", sessionID, n, s.limit)
	}
	logging.SessionDebug("Session %s: added entry, total=%d", sessionID, len(sess.entries))
}

// History returns a copy of the session's entries, oldest first.
func (s *Store) History(sessionID string) []Entry {
	sess := s.get(sessionID, false)
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActive = time.Now()
	out := make([]Entry, len(sess.entries))
	copy(out, sess.entries)
	return out
}

// Clear removes a session wholesale.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		logging.Session("Cleared session: %s", sessionID)
		observability.SetActiveSessions(len(s.sessions))
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor sweeps sessions idle longer than ttl until ctx is done.
// A zero ttl disables sweeping.
func (s *Store) StartJanitor(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ttl)
			}
		}
	}()
}

func (s *Store) sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			logging.Session("Swept idle session: %s", id)
		}
	}
	observability.SetActiveSessions(len(s.sessions))
}
