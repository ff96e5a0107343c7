package control

import (
	"sort"
	"sync"
	"time"
)

// SessionInfo describes one connected control client.
type SessionInfo struct {
	ID         string    `json:"id"`
	ClientAddr string    `json:"client_addr"`
	Connected  time.Time `json:"connected"`
	RunID      string    `json:"run_id,omitempty"`
	Runs       int       `json:"runs"`
}

type sessionEntry struct {
	info  SessionInfo
	close func()
}

// SessionStore tracks live control sessions so they can be listed and
// closed together on shutdown.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	onChange func(active int)
}

func NewSessionStore(onChange func(active int)) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		onChange: onChange,
	}
}

func (s *SessionStore) add(info SessionInfo, closeFunc func()) {
	s.mu.Lock()
	s.sessions[info.ID] = &sessionEntry{info: info, close: closeFunc}
	n := len(s.sessions)
	s.mu.Unlock()
	s.notify(n)
}

func (s *SessionStore) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.notify(n)
}

func (s *SessionStore) setRun(id, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.sessions[id]; e != nil {
		e.info.RunID = runID
		if runID != "" {
			e.info.Runs++
		}
	}
}

// Snapshot lists sessions ordered by connect time.
func (s *SessionStore) Snapshot() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Connected.Before(out[j].Connected)
	})
	return out
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseAll closes every session's connection.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	closers := make([]func(), 0, len(s.sessions))
	for _, e := range s.sessions {
		closers = append(closers, e.close)
	}
	s.mu.Unlock()
	for _, fn := range closers {
		fn()
	}
}

func (s *SessionStore) notify(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}
