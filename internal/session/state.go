package session

import "sync"

// Snapshot is a value copy of a State, used for persistence and stats.
type Snapshot struct {
	SessionID string
	ResumeURL string
	Sequence  int64
	HasSeq    bool // false until the first dispatch is observed
}

// Resumable reports whether the snapshot carries enough to attempt a resume.
func (s Snapshot) Resumable() bool {
	return s.SessionID != ""
}

// State is the mutable session bookkeeping for one shard.
//
// The owning shard goroutine is the only writer; readers (heartbeat payloads,
// stats endpoints) may call the getters from other goroutines.
type State struct {
	mu        sync.RWMutex
	sequence  int64
	hasSeq    bool
	sessionID string
	resumeURL string
}

// New returns an empty State.
func New() *State {
	return &State{}
}

// RecordEvent advances the sequence number. Values at or below the current
// sequence are ignored so duplicates and reordered frames never move it back.
func (s *State) RecordEvent(seq int64) {
	if seq < 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSeq && seq <= s.sequence {
		return
	}
	s.sequence = seq
	s.hasSeq = true
}

// Establish records the identifiers handed out by the peer on READY.
func (s *State) Establish(sessionID, resumeURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = sessionID
	s.resumeURL = resumeURL
}

// Invalidate forgets the session so the next handshake is a fresh identify.
func (s *State) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = ""
	s.resumeURL = ""
	s.sequence = 0
	s.hasSeq = false
}

// Sequence returns the last observed sequence and whether one exists.
func (s *State) Sequence() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence, s.hasSeq
}

// SessionID returns the current session id ("" when none).
func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// ResumeURL returns the peer-provided resume endpoint, or fallback when unset.
func (s *State) ResumeURL(fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.resumeURL == "" {
		return fallback
	}
	return s.resumeURL
}

// CanResume reports whether a session id is held.
func (s *State) CanResume() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID != ""
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SessionID: s.sessionID,
		ResumeURL: s.resumeURL,
		Sequence:  s.sequence,
		HasSeq:    s.hasSeq,
	}
}

// Restore replaces the state with a previously taken snapshot.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = snap.SessionID
	s.resumeURL = snap.ResumeURL
	s.sequence = snap.Sequence
	s.hasSeq = snap.HasSeq
}
