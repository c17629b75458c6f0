package sessionstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/internal/metrics"
)

// Archiver persists a terminated session. Write-behind only: the store
// never reads archived sessions back on the live path.
type Archiver interface {
	Archive(s *Session) error
}

// Store holds all live sessions in memory
type Store struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	archiver    Archiver
	idleTimeout time.Duration
	reaper      *cron.Cron
	onReap      func(sessionID string)
}

// NewStore creates a session store. archiver may be nil.
func NewStore(idleTimeout time.Duration, archiver Archiver) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Store{
		sessions:    make(map[string]*Session),
		archiver:    archiver,
		idleTimeout: idleTimeout,
	}
}

// Create registers a new session for the intake agent
func (st *Store) Create(id, intakeAgentID string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.sessions[id]; exists {
		return nil, fmt.Errorf("session already exists: %s", id)
	}

	s := NewSession(id, intakeAgentID)
	st.sessions[id] = s

	metrics.Get().SessionsTotal.Inc()
	metrics.Get().SessionsActive.Set(float64(len(st.sessions)))
	log.Info().Str("session_id", id).Str("agent_id", intakeAgentID).Msg("Session created")

	return s, nil
}

// Get returns a live session
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Terminate finalizes a session, archives it and removes it from the store
func (st *Store) Terminate(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	remaining := len(st.sessions)
	st.mu.Unlock()

	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	s.Terminate()
	metrics.Get().SessionsActive.Set(float64(remaining))

	if st.archiver != nil {
		if err := st.archiver.Archive(s); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("Failed to archive session")
		} else {
			metrics.Get().SessionsArchived.Inc()
		}
	}

	log.Info().Str("session_id", id).Int("turns", s.Transcript.Len()).Msg("Session terminated")
	return nil
}

// Len returns the number of live sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// StartReaper begins the scheduled idle sweep. onReap is called for
// each idle session so the orchestrator can terminate it through its
// own serialization point.
func (st *Store) StartReaper(onReap func(sessionID string)) error {
	if st.reaper != nil {
		return fmt.Errorf("reaper is already running")
	}

	st.onReap = onReap
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", st.sweepIdle); err != nil {
		return fmt.Errorf("failed to schedule idle sweep: %w", err)
	}
	c.Start()
	st.reaper = c

	log.Info().Dur("idle_timeout", st.idleTimeout).Msg("Idle session reaper started")
	return nil
}

// StopReaper stops the idle sweep
func (st *Store) StopReaper() {
	if st.reaper != nil {
		st.reaper.Stop()
		st.reaper = nil
	}
}

func (st *Store) sweepIdle() {
	cutoff := time.Now().Add(-st.idleTimeout)

	st.mu.RLock()
	var idle []string
	for id, s := range st.sessions {
		if s.LastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range idle {
		log.Info().Str("session_id", id).Msg("Reaping idle session")
		if st.onReap != nil {
			st.onReap(id)
		} else if err := st.Terminate(id); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("Failed to reap session")
		}
	}
}
