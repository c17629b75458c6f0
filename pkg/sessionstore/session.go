package sessionstore

import (
	"fmt"
	"time"
)

// State is the orchestration state of a session
type State string

const (
	StateRouting    State = "ROUTING"
	StateHandedOff  State = "HANDED_OFF"
	StateVerifying  State = "VERIFYING"
	StateVerified   State = "VERIFIED"
	StateTerminated State = "TERMINATED"
)

// Outcome classifies one tool invocation attempt
type Outcome string

const (
	OutcomeSuccess                Outcome = "success"
	OutcomeFailure                Outcome = "failure"
	OutcomeSuppressedDuplicate    Outcome = "suppressed-duplicate"
	OutcomeSuppressedCircuitBreak Outcome = "suppressed-circuit-break"
)

// Well-known shared memory keys. One canonical name per fact; the same
// fact is never stored under two keys.
const (
	KeyAccountNumber    = "accountNumber"
	KeySortCode         = "sortCode"
	KeyVerified         = "verified"
	KeyVerifiedUserName = "verifiedUserName"
	KeyUserIntent       = "userIntent"
)

// TurnRecord is one transcript entry. Records sharing a TurnID are
// streaming revisions of the same turn: a later record replaces the
// display value instead of appending.
type TurnRecord struct {
	TurnID string    `json:"turn_id"`
	Role   string    `json:"role"`
	Text   string    `json:"text"`
	Final  bool      `json:"final"`
	At     time.Time `json:"at"`
}

// Transcript is the ordered turn log for one session
type Transcript struct {
	records []TurnRecord
	index   map[string]int
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{index: make(map[string]int)}
}

// Upsert appends a record, or replaces the existing record with the
// same TurnID so a streaming fragment and its final form coalesce.
func (t *Transcript) Upsert(rec TurnRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	if i, ok := t.index[rec.TurnID]; ok {
		// Keep the original position and timestamp
		rec.At = t.records[i].At
		t.records[i] = rec
		return
	}
	t.index[rec.TurnID] = len(t.records)
	t.records = append(t.records, rec)
}

// Records returns a copy of the transcript in order
func (t *Transcript) Records() []TurnRecord {
	out := make([]TurnRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of distinct turns
func (t *Transcript) Len() int {
	return len(t.records)
}

// SharedMemory is the cross-agent fact store. A fact, once written, is
// never overwritten unless explicitly cleared first, so handoffs cannot
// lose verified facts to a later empty write.
type SharedMemory struct {
	values map[string]interface{}
}

// NewSharedMemory creates an empty fact store
func NewSharedMemory() *SharedMemory {
	return &SharedMemory{values: make(map[string]interface{})}
}

// Set writes a fact. Returns false without writing when the value is
// empty or the key is already set.
func (m *SharedMemory) Set(key string, value interface{}) bool {
	if key == "" || value == nil {
		return false
	}
	if s, ok := value.(string); ok && s == "" {
		return false
	}
	if _, exists := m.values[key]; exists {
		return false
	}
	m.values[key] = value
	return true
}

// Clear removes a fact so it can be rewritten
func (m *SharedMemory) Clear(key string) {
	delete(m.values, key)
}

// Get returns a fact and whether it is set
func (m *SharedMemory) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// GetString returns a string fact, or "" when unset or not a string
func (m *SharedMemory) GetString(key string) string {
	if v, ok := m.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetBool returns a boolean fact
func (m *SharedMemory) GetBool(key string) bool {
	if v, ok := m.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Seed applies a batch of facts with the usual write-once rule
func (m *SharedMemory) Seed(facts map[string]interface{}) {
	for k, v := range facts {
		m.Set(k, v)
	}
}

// Snapshot returns a copy of all facts, carried across handoffs
func (m *SharedMemory) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// LedgerKey identifies a (tool, turn) pair in the tool call ledger
type LedgerKey struct {
	Tool string
	Turn int
}

// InvocationRecord logs one tool invocation attempt
type InvocationRecord struct {
	Tool     string    `json:"tool"`
	ArgsHash string    `json:"args_hash"`
	Turn     int       `json:"turn"`
	Attempt  int       `json:"attempt"`
	Outcome  Outcome   `json:"outcome"`
	At       time.Time `json:"at"`
}

// Session is one end-user conversation. All mutation happens inside the
// orchestrator's per-session lane, so the struct carries no lock of its
// own; the Store only guards its session map.
type Session struct {
	ID            string
	ActiveAgentID string
	State         State

	Memory     *SharedMemory
	Transcript *Transcript

	// toolCallLedger: attempts per (tool, turn)
	Ledger      map[LedgerKey]int
	Invocations []InvocationRecord

	TurnIndex      int
	VerifyAttempts int

	// Generation guards scheduled timers: a timer captured under an
	// older generation must not mutate the session.
	Generation int

	// handoffTurn is the last turn in which a handoff took effect
	handoffTurn int

	CreatedAt    time.Time
	LastActivity time.Time
}

// NewSession creates a session owned by the intake agent
func NewSession(id, intakeAgentID string) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		ActiveAgentID: intakeAgentID,
		State:         StateRouting,
		Memory:        NewSharedMemory(),
		Transcript:    NewTranscript(),
		Ledger:        make(map[LedgerKey]int),
		handoffTurn:   -1,
		CreatedAt:     now,
		LastActivity:  now,
	}
}

// BeginTurn advances to the next turn index and returns it
func (s *Session) BeginTurn() int {
	s.TurnIndex++
	s.Touch()
	return s.TurnIndex
}

// Touch updates the idle clock
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// TurnID derives the stable identifier for the current turn of the
// active agent. It is a pure function of session identity, not wall
// clock, so streamed revisions of one turn share one identifier.
func (s *Session) TurnID(role string) string {
	return fmt.Sprintf("%s:%s:%s:%d", s.ID, s.ActiveAgentID, role, s.TurnIndex)
}

// RecordAttempt bumps the ledger for a (tool, turn) pair and returns
// the attempt number
func (s *Session) RecordAttempt(tool string, turn int) int {
	key := LedgerKey{Tool: tool, Turn: turn}
	s.Ledger[key]++
	return s.Ledger[key]
}

// ToolAttemptsInSession sums ledger attempts for a tool across all turns
func (s *Session) ToolAttemptsInSession(tool string) int {
	total := 0
	for key, n := range s.Ledger {
		if key.Tool == tool {
			total += n
		}
	}
	return total
}

// LogInvocation appends to the invocation log
func (s *Session) LogInvocation(rec InvocationRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	s.Invocations = append(s.Invocations, rec)
}

// HandoffDoneThisTurn reports whether a handoff already took effect in
// the given turn
func (s *Session) HandoffDoneThisTurn(turn int) bool {
	return s.handoffTurn == turn
}

// MarkHandoff records that a handoff took effect in the given turn and
// invalidates any scheduled timers from the prior agent.
func (s *Session) MarkHandoff(turn int) {
	s.handoffTurn = turn
	s.Generation++
}

// Terminate moves the session to its final state
func (s *Session) Terminate() {
	s.State = StateTerminated
	s.Generation++
}
