package breaker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/pkg/sessionstore"
)

// Decision is the breaker's verdict on a requested tool call
type Decision string

const (
	DecisionAllow                Decision = "allow"
	DecisionSuppressDuplicate    Decision = "suppress-duplicate"
	DecisionSuppressCircuitBreak Decision = "suppress-circuit-break"
)

// DefaultCeiling caps invocations of one tool name per session
const DefaultCeiling = 5

// callKey identifies one exact tool call within one turn
type callKey struct {
	sessionID string
	turn      int
	tool      string
	argsHash  string
}

// Breaker deduplicates identical tool calls within a turn (replaying
// the cached result) and opens the circuit for a tool name past the
// per-session ceiling.
type Breaker struct {
	ceiling int
	mu      sync.Mutex
	results map[callKey]interface{}
}

// New creates a breaker. ceiling <= 0 selects the default.
func New(ceiling int) *Breaker {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Breaker{
		ceiling: ceiling,
		results: make(map[callKey]interface{}),
	}
}

// HashArgs derives a stable hash for a tool argument map. json.Marshal
// sorts map keys, so equal argument sets hash equally regardless of
// insertion order.
func HashArgs(args map[string]interface{}) string {
	data, err := json.Marshal(args)
	if err != nil {
		// Unmarshalable arguments cannot be deduplicated; fall back to
		// a per-call unique hash.
		return fmt.Sprintf("unhashable-%p", &args)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// ShouldAllow decides whether a requested call proceeds. It reads the
// session's ledger; it records nothing itself — the caller records the
// attempt only for allowed calls, so suppressed calls never count
// toward the ceiling.
func (b *Breaker) ShouldAllow(s *sessionstore.Session, tool, argsHash string, turn int) Decision {
	b.mu.Lock()
	_, seen := b.results[callKey{sessionID: s.ID, turn: turn, tool: tool, argsHash: argsHash}]
	b.mu.Unlock()

	if seen {
		log.Warn().
			Str("session_id", s.ID).
			Str("tool", tool).
			Int("turn", turn).
			Msg("Duplicate tool call suppressed")
		return DecisionSuppressDuplicate
	}

	if s.ToolAttemptsInSession(tool) >= b.ceiling {
		log.Warn().
			Str("session_id", s.ID).
			Str("tool", tool).
			Int("ceiling", b.ceiling).
			Msg("Tool call ceiling reached, circuit open")
		return DecisionSuppressCircuitBreak
	}

	return DecisionAllow
}

// StoreResult caches an executed call's result for in-turn replay
func (b *Breaker) StoreResult(s *sessionstore.Session, tool, argsHash string, turn int, result interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[callKey{sessionID: s.ID, turn: turn, tool: tool, argsHash: argsHash}] = result
}

// Replay returns the cached result for an identical in-turn call
func (b *Breaker) Replay(s *sessionstore.Session, tool, argsHash string, turn int) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	result, ok := b.results[callKey{sessionID: s.ID, turn: turn, tool: tool, argsHash: argsHash}]
	return result, ok
}

// EndTurn drops the replay cache for turns at or before the given turn,
// bounding memory per session
func (b *Breaker) EndTurn(sessionID string, turn int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.results {
		if key.sessionID == sessionID && key.turn <= turn {
			delete(b.results, key)
		}
	}
}

// DropSession discards all breaker state for a terminated session
func (b *Breaker) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.results {
		if key.sessionID == sessionID {
			delete(b.results, key)
		}
	}
}
