package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/internal/metrics"
	"github.com/calloway/switchboard/pkg/breaker"
	"github.com/calloway/switchboard/pkg/handoff"
	"github.com/calloway/switchboard/pkg/modelturn"
	"github.com/calloway/switchboard/pkg/roster"
	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

// ClientFactory resolves a model client per provider name
type ClientFactory interface {
	Client(provider string) (modelturn.Client, error)
}

// Options wires the orchestrator's collaborators and budgets
type Options struct {
	Store    *sessionstore.Store
	Registry *roster.Registry
	Tools    *toolgw.Executor
	Models   ClientFactory
	Emit     Emitter

	SettleDelay       time.Duration
	MaxVerifyAttempts int
	ToolCallCeiling   int
	MaxWorkers        int
}

// Orchestrator routes every inbound event for a session through that
// session's lane. Within a lane tasks run strictly in order, so session
// state needs no locking of its own.
type Orchestrator struct {
	store    *sessionstore.Store
	registry *roster.Registry
	tools    *toolgw.Executor
	models   ClientFactory
	emit     Emitter

	brk         *breaker.Breaker
	gate        *handoff.Gate
	settleDelay time.Duration
	lanes       *laneRunner

	// mu guards rosters and timers; session fields themselves are
	// lane-owned.
	mu      sync.Mutex
	rosters map[string]*roster.Roster
	timers  map[string]*time.Timer
}

// New creates an orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("roster registry is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if opts.Models == nil {
		return nil, fmt.Errorf("model client factory is required")
	}

	emit := opts.Emit
	if emit == nil {
		emit = func(OutboundEvent) {}
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}

	return &Orchestrator{
		store:       opts.Store,
		registry:    opts.Registry,
		tools:       opts.Tools,
		models:      opts.Models,
		emit:        emit,
		brk:         breaker.New(opts.ToolCallCeiling),
		gate:        handoff.NewGate(opts.MaxVerifyAttempts),
		settleDelay: settle,
		lanes:       newLaneRunner(opts.MaxWorkers),
		rosters:     make(map[string]*roster.Roster),
		timers:      make(map[string]*time.Timer),
	}, nil
}

// SetEmitter replaces the outbound event sink. Call before traffic.
func (o *Orchestrator) SetEmitter(emit Emitter) {
	if emit == nil {
		emit = func(OutboundEvent) {}
	}
	o.emit = emit
}

// HandleInbound validates an event and enqueues it on the session's
// lane. Returns only validation errors; processing errors surface as
// outbound error events.
func (o *Orchestrator) HandleInbound(ev InboundEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	o.lanes.Do(ev.SessionID, func() {
		switch ev.Kind {
		case InboundConnect:
			o.handleConnect(ev)
		case InboundUserMessage:
			o.handleUserMessage(ev)
		case InboundDisconnect:
			o.handleDisconnect(ev.SessionID)
		}
	})
	return nil
}

// ReapIdle terminates an idle session through its lane, keeping the
// single-writer guarantee even for reaper-initiated teardown.
func (o *Orchestrator) ReapIdle(sessionID string) {
	o.lanes.Do(sessionID, func() {
		o.handleDisconnect(sessionID)
	})
}

// Close cancels pending timers and drains the lanes
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.mu.Unlock()
	o.lanes.Close()
}

func (o *Orchestrator) handleConnect(ev InboundEvent) {
	// Pin the roster at connect time: a mid-session reload never changes
	// this conversation's agent set.
	ros := o.registry.Current()

	s, err := o.store.Create(ev.SessionID, ros.IntakeAgentID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("Connect rejected")
		o.emitError(ev.SessionID, ErrKindBadRequest, err.Error())
		return
	}

	o.mu.Lock()
	o.rosters[ev.SessionID] = ros
	o.mu.Unlock()

	if len(ev.Seed) > 0 {
		s.Memory.Seed(ev.Seed)
	}

	def, err := ros.Get(ros.IntakeAgentID)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Intake agent missing from pinned roster")
		return
	}
	o.activateAgent(s, ros, def)
}

func (o *Orchestrator) handleUserMessage(ev InboundEvent) {
	s, ok := o.store.Get(ev.SessionID)
	if !ok {
		o.emitError(ev.SessionID, ErrKindBadRequest, "unknown session")
		return
	}

	ros := o.sessionRoster(s.ID)
	if ros == nil {
		o.emitError(s.ID, ErrKindToolFailure, "session has no roster")
		return
	}

	detectFacts(s.Memory, ev.Text)

	turn := s.BeginTurn()
	userRec := sessionstore.TurnRecord{
		TurnID: s.TurnID("user"),
		Role:   "user",
		Text:   ev.Text,
		Final:  true,
	}
	s.Transcript.Upsert(userRec)
	o.emitTranscript(s.ID, userRec)

	def, err := ros.Get(s.ActiveAgentID)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Str("agent_id", s.ActiveAgentID).Msg("Active agent missing")
		o.emitError(s.ID, ErrKindToolFailure, "active agent is not available")
		return
	}

	// When the verifier holds both credentials, require a tool call so
	// verification cannot stall on model chit-chat.
	force := s.State == sessionstore.StateVerifying &&
		hasCredentials(s.Memory) &&
		def.AllowsTool(toolgw.ToolVerifyIdentity)

	o.runTurn(s, ros, def, turn, force)
}

func (o *Orchestrator) handleDisconnect(sessionID string) {
	o.cancelTimer(sessionID)

	o.mu.Lock()
	delete(o.rosters, sessionID)
	o.mu.Unlock()

	o.brk.DropSession(sessionID)

	if err := o.store.Terminate(sessionID); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("Disconnect for unknown session")
	}
}

// activateAgent runs an agent's entry actions: greeting, then any
// deterministic follow-through (forced verification, stored-intent
// auto-execution).
func (o *Orchestrator) activateAgent(s *sessionstore.Session, ros *roster.Roster, def *roster.Definition) {
	if def.Greeting != "" {
		s.BeginTurn()
		rec := sessionstore.TurnRecord{
			TurnID: s.TurnID("assistant"),
			Role:   "assistant",
			Text:   def.Greeting,
			Final:  true,
		}
		s.Transcript.Upsert(rec)
		o.emitTranscript(s.ID, rec)
	}

	switch {
	case def.ID == ros.VerifierAgentID && hasCredentials(s.Memory) && def.AllowsTool(toolgw.ToolVerifyIdentity):
		// Credentials already collected upstream: verify immediately
		// instead of asking again.
		o.runTurn(s, ros, def, s.BeginTurn(), true)

	case s.State == sessionstore.StateVerified:
		intent := s.Memory.GetString(sessionstore.KeyUserIntent)
		if intent != "" && def.AllowsTool(intent) {
			log.Info().
				Str("session_id", s.ID).
				Str("intent", intent).
				Msg("Auto-executing stored intent after verification")
			o.runTurn(s, ros, def, s.BeginTurn(), true)
			// Consumed: a later request for the same action is a fresh
			// intent, not a replay of this one.
			s.Memory.Clear(sessionstore.KeyUserIntent)
		}
	}
}

// scheduleVerifiedTransition arms the settling-delay timer for the
// post-verification handoff. The generation captured here defeats the
// timer if anything moves the session before it fires.
func (o *Orchestrator) scheduleVerifiedTransition(sessionID string, generation int) {
	o.mu.Lock()
	if t, ok := o.timers[sessionID]; ok {
		t.Stop()
	}
	o.timers[sessionID] = time.AfterFunc(o.settleDelay, func() {
		o.lanes.Do(sessionID, func() {
			o.completeVerifiedTransition(sessionID, generation)
		})
	})
	o.mu.Unlock()

	log.Info().
		Str("session_id", sessionID).
		Dur("settle_delay", o.settleDelay).
		Msg("Post-verification transition scheduled")
}

func (o *Orchestrator) completeVerifiedTransition(sessionID string, generation int) {
	o.cancelTimer(sessionID)

	s, ok := o.store.Get(sessionID)
	if !ok {
		return
	}
	if s.Generation != generation {
		log.Info().
			Str("session_id", sessionID).
			Int("scheduled_generation", generation).
			Int("current_generation", s.Generation).
			Msg("Stale verified transition dropped")
		return
	}

	ros := o.sessionRoster(sessionID)
	if ros == nil {
		return
	}

	from := s.ActiveAgentID
	target := ros.PostVerifyAgentID
	handoff.ApplyTransition(s, ros, target, s.TurnIndex)

	metrics.Get().HandoffsTotal.WithLabelValues(from, target, string(handoff.ReasonVerifiedStateGate)).Inc()
	o.emit(OutboundEvent{
		Kind:      OutboundHandoff,
		SessionID: s.ID,
		Handoff: &HandoffEvent{
			FromAgentID: from,
			ToAgentID:   target,
			Reason:      string(handoff.ReasonVerifiedStateGate),
		},
	})

	def, err := ros.Get(target)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Post-verification agent missing")
		return
	}
	o.activateAgent(s, ros, def)
}

func (o *Orchestrator) cancelTimer(sessionID string) {
	o.mu.Lock()
	if t, ok := o.timers[sessionID]; ok {
		t.Stop()
		delete(o.timers, sessionID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) sessionRoster(sessionID string) *roster.Roster {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rosters[sessionID]
}

func (o *Orchestrator) emitTranscript(sessionID string, rec sessionstore.TurnRecord) {
	o.emit(OutboundEvent{
		Kind:      OutboundTranscript,
		SessionID: sessionID,
		Transcript: &TranscriptEvent{
			TurnID:  rec.TurnID,
			Role:    rec.Role,
			Text:    rec.Text,
			IsFinal: rec.Final,
		},
	})
}

func (o *Orchestrator) emitError(sessionID, kind, message string) {
	o.emit(OutboundEvent{
		Kind:      OutboundError,
		SessionID: sessionID,
		Error:     &ErrorEvent{Kind: kind, Message: message},
	})
}
