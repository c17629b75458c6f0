package orchestrator

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// lane is one session's FIFO task queue
type lane struct {
	queue   []func()
	running bool
}

// laneRunner serializes work per session: no two tasks for one session
// ever overlap, while distinct sessions run in parallel up to the
// worker bound.
type laneRunner struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	sem    chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// newLaneRunner creates a runner bounded to maxWorkers parallel tasks
func newLaneRunner(maxWorkers int) *laneRunner {
	if maxWorkers <= 0 {
		maxWorkers = 64
	}
	return &laneRunner{
		lanes: make(map[string]*lane),
		sem:   make(chan struct{}, maxWorkers),
	}
}

// Do enqueues fn on the session's lane. Tasks run strictly in enqueue
// order for one session.
func (r *laneRunner) Do(sessionID string, fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Warn().Str("session_id", sessionID).Msg("Task dropped, lane runner closed")
		return
	}

	ln, ok := r.lanes[sessionID]
	if !ok {
		ln = &lane{}
		r.lanes[sessionID] = ln
	}
	ln.queue = append(ln.queue, fn)

	if ln.running {
		r.mu.Unlock()
		return
	}
	ln.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go r.drain(sessionID, ln)
}

// drain runs the lane's queue to exhaustion, then parks the lane
func (r *laneRunner) drain(sessionID string, ln *lane) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		if len(ln.queue) == 0 {
			ln.running = false
			delete(r.lanes, sessionID)
			r.mu.Unlock()
			return
		}
		fn := ln.queue[0]
		ln.queue = ln.queue[1:]
		r.mu.Unlock()

		r.sem <- struct{}{}
		fn()
		<-r.sem
	}
}

// Close drops future tasks and waits for running lanes to finish
func (r *laneRunner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
