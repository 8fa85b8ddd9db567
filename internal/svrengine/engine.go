// Package svrengine fans a room's SVRComputer out across every participant
// concurrently, under one shared deadline (spec §4.4).
package svrengine

import (
	"context"
	"sync"
	"time"

	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/svr"
)

// Computer is the narrow interface ParallelSVREngine needs from svr.Computer,
// so tests can supply a scripted stand-in without a real weighted scorer.
type Computer interface {
	Compute(agent discussion.AgentSpec, view discussion.ContextView) svr.Tuple
}

// ValueRecorder is implemented by a Computer that maintains a running
// history-performance signal across ticks (spec §4.3's "history performance"
// value sub-signal, fed by svr.Computer.RecordRealizedValue). Test doubles
// that only need Compute can leave it unimplemented.
type ValueRecorder interface {
	RecordRealizedValue(agentID string, value float64)
}

// semaphore is a context-aware concurrency limiter. Grounded on the teacher's
// internal/bridge/semaphore.go dynamicSemaphore, generalized here from
// "bounded instance creation" to "bounded per-agent scoring calls". A limit
// of 0 means unlimited.
type semaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	acquired int
}

func newSemaphore(limit int) *semaphore {
	if limit < 0 {
		limit = 0
	}
	s := &semaphore{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit == 0 {
		s.acquired++
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-done:
		}
	}()

	for s.acquired >= s.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.acquired++
	return nil
}

func (s *semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired > 0 {
		s.acquired--
	}
	s.cond.Signal()
}

// Engine computes Tuples for every participant in parallel, under one shared
// deadline, without letting a slow agent's scoring delay the others or the
// Controller's event handling beyond that deadline (spec §4.4).
type Engine struct {
	computer Computer
	sem      *semaphore
	deadline time.Duration
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMaxConcurrency caps how many agents are scored at once. 0 (the
// default) means unlimited — appropriate since SVRComputer is CPU-only and a
// room rarely has more participants than CPU cores anyway.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) { e.sem = newSemaphore(n) }
}

// NewEngine builds a ParallelSVREngine over the given Computer with the
// configured SVR deadline.
func NewEngine(computer Computer, deadline time.Duration, opts ...Option) *Engine {
	e := &Engine{
		computer: computer,
		sem:      newSemaphore(0),
		deadline: deadline,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute fans SVRComputer.Compute out across every agent in view.Agents
// concurrently. The result slice always has exactly len(view.Agents)
// entries, in the same order as view.Agents (spec testable property 5).
// A participant whose computation does not finish within the engine's
// deadline yields a Tuple with Err set rather than blocking the caller.
func (e *Engine) Compute(ctx context.Context, view discussion.ContextView) []svr.Tuple {
	results := make([]svr.Tuple, len(view.Agents))

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	dones := make([]chan svr.Tuple, len(view.Agents))
	for i, agent := range view.Agents {
		i, agent := i, agent
		dones[i] = make(chan svr.Tuple, 1)

		go func() {
			if err := e.sem.Acquire(ctx); err != nil {
				dones[i] <- svr.Tuple{AgentID: agent.ID, Err: err}
				return
			}
			defer e.sem.Release()

			start := time.Now()
			tuple := e.computer.Compute(agent, view)
			tuple.AgentID = agent.ID
			tuple.LatencyMs = time.Since(start).Milliseconds()
			dones[i] <- tuple
		}()
	}

	var wg sync.WaitGroup
	wg.Add(len(view.Agents))
	for i, agent := range view.Agents {
		i, agent := i, agent
		go func() {
			defer wg.Done()
			select {
			case tuple := <-dones[i]:
				results[i] = tuple
			case <-ctx.Done():
				results[i] = svr.Tuple{AgentID: agent.ID, Err: ctx.Err()}
			}
		}()
	}
	wg.Wait()

	return results
}

// RecordRealizedValue feeds a selected agent's realized value score back into
// the underlying Computer's history-performance EWMA, if it implements
// ValueRecorder. A Computer that doesn't (e.g. a test double) silently drops
// the call, since it has no history-performance state to update.
func (e *Engine) RecordRealizedValue(agentID string, value float64) {
	if r, ok := e.computer.(ValueRecorder); ok {
		r.RecordRealizedValue(agentID, value)
	}
}
