// Package framework provides the FrameworkManager registry that owns every
// room's Controller for the lifetime of the process.
package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/discussiond/engine/internal/agentbackend"
	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/controller"
	"github.com/discussiond/engine/internal/decision"
	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/logging"
	"github.com/discussiond/engine/internal/svr"
	"github.com/discussiond/engine/internal/svrengine"
)

// ErrAlreadyActive is returned by CreateRoom when a room with the given ID
// is already registered.
var ErrAlreadyActive = errors.New("framework: room already active")

// ErrUnknownRoom is returned when an operation names a room the manager has
// never seen.
var ErrUnknownRoom = errors.New("framework: unknown room")

// RoomSpec describes the parameters needed to create a new room.
type RoomSpec struct {
	RoomID string
	Topic  string
	Agents []discussion.AgentSpec
}

// RoomLoader reads back a room's persisted turn log, so CreateRoom can
// reconstruct state for a roomID that already has one on disk (spec §8's
// round-trip property and scenario S6) instead of always starting fresh.
type RoomLoader interface {
	LoadTurns(roomID string) ([]discussion.Turn, error)
}

// Status is a point-in-time snapshot of one room's controller.
type Status struct {
	RoomID        string
	Topic         string
	Phase         event.Phase
	Round         int
	Turns         int
	Participation map[string]float64
}

// entry bundles a room's Controller with the DiscussionContext it drives,
// so Status() can be produced without asking the Controller to expose its
// private state.
type entry struct {
	topic string
	dctx  *discussion.DiscussionContext
	ctrl  *controller.Controller
}

// Manager is the single registry of every room's Controller. It is
// grounded on the teacher's team.Manager: one shared event bus, one backend,
// and a guarded map keyed by room instead of by team — rooms have no
// cross-room dependency graph, so the cascade-on-completion logic the
// teacher needs for inter-team dependencies has no referent here.
type Manager struct {
	mu        sync.RWMutex
	bus       *event.Bus
	cfg       *config.Config
	backend   agentbackend.Backend
	persister controller.Persister
	loader    RoomLoader
	logger    *logging.Logger

	rooms map[string]*entry
	order []string
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithPersister installs the Persister every Controller created from this
// point forward is wired to. Nil (the default) means turns are not durably
// saved, which the Controller already tolerates.
func WithPersister(p controller.Persister) Option {
	return func(m *Manager) { m.persister = p }
}

// WithRoomLoader installs the RoomLoader CreateRoom consults to reconstruct
// a room whose turns.log already has entries for the given roomID. Nil (the
// default) means CreateRoom always starts a room from an empty log.
func WithRoomLoader(l RoomLoader) Option {
	return func(m *Manager) { m.loader = l }
}

// WithLogger installs a base logger new Controllers are scoped from via
// Logger.WithRoom. NopLogger() is used if omitted.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager builds a Manager sharing one event bus and one AgentBackend
// across every room it will create.
func NewManager(cfg *config.Config, bus *event.Bus, backend agentbackend.Backend, opts ...Option) *Manager {
	m := &Manager{
		bus:     bus,
		cfg:     cfg,
		backend: backend,
		logger:  logging.NopLogger(),
		rooms:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom registers a new room and starts its Controller. It returns
// ErrAlreadyActive if the room ID is already registered.
func (m *Manager) CreateRoom(ctx context.Context, spec RoomSpec) error {
	m.mu.Lock()
	if _, exists := m.rooms[spec.RoomID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyActive, spec.RoomID)
	}

	dctx := discussion.NewDiscussionContext(spec.RoomID, spec.Topic, spec.Agents)
	if m.loader != nil {
		if existing, err := m.loader.LoadTurns(spec.RoomID); err == nil && len(existing) > 0 {
			dctx = discussion.RestoreDiscussionContext(spec.RoomID, spec.Topic, spec.Agents, existing)
		}
	}

	computer := svr.NewComputer(m.cfg.SVR, m.cfg.Engine.MaxDuration(), m.cfg.Engine.ParticipationWindow)
	engine := svrengine.NewEngine(computer, m.cfg.Engine.SVRDeadline())
	decider := decision.NewDecider(m.cfg.SVR, m.cfg.Engine)
	roomLogger := m.logger.WithRoom(spec.RoomID)

	ctrl := controller.New(
		spec.RoomID, dctx, engine, decider, m.backend,
		m.persister, m.bus, roomLogger, m.cfg.Engine,
	)

	m.rooms[spec.RoomID] = &entry{topic: spec.Topic, dctx: dctx, ctrl: ctrl}
	m.order = append(m.order, spec.RoomID)
	m.mu.Unlock()

	return ctrl.Start(ctx)
}

// Control sends an operator command to a room's Controller.
func (m *Manager) Control(roomID string, cmd controller.Command) error {
	e, err := m.get(roomID)
	if err != nil {
		return err
	}
	e.ctrl.Control(cmd)
	return nil
}

// PostUserInput appends a user turn to a room and wakes its Controller if
// the room is currently paused.
func (m *Manager) PostUserInput(roomID, content string) error {
	e, err := m.get(roomID)
	if err != nil {
		return err
	}
	e.ctrl.PostUserInput(content)
	return nil
}

// StopRoom stops a room's Controller and removes it from the registry.
func (m *Manager) StopRoom(ctx context.Context, roomID string) error {
	e, err := m.get(roomID)
	if err != nil {
		return err
	}
	if stopErr := e.ctrl.Stop(ctx); stopErr != nil {
		return stopErr
	}

	m.mu.Lock()
	delete(m.rooms, roomID)
	for i, id := range m.order {
		if id == roomID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// StopAll stops every registered room's Controller concurrently, returning
// the first error encountered. Rooms have no inter-room dependency (spec
// §1), so there is no ordering requirement forcing them to stop one at a
// time; an errgroup fans the shutdown grace period out across every room
// instead of spending it serially.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return m.StopRoom(gctx, id)
		})
	}
	return g.Wait()
}

// RoomStatus returns a snapshot of one room, or ErrUnknownRoom.
func (m *Manager) RoomStatus(roomID string) (Status, error) {
	e, err := m.get(roomID)
	if err != nil {
		return Status{}, err
	}
	return e.status(roomID, m.cfg.Engine.ParticipationWindow), nil
}

// AllStatus returns a snapshot of every registered room, in creation order.
func (m *Manager) AllStatus() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rooms[id].status(id, m.cfg.Engine.ParticipationWindow))
	}
	return out
}

func (m *Manager) get(roomID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	return e, nil
}

func (e *entry) status(roomID string, participationWindow int) Status {
	turns := e.dctx.Snapshot()
	return Status{
		RoomID:        roomID,
		Topic:         e.topic,
		Phase:         e.dctx.Phase(),
		Round:         e.dctx.Round(),
		Turns:         len(turns),
		Participation: e.dctx.ParticipationStats(participationWindow),
	}
}
