// Package roomstore persists each room's manifest and turn history to disk:
// a YAML manifest plus an append-only turns.log, written asynchronously off
// the Controller's tick loop. Implements controller.Persister.
package roomstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discussiond/engine/internal/discussion"
)

// ErrRoomNotFound is returned by Manifest when a room has no manifest on
// disk.
var ErrRoomNotFound = fmt.Errorf("roomstore: room not found")

// roomWorker owns the append-only file handle for one room and drains a
// buffered queue of turns onto it from a single background goroutine,
// mirroring adaptive.Lead's ticker-driven background loop but triggered by
// channel sends rather than a timer.
type roomWorker struct {
	dir     string
	queue   chan discussion.Turn
	backlog int64 // atomic; incremented on Enqueue, decremented once written

	closeOnce sync.Once
	done      chan struct{}
}

func newRoomWorker(dir string, queueCap int) (*roomWorker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("roomstore: creating room directory: %w", err)
	}

	w := &roomWorker{
		dir:   dir,
		queue: make(chan discussion.Turn, queueCap),
		done:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *roomWorker) run() {
	defer close(w.done)

	f, err := os.OpenFile(turnsPath(w.dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// Nothing more this worker can do; drain the queue so Enqueue
		// callers never block forever, dropping every turn.
		for range w.queue {
			atomic.AddInt64(&w.backlog, -1)
		}
		return
	}
	defer f.Close()

	for turn := range w.queue {
		line, err := json.Marshal(turn)
		if err == nil {
			_, _ = f.Write(append(line, '\n'))
		}
		atomic.AddInt64(&w.backlog, -1)
	}
}

func (w *roomWorker) enqueue(turn discussion.Turn) {
	atomic.AddInt64(&w.backlog, 1)
	select {
	case w.queue <- turn:
	default:
		// Queue is saturated; sending would block the caller, so the turn
		// is dropped rather than stalling the room's tick loop. A dropped
		// turn is taken back out of the backlog depth, so it is not counted
		// in the depth the Controller checks against PersistLagCap.
		atomic.AddInt64(&w.backlog, -1)
	}
}

func (w *roomWorker) depth() int {
	return int(atomic.LoadInt64(&w.backlog))
}

func (w *roomWorker) stop() {
	w.closeOnce.Do(func() { close(w.queue) })
	<-w.done
}

// Store is the on-disk RoomStore: one directory per room under BaseDir,
// containing manifest.yaml and turns.log.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	workers map[string]*roomWorker
}

// New creates a Store rooted at baseDir. The directory is created lazily as
// rooms are added.
func New(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		workers: make(map[string]*roomWorker),
	}
}

func (s *Store) roomDir(roomID string) string {
	return filepath.Join(s.baseDir, roomID)
}

// CreateRoom writes a new room's manifest and starts its async save worker.
func (s *Store) CreateRoom(roomID, roomName string, participants []discussion.AgentSpec) error {
	dir := s.roomDir(roomID)
	m := Manifest{
		RoomID:       roomID,
		RoomName:     roomName,
		CreatedAt:    time.Now().Unix(),
		Participants: participants,
	}
	if err := saveManifest(dir, m); err != nil {
		return err
	}

	worker, err := newRoomWorker(dir, 256)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.workers[roomID] = worker
	s.mu.Unlock()
	return nil
}

// DeleteRoom stops the room's worker (if running) and removes its
// directory entirely.
func (s *Store) DeleteRoom(roomID string) error {
	s.mu.Lock()
	worker, ok := s.workers[roomID]
	delete(s.workers, roomID)
	s.mu.Unlock()

	if ok {
		worker.stop()
	}

	if err := os.RemoveAll(s.roomDir(roomID)); err != nil {
		return fmt.Errorf("roomstore: deleting room %s: %w", roomID, err)
	}
	return nil
}

// ListRooms returns the manifest of every room directory under BaseDir.
func (s *Store) ListRooms() ([]Manifest, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("roomstore: listing rooms: %w", err)
	}

	var manifests []Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := loadManifest(s.roomDir(e.Name()))
		if err != nil {
			continue // skip a room directory without a readable manifest
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Manifest returns one room's manifest.
func (s *Store) Manifest(roomID string) (Manifest, error) {
	m, err := loadManifest(s.roomDir(roomID))
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return m, nil
}

// LoadTurns reads every turn persisted for a room. A trailing partial line
// (the process was killed mid-write) is tolerated and silently dropped per
// spec §6.
func (s *Store) LoadTurns(roomID string) ([]discussion.Turn, error) {
	f, err := os.Open(turnsPath(s.roomDir(roomID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("roomstore: opening turns.log: %w", err)
	}
	defer f.Close()

	var turns []discussion.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t discussion.Turn
		if err := json.Unmarshal(line, &t); err != nil {
			// A partial trailing line is the only expected malformed case;
			// stop reading rather than erroring the whole load.
			break
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Enqueue implements controller.Persister. It queues a turn for the room's
// background worker to append; if no worker exists for the room (it was
// never created through this Store, e.g. in a test), the turn is dropped.
func (s *Store) Enqueue(ctx context.Context, roomID string, turn discussion.Turn) error {
	s.mu.RLock()
	worker, ok := s.workers[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	worker.enqueue(turn)
	return nil
}

// BacklogDepth implements controller.Persister.
func (s *Store) BacklogDepth(roomID string) int {
	s.mu.RLock()
	worker, ok := s.workers[roomID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return worker.depth()
}

// Close stops every room's background worker without deleting any data.
func (s *Store) Close() {
	s.mu.Lock()
	workers := make([]*roomWorker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.workers = make(map[string]*roomWorker)
	s.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}
