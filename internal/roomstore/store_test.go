package roomstore

import (
	"context"
	"testing"
	"time"

	"github.com/discussiond/engine/internal/discussion"
)

func TestStore_CreateRoomWritesManifest(t *testing.T) {
	s := New(t.TempDir())

	roster := []discussion.AgentSpec{{ID: "alpha", DisplayName: "Alpha"}}
	if err := s.CreateRoom("room-1", "ship it?", roster); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	defer s.Close()

	m, err := s.Manifest("room-1")
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.RoomName != "ship it?" {
		t.Errorf("RoomName = %q, want %q", m.RoomName, "ship it?")
	}
	if len(m.Participants) != 1 || m.Participants[0].ID != "alpha" {
		t.Errorf("Participants = %+v", m.Participants)
	}
}

func TestStore_EnqueueThenLoadTurns(t *testing.T) {
	s := New(t.TempDir())
	if err := s.CreateRoom("room-1", "t", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	defer s.Close()

	turn := discussion.Turn{ID: 1, AgentID: "alpha", Content: "hello", CreatedAt: time.Now()}
	if err := s.Enqueue(context.Background(), "room-1", turn); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for s.BacklogDepth("room-1") > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if s.BacklogDepth("room-1") != 0 {
		t.Fatal("backlog never drained")
	}

	turns, err := s.LoadTurns("room-1")
	if err != nil {
		t.Fatalf("LoadTurns: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "hello" {
		t.Fatalf("LoadTurns = %+v", turns)
	}
}

func TestStore_EnqueueUnknownRoomIsNoop(t *testing.T) {
	s := New(t.TempDir())
	err := s.Enqueue(context.Background(), "ghost", discussion.Turn{ID: 1})
	if err != nil {
		t.Fatalf("Enqueue on unknown room should be a no-op, got %v", err)
	}
	if s.BacklogDepth("ghost") != 0 {
		t.Errorf("BacklogDepth on unknown room = %d, want 0", s.BacklogDepth("ghost"))
	}
}

func TestStore_DeleteRoomRemovesManifest(t *testing.T) {
	s := New(t.TempDir())
	if err := s.CreateRoom("room-1", "t", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if err := s.DeleteRoom("room-1"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}

	if _, err := s.Manifest("room-1"); err == nil {
		t.Fatal("expected an error reading a deleted room's manifest")
	}
}

func TestStore_ListRoomsReturnsAllManifests(t *testing.T) {
	s := New(t.TempDir())
	for _, id := range []string{"room-a", "room-b"} {
		if err := s.CreateRoom(id, id, nil); err != nil {
			t.Fatalf("CreateRoom(%s): %v", id, err)
		}
	}
	defer s.Close()

	manifests, err := s.ListRooms()
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(manifests))
	}
}
