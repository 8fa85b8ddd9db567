package roomstore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/discussiond/engine/internal/discussion"
)

const manifestFileName = "manifest.yaml"
const turnsFileName = "turns.log"

// Manifest is the small, rarely-changing record describing a room: its
// name, participants, and creation time. It is the YAML half of the
// persisted room layout; turns themselves live in the append-only
// turns.log next to it.
type Manifest struct {
	RoomID       string                 `yaml:"room_id"`
	RoomName     string                 `yaml:"room_name"`
	CreatedAt    int64                  `yaml:"created_at"`
	Participants []discussion.AgentSpec `yaml:"participants"`
}

func manifestPath(roomDir string) string {
	return filepath.Join(roomDir, manifestFileName)
}

func turnsPath(roomDir string) string {
	return filepath.Join(roomDir, turnsFileName)
}

// saveManifest writes a room's manifest atomically, grounded on the
// teacher's atomicWriteFile idiom (write to a sibling temp file, then
// rename into place).
func saveManifest(roomDir string, m Manifest) error {
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		return fmt.Errorf("roomstore: creating room directory: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("roomstore: marshaling manifest: %w", err)
	}

	target := manifestPath(roomDir)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("roomstore: writing manifest temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("roomstore: renaming manifest into place: %w", err)
	}
	return nil
}

// loadManifest reads a room's manifest.
func loadManifest(roomDir string) (Manifest, error) {
	data, err := os.ReadFile(manifestPath(roomDir))
	if err != nil {
		return Manifest{}, fmt.Errorf("roomstore: reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("roomstore: unmarshaling manifest: %w", err)
	}
	return m, nil
}
