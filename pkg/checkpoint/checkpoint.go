// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package checkpoint persists a periodic snapshot of monologue state to
// disk so a crashed or restarted engine can resume without losing the
// active conversation. Writes are atomic: a snapshot is written to a
// temp file and renamed into place, so a reader never observes a torn
// file and a crash mid-write leaves the previous checkpoint intact.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crucibleai/kernel/pkg/providers"
)

const maxHistoryEntries = 50

// Snapshot is the on-disk checkpoint layout, keys bit-exact with the
// spec's documented schema.
type Snapshot struct {
	Timestamp    time.Time         `json:"timestamp"`
	Iteration    int               `json:"iteration"`
	RoomID       string            `json:"room_id"`
	Adapter      string            `json:"adapter"`
	History      []providers.Message `json:"history"`
	LastResponse string            `json:"last_response"`
	Progress     map[string]any    `json:"progress,omitempty"`
}

// Manager saves and restores Snapshots under a workspace's data/db
// directory using a temp-file-then-rename atomic write, the same
// pattern the teacher's state.Manager uses for its own small state file.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager returns a Manager writing checkpoint.json under
// <workspace>/data/db. The directory is created if missing.
func NewManager(workspace string) *Manager {
	dir := filepath.Join(workspace, "data", "db")
	_ = os.MkdirAll(dir, 0o755)
	return &Manager{path: filepath.Join(dir, "checkpoint.json")}
}

// Save truncates history to its last 50 entries and writes the snapshot
// atomically: marshal, write to checkpoint.tmp, rename to checkpoint.json.
// On any failure after the temp file is written, the temp file is removed.
func (m *Manager) Save(snap Snapshot) error {
	if len(snap.History) > maxHistoryEntries {
		snap.History = snap.History[len(snap.History)-maxHistoryEntries:]
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename checkpoint temp file: %w", err)
	}
	return nil
}

// Load parses the checkpoint file. Callers apply the result to the
// active engine themselves (replace history, iteration counter,
// last_response, room_id) — Manager does not hold an engine reference.
func (m *Manager) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap Snapshot
	data, err := os.ReadFile(m.path)
	if err != nil {
		return snap, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return snap, nil
}

// HasCheckpoint reports whether a checkpoint file currently exists.
func (m *Manager) HasCheckpoint() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := os.Stat(m.path)
	return err == nil
}

// CheckpointAge returns how long ago the checkpoint file was last
// written. The second return is false if no checkpoint exists.
func (m *Manager) CheckpointAge() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := os.Stat(m.path)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// Restorable is the narrow slice of the monologue engine a Restore call
// mutates, kept local so this package has no dependency on pkg/monologue.
type Restorable interface {
	RestoreCheckpoint(history []providers.Message, iteration int, lastResponse, roomID string)
}

// Restore loads the checkpoint and applies it to the given engine.
func (m *Manager) Restore(engine Restorable) error {
	snap, err := m.Load()
	if err != nil {
		return err
	}
	engine.RestoreCheckpoint(snap.History, snap.Iteration, snap.LastResponse, snap.RoomID)
	return nil
}

// SaveEmergency is called by HeartbeatMonitor on stall detection. It
// saves whatever snapshot the provider function currently holds; a nil
// snapshotFn means there is nothing to save and this is a no-op.
type SnapshotFunc func() Snapshot

// EmergencySaver adapts a live snapshot source to the
// heartbeat.Checkpointer interface (SaveEmergency(ctx) error).
type EmergencySaver struct {
	Manager     *Manager
	SnapshotFn  SnapshotFunc
}

func (e *EmergencySaver) SaveEmergency(_ context.Context) error {
	if e.SnapshotFn == nil {
		return nil
	}
	return e.Manager.Save(e.SnapshotFn())
}
