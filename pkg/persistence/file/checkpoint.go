package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
)

func (fp *Persistence) checkpointsDir(sessionID string) string {
	return filepath.Clean(path.Join(fp.sessionDir(sessionID), "checkpoints"))
}

func (fp *Persistence) decisionsPath(sessionID string) string {
	return filepath.Clean(path.Join(fp.sessionDir(sessionID), "decisions.jsonl"))
}

// SaveCheckpoint writes one snapshot file under the session directory.
// Snapshot files are write-once.
func (fp *Persistence) SaveCheckpoint(_ context.Context, sessionID string, checkpoint models.Checkpoint) error {
	dir := fp.checkpointsDir(sessionID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	target := path.Join(dir, checkpoint.ID+".json")
	if _, err := os.Stat(target); err == nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, persistence.ErrCheckpointExists)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	// O_EXCL guards the write-once contract against a concurrent writer.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return persistence.NewStoreError("SaveCheckpoint", sessionID, persistence.ErrCheckpointExists)
		}

		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()

		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	return f.Close()
}

// Checkpoints lists the session's snapshots ordered by the time they were taken.
func (fp *Persistence) Checkpoints(_ context.Context, sessionID string) ([]models.Checkpoint, error) {
	dir := fp.checkpointsDir(sessionID)

	entries, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint files: %w", err)
	}

	checkpoints := make([]models.Checkpoint, 0, len(entries))

	for _, entry := range entries {
		body, err := os.ReadFile(path.Join(dir, entry))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
		}

		var checkpoint models.Checkpoint

		if err = json.Unmarshal(body, &checkpoint); err != nil {
			return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
		}

		checkpoints = append(checkpoints, checkpoint)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].TakenAt.Before(checkpoints[j].TakenAt)
	})

	return checkpoints, nil
}

// AppendDecision appends one line to the session's decision log.
func (fp *Persistence) AppendDecision(_ context.Context, sessionID string, decision models.HitlDecision) error {
	if err := os.MkdirAll(fp.sessionDir(sessionID), 0750); err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	data, err := json.Marshal(decision)
	if err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	f, err := os.OpenFile(fp.decisionsPath(sessionID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	if _, err = f.Write(append(data, '\n')); err != nil {
		_ = f.Close()

		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	return f.Close()
}

// Decisions reads back the append-only decision log in insertion order.
func (fp *Persistence) Decisions(_ context.Context, sessionID string) ([]models.HitlDecision, error) {
	f, err := os.Open(fp.decisionsPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []models.HitlDecision{}, nil
		}

		return nil, persistence.NewStoreError("Decisions", sessionID, err)
	}
	defer func() {
		_ = f.Close()
	}()

	decisions := make([]models.HitlDecision, 0)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var decision models.HitlDecision

		if err = json.Unmarshal(line, &decision); err != nil {
			return nil, persistence.NewStoreError("Decisions", sessionID, err)
		}

		decisions = append(decisions, decision)
	}

	if err = scanner.Err(); err != nil {
		return nil, persistence.NewStoreError("Decisions", sessionID, err)
	}

	return decisions, nil
}
