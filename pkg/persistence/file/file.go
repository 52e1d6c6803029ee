// Package file provides the file-based persistence implementation for sessions.
//
// Layout under the root directory:
//
//	sessions/<id>.json                   session record (atomic overwrite)
//	sessions/<id>/checkpoints/<ckpt>.json checkpoint snapshots (write-once)
//	sessions/<id>/decisions.jsonl        append-only decision log
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix on the root is accepted and stripped.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) sessionsDir() string {
	return path.Join(fp.root, "sessions")
}

func (fp *Persistence) sessionPath(id string) string {
	return filepath.Clean(path.Join(fp.sessionsDir(), id+".json"))
}

func (fp *Persistence) sessionDir(id string) string {
	return filepath.Clean(path.Join(fp.sessionsDir(), id))
}

// SaveSession writes the full session record atomically: the record is written
// to a temp file in the same directory and renamed over the previous one, so a
// concurrent reader never observes a partial write.
func (fp *Persistence) SaveSession(_ context.Context, session *models.Session) error {
	if err := os.MkdirAll(fp.sessionsDir(), 0750); err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	if session.SchemaVersion == 0 {
		session.SchemaVersion = models.SchemaVersion
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	tmp, err := os.CreateTemp(fp.sessionsDir(), session.ID+".*.tmp")
	if err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	if err = os.Rename(tmp.Name(), fp.sessionPath(session.ID)); err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	return nil
}

// SessionByID retrieves a session record. It returns (nil, nil) when the
// record does not exist and rejects records written by a newer schema.
func (fp *Persistence) SessionByID(_ context.Context, id string) (*models.Session, error) {
	body, err := os.ReadFile(fp.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("SessionByID", id, err)
	}

	var session models.Session

	if err = json.Unmarshal(body, &session); err != nil {
		return nil, persistence.NewStoreError("SessionByID", id, err)
	}

	if session.SchemaVersion > models.SchemaVersion {
		return nil, persistence.NewStoreError("SessionByID", id, persistence.ErrSchemaVersionTooNew)
	}

	return &session, nil
}

// Sessions lists all stored session records, newest first.
func (fp *Persistence) Sessions(ctx context.Context) ([]models.SessionSummary, error) {
	root := os.DirFS(fp.sessionsDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	summaries := make([]models.SessionSummary, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-5] // Remove .json extension

		session, err := fp.SessionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if session != nil {
			summaries = append(summaries, session.Summary())
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

// ResumableSessions lists sessions that may re-enter the advance loop.
func (fp *Persistence) ResumableSessions(ctx context.Context) ([]models.SessionSummary, error) {
	all, err := fp.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	resumable := make([]models.SessionSummary, 0)

	for _, summary := range all {
		if summary.Status == models.SessionStatusPaused {
			resumable = append(resumable, summary)

			continue
		}

		if summary.Status == models.SessionStatusActive && !summary.CurrentState.IsTerminal() {
			resumable = append(resumable, summary)
		}
	}

	return resumable, nil
}

// DeleteSession removes the session record, its checkpoint snapshots and its
// decision log. Deleting an absent session is not an error.
func (fp *Persistence) DeleteSession(_ context.Context, id string) error {
	err := os.Remove(fp.sessionPath(id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewStoreError("DeleteSession", id, err)
	}

	if err = os.RemoveAll(fp.sessionDir(id)); err != nil {
		return persistence.NewStoreError("DeleteSession", id, err)
	}

	return nil
}
