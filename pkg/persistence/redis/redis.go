// Package redis provides a Redis-backed persistence implementation for sessions.
//
// A session record is one JSON value per key, overwritten atomically by SET;
// checkpoint snapshots live in a per-session hash guarded by HSETNX to keep
// them write-once, and the decision log is a Redis list appended with RPUSH.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "modelflow:session:"
const indexKey = "modelflow:sessions"

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client *redis.Client
}

// NewPersistence connects to the Redis instance addressed by the URL
// (redis://[user:pass@]host:port/db).
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{client: client}, nil
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func checkpointsKey(id string) string {
	return keyPrefix + id + ":checkpoints"
}

func decisionsKey(id string) string {
	return keyPrefix + id + ":decisions"
}

func (rp *Persistence) Close(_ context.Context) error {
	return rp.client.Close()
}

func (rp *Persistence) HealthCheck(ctx context.Context) error {
	return rp.client.Ping(ctx).Err()
}

func (rp *Persistence) SaveSession(ctx context.Context, session *models.Session) error {
	if session.SchemaVersion == 0 {
		session.SchemaVersion = models.SchemaVersion
	}

	data, err := json.Marshal(session)
	if err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	pipe := rp.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, 0)
	pipe.SAdd(ctx, indexKey, session.ID)

	if _, err = pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	return nil
}

func (rp *Persistence) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	body, err := rp.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

func (rp *Persistence) Sessions(ctx context.Context) ([]models.SessionSummary, error) {
	ids, err := rp.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session index: %w", err)
	}

	summaries := make([]models.SessionSummary, 0, len(ids))

	for _, id := range ids {
		session, err := rp.SessionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if session == nil {
			// Index entry without a record; drop the stale member.
			rp.client.SRem(ctx, indexKey, id)

			continue
		}

		summaries = append(summaries, session.Summary())
	}

	return summaries, nil
}

func (rp *Persistence) ResumableSessions(ctx context.Context) ([]models.SessionSummary, error) {
	all, err := rp.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	resumable := make([]models.SessionSummary, 0)

	for _, summary := range all {
		if summary.Status == models.SessionStatusPaused ||
			(summary.Status == models.SessionStatusActive && !summary.CurrentState.IsTerminal()) {
			resumable = append(resumable, summary)
		}
	}

	return resumable, nil
}

func (rp *Persistence) DeleteSession(ctx context.Context, id string) error {
	pipe := rp.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id), checkpointsKey(id), decisionsKey(id))
	pipe.SRem(ctx, indexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("DeleteSession", id, err)
	}

	return nil
}

func (rp *Persistence) SaveCheckpoint(ctx context.Context, sessionID string, checkpoint models.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	created, err := rp.client.HSetNX(ctx, checkpointsKey(sessionID), checkpoint.ID, data).Result()
	if err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	if !created {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, persistence.ErrCheckpointExists)
	}

	return nil
}

func (rp *Persistence) Checkpoints(ctx context.Context, sessionID string) ([]models.Checkpoint, error) {
	entries, err := rp.client.HVals(ctx, checkpointsKey(sessionID)).Result()
	if err != nil {
		return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
	}

	checkpoints := make([]models.Checkpoint, 0, len(entries))

	for _, entry := range entries {
		var checkpoint models.Checkpoint

		if err = json.Unmarshal([]byte(entry), &checkpoint); err != nil {
			return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
		}

		checkpoints = append(checkpoints, checkpoint)
	}

	sortCheckpoints(checkpoints)

	return checkpoints, nil
}

func sortCheckpoints(checkpoints []models.Checkpoint) {
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].TakenAt.Before(checkpoints[j].TakenAt)
	})
}

func (rp *Persistence) AppendDecision(ctx context.Context, sessionID string, decision models.HitlDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	if err = rp.client.RPush(ctx, decisionsKey(sessionID), data).Err(); err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	return nil
}

func (rp *Persistence) Decisions(ctx context.Context, sessionID string) ([]models.HitlDecision, error) {
	entries, err := rp.client.LRange(ctx, decisionsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewStoreError("Decisions", sessionID, err)
	}

	decisions := make([]models.HitlDecision, 0, len(entries))

	for _, entry := range entries {
		var decision models.HitlDecision

		if err = json.Unmarshal([]byte(entry), &decision); err != nil {
			return nil, persistence.NewStoreError("Decisions", sessionID, err)
		}

		decisions = append(decisions, decision)
	}

	return decisions, nil
}
