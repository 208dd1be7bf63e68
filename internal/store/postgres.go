package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AtsumiFlex/Aura-sub002/internal/config"
	"github.com/AtsumiFlex/Aura-sub002/internal/session"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS gateway_sessions (
	instance_id  TEXT        NOT NULL,
	shard_id     INTEGER     NOT NULL,
	shard_count  INTEGER     NOT NULL,
	session_id   TEXT        NOT NULL,
	resume_url   TEXT        NOT NULL DEFAULT '',
	sequence     BIGINT      NOT NULL DEFAULT 0,
	has_sequence BOOLEAN     NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (instance_id, shard_id)
)`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig, appName string) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg, appName)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// PostgresStore keeps snapshots in the gateway_sessions table, scoped to
// one instance ID so several processes can share a database.
type PostgresStore struct {
	db         *pgxpool.Pool
	instanceID string
	logger     *slog.Logger
}

// NewPostgresStore creates a store on an existing pool.
func NewPostgresStore(db *pgxpool.Pool, instanceID string, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:         db,
		instanceID: instanceID,
		logger:     logger.With("component", "session_store"),
	}
}

// EnsureSchema creates the sessions table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create gateway_sessions: %w", err)
	}
	return nil
}

// Load implements SessionStore.
func (s *PostgresStore) Load(ctx context.Context, shardID, shardCount int) (session.Snapshot, bool, error) {
	var (
		snap  session.Snapshot
		count int
	)
	err := s.db.QueryRow(ctx, `
		SELECT shard_count, session_id, resume_url, sequence, has_sequence
		FROM gateway_sessions
		WHERE instance_id = $1 AND shard_id = $2`,
		s.instanceID, shardID,
	).Scan(&count, &snap.SessionID, &snap.ResumeURL, &snap.Sequence, &snap.HasSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("load session for shard %d: %w", shardID, err)
	}

	if count != shardCount {
		s.logger.Info("ignoring session saved under different shard count",
			"shard", shardID,
			"saved_count", count,
			"shard_count", shardCount,
		)
		return session.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Save implements SessionStore.
func (s *PostgresStore) Save(ctx context.Context, shardID, shardCount int, snap session.Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO gateway_sessions
			(instance_id, shard_id, shard_count, session_id, resume_url, sequence, has_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (instance_id, shard_id) DO UPDATE SET
			shard_count  = EXCLUDED.shard_count,
			session_id   = EXCLUDED.session_id,
			resume_url   = EXCLUDED.resume_url,
			sequence     = EXCLUDED.sequence,
			has_sequence = EXCLUDED.has_sequence,
			updated_at   = EXCLUDED.updated_at`,
		s.instanceID, shardID, shardCount, snap.SessionID, snap.ResumeURL, snap.Sequence, snap.HasSeq,
	)
	if err != nil {
		return fmt.Errorf("save session for shard %d: %w", shardID, err)
	}
	return nil
}

// Delete implements SessionStore.
func (s *PostgresStore) Delete(ctx context.Context, shardID int) error {
	_, err := s.db.Exec(ctx, `DELETE FROM gateway_sessions WHERE instance_id = $1 AND shard_id = $2`,
		s.instanceID, shardID)
	if err != nil {
		return fmt.Errorf("delete session for shard %d: %w", shardID, err)
	}
	return nil
}
