package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the persistence operations used by the bot.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveRender inserts a render log entry and sets its ID and CreatedAt.
	SaveRender(ctx context.Context, record *RenderRecord) error

	// GetRenderStats aggregates renders created at or after since.
	GetRenderStats(ctx context.Context, since time.Time) (*RenderStats, error)

	// PruneRenders deletes renders created before the cutoff and returns how many were removed.
	PruneRenders(ctx context.Context, before time.Time) (int64, error)

	// SavePlayer inserts or replaces the snapshot for a player tag.
	SavePlayer(ctx context.Context, player *PlayerSnapshot) error

	// GetPlayer returns the snapshot for tag, or nil, nil if none is stored.
	GetPlayer(ctx context.Context, tag string) (*PlayerSnapshot, error)

	// CountPlayers returns the number of cached player snapshots.
	CountPlayers(ctx context.Context) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// dbTime normalises timestamps so stored values compare correctly as text.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveRender(ctx context.Context, record *RenderRecord) error {
	if record == nil {
		return errors.New("cannot save nil render record")
	}
	if record.Kind == "" {
		return errors.New("render record must have a kind")
	}
	if record.Bytes < 0 || record.DurationMS < 0 {
		return fmt.Errorf("render record has negative size or duration (%d bytes, %d ms)", record.Bytes, record.DurationMS)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = dbTime(record.CreatedAt)

	query := `
		INSERT INTO renders (
			created_at, chat_id, user_id, kind, font_family,
			text_length, width, height, lines, bytes, duration_ms
		) VALUES (
			:created_at, :chat_id, :user_id, :kind, :font_family,
			:text_length, :width, :height, :lines, :bytes, :duration_ms
		)
	`
	result, err := s.db.NamedExecContext(ctx, query, record)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving render record",
			"chat_id", record.ChatID, "kind", record.Kind, "error", err)
		return fmt.Errorf("failed to save render record (chat %d): %w", record.ChatID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving render", "error", err)
	}

	s.logger.DebugContext(ctx, "Render record saved",
		"id", record.ID, "chat_id", record.ChatID, "kind", record.Kind, "bytes", record.Bytes)
	return nil
}

func (s *sqlxStore) GetRenderStats(ctx context.Context, since time.Time) (*RenderStats, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var stats RenderStats
	query := `
		SELECT
			COUNT(*)                       AS count,
			COALESCE(SUM(bytes), 0)        AS total_bytes,
			COALESCE(AVG(duration_ms), 0.0) AS avg_duration_ms
		FROM renders
		WHERE created_at >= ?
	`
	if err := s.db.GetContext(ctx, &stats, query, dbTime(since)); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error aggregating render stats", "since", since, "error", err)
		return nil, fmt.Errorf("failed to get render stats: %w", err)
	}
	return &stats, nil
}

func (s *sqlxStore) PruneRenders(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, errors.New("prune cutoff must not be zero")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM renders WHERE created_at < ?`, dbTime(before))
	if err != nil {
		if isContextErr(err) {
			return 0, err
		}
		s.logger.ErrorContext(ctx, "Error pruning render records", "before", before, "error", err)
		return 0, fmt.Errorf("failed to prune renders: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get pruned row count: %w", err)
	}
	s.logger.DebugContext(ctx, "Pruned render records", "before", before, "deleted", deleted)
	return deleted, nil
}

func (s *sqlxStore) SavePlayer(ctx context.Context, player *PlayerSnapshot) error {
	if player == nil {
		return errors.New("cannot save nil player snapshot")
	}
	if player.Tag == "" {
		return errors.New("player snapshot must have a tag")
	}
	if player.Data == "" {
		return errors.New("player snapshot must have data")
	}

	now := dbTime(time.Now())
	if player.FetchedAt.IsZero() {
		player.FetchedAt = now
	}
	player.FetchedAt = dbTime(player.FetchedAt)
	player.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving player", "tag", player.Tag, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	// Keep the original created_at across refreshes.
	var createdAt time.Time
	err = tx.GetContext(ctx, &createdAt, `SELECT created_at FROM players WHERE tag = ?`, player.Tag)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt = now
	case err != nil:
		s.logger.ErrorContext(ctx, "Error checking existing player", "tag", player.Tag, "error", err)
		return fmt.Errorf("failed to look up player %s: %w", player.Tag, err)
	}
	player.CreatedAt = createdAt

	query := `
		INSERT INTO players (
			tag, name, trophies, highest_trophies, data, fetched_at, created_at, updated_at
		) VALUES (
			:tag, :name, :trophies, :highest_trophies, :data, :fetched_at, :created_at, :updated_at
		)
		ON CONFLICT(tag) DO UPDATE SET
			name = excluded.name,
			trophies = excluded.trophies,
			highest_trophies = excluded.highest_trophies,
			data = excluded.data,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
	`
	if _, err := tx.NamedExecContext(ctx, query, player); err != nil {
		s.logger.ErrorContext(ctx, "Error saving player snapshot", "tag", player.Tag, "error", err)
		return fmt.Errorf("failed to save player %s: %w", player.Tag, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "tag", player.Tag, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Player snapshot saved", "tag", player.Tag, "trophies", player.Trophies)
	return nil
}

func (s *sqlxStore) GetPlayer(ctx context.Context, tag string) (*PlayerSnapshot, error) {
	if tag == "" {
		return nil, errors.New("tag cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var player PlayerSnapshot
	query := `SELECT tag, name, trophies, highest_trophies, data, fetched_at, created_at, updated_at
	          FROM players WHERE tag = ?`
	err := s.db.GetContext(ctx, &player, query, tag)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No cached player snapshot", "tag", tag)
		return nil, nil
	case isContextErr(err):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching player", "tag", tag, "error", err)
		return nil, err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting player snapshot", "tag", tag, "error", err)
		return nil, fmt.Errorf("failed to get player %s: %w", tag, err)
	}
	return &player, nil
}

func (s *sqlxStore) CountPlayers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM players`); err != nil {
		if isContextErr(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return n, nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	start := time.Now()
	s.logger.InfoContext(ctx, "Starting database maintenance")

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.WarnContext(ctx, "ANALYZE failed", "error", err)
	}

	// VACUUM must run outside a transaction.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case isContextErr(err):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(start))
	return nil
}
