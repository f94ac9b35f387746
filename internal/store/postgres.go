// internal/store/postgres.go
package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"repo-browser/internal/apperrors"
	"repo-browser/internal/model"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a Postgres store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

func (p *Postgres) CountRepositories(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM repositories`).Scan(&count)
	if err != nil {
		return 0, &apperrors.StoreError{Op: "CountRepositories", Err: err}
	}
	return count, nil
}

func (p *Postgres) ListRepositories(ctx context.Context, page, perPage int) ([]model.Repository, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, language, star_count, updated_at
		 FROM repositories
		 ORDER BY name ASC
		 LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, &apperrors.StoreError{Op: "ListRepositories", Err: err}
	}
	defer rows.Close()

	repos := make([]model.Repository, 0, perPage)
	for rows.Next() {
		var r model.Repository
		if err := rows.Scan(&r.ID, &r.Name, &r.Language, &r.StarCount, &r.UpdatedAt); err != nil {
			return nil, &apperrors.StoreError{Op: "ListRepositories", Err: err}
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.StoreError{Op: "ListRepositories", Err: err}
	}
	return repos, nil
}

func (p *Postgres) UpsertBatch(ctx context.Context, repos []model.Repository) error {
	if len(repos) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &apperrors.StoreError{Op: "UpsertBatch", Err: err}
	}
	defer tx.Rollback(ctx) // no-op once committed

	batch := &pgx.Batch{}
	for _, r := range repos {
		batch.Queue(
			`INSERT INTO repositories (name, language, star_count, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO UPDATE SET
			   language = EXCLUDED.language,
			   star_count = EXCLUDED.star_count,
			   updated_at = EXCLUDED.updated_at`,
			r.Name, r.Language, r.StarCount, r.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for range repos {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return &apperrors.StoreError{Op: "UpsertBatch", Err: err}
		}
	}
	if err := results.Close(); err != nil {
		return &apperrors.StoreError{Op: "UpsertBatch", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &apperrors.StoreError{Op: "UpsertBatch", Err: err}
	}
	return nil
}

func (p *Postgres) ReadSyncState(ctx context.Context) (SyncState, error) {
	var value int16
	err := p.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE id = 1`).Scan(&value)
	if err != nil {
		return StateNeverSynced, &apperrors.StoreError{Op: "ReadSyncState", Err: err}
	}
	return SyncState(value), nil
}

func (p *Postgres) SetSyncState(ctx context.Context, state SyncState) error {
	// The singleton row is seeded by migration; a plain UPDATE replaces the
	// value atomically with no window where the row is absent.
	_, err := p.pool.Exec(ctx, `UPDATE sync_state SET value = $1 WHERE id = 1`, int16(state))
	if err != nil {
		return &apperrors.StoreError{Op: "SetSyncState", Err: err}
	}
	return nil
}

func (p *Postgres) BeginSync(ctx context.Context) (SyncState, bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return StateNeverSynced, false, &apperrors.StoreError{Op: "BeginSync", Err: err}
	}
	defer tx.Rollback(ctx)

	// Row lock makes the check-then-set atomic across processes sharing the
	// same database, not just across goroutines.
	var value int16
	if err := tx.QueryRow(ctx, `SELECT value FROM sync_state WHERE id = 1 FOR UPDATE`).Scan(&value); err != nil {
		return StateNeverSynced, false, &apperrors.StoreError{Op: "BeginSync", Err: err}
	}
	prev := SyncState(value)
	if prev == StateRunning {
		return prev, false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE sync_state SET value = $1 WHERE id = 1`, int16(StateRunning)); err != nil {
		return prev, false, &apperrors.StoreError{Op: "BeginSync", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return prev, false, &apperrors.StoreError{Op: "BeginSync", Err: err}
	}

	p.logger.Debug("Acquired sync flag", "previous_state", prev.String())
	return prev, true, nil
}
