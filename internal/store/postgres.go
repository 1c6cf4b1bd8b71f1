package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"prreview/internal/codec"
	"prreview/internal/model"
)

// Postgres keeps one row per job in review_jobs. The status columns and
// the result column are written by separate statements, so each stays an
// atomic single-row write.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres wraps a shared *sql.DB opened with the pgx driver.
func NewPostgres(database *sql.DB) *Postgres {
	return &Postgres{DB: database}
}

const upsertStatusSQL = `
INSERT INTO review_jobs (id, state, reason)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET state = EXCLUDED.state, reason = EXCLUDED.reason, updated_at = now()
WHERE review_jobs.state IS NULL OR review_jobs.state NOT IN ('completed', 'failed')`

func (p *Postgres) SetStatus(ctx context.Context, id string, status model.Status) error {
	if !status.State.Valid() {
		_, err := codec.EncodeStatus(status)
		return wrap("set status", err)
	}

	res, err := p.DB.ExecContext(ctx, upsertStatusSQL, id, string(status.State), status.Reason)
	if err != nil {
		return wrap("set status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("set status", err)
	}
	if n == 0 {
		return ErrTerminal
	}
	return nil
}

func (p *Postgres) GetStatus(ctx context.Context, id string) (model.Status, error) {
	var state sql.NullString
	var reason string
	err := p.DB.QueryRowContext(ctx, `SELECT state, reason FROM review_jobs WHERE id = $1`, id).Scan(&state, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Status{}, ErrNotFound
	}
	if err != nil {
		return model.Status{}, wrap("get status", err)
	}
	if !state.Valid {
		return model.Status{}, ErrNotFound
	}

	s := model.Status{State: model.State(state.String), Reason: reason}
	if !s.State.Valid() {
		return model.Status{}, wrap("get status", errors.New("unknown state "+state.String))
	}
	return s, nil
}

func (p *Postgres) SetResult(ctx context.Context, id string, result model.Result) error {
	data, err := codec.EncodeResult(result)
	if err != nil {
		return wrap("set result", err)
	}

	_, err = p.DB.ExecContext(ctx, `
INSERT INTO review_jobs (id, result)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET result = EXCLUDED.result, updated_at = now()`,
		id, pqtype.NullRawMessage{RawMessage: data, Valid: true})
	return wrap("set result", err)
}

func (p *Postgres) GetResult(ctx context.Context, id string) (model.Result, error) {
	var raw pqtype.NullRawMessage
	err := p.DB.QueryRowContext(ctx, `SELECT result FROM review_jobs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Result{}, ErrNotFound
	}
	if err != nil {
		return model.Result{}, wrap("get result", err)
	}
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return model.Result{}, ErrNotFound
	}

	res, err := codec.DecodeResult(raw.RawMessage)
	return res, wrap("get result", err)
}

// DeleteExpired removes jobs last written before cutoff.
func (p *Postgres) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM review_jobs WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, wrap("delete expired", err)
	}
	n, err := res.RowsAffected()
	return n, wrap("delete expired", err)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}
