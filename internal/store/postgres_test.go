package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"prreview/internal/migrate"
	"prreview/internal/model"
)

// newTestPostgres needs a disposable database in DATABASE_URL.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := migrate.Run(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db)
}

func TestPostgres_TerminalIsFinal(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()
	id := uuid.NewString()

	for _, s := range []model.Status{model.Pending(), model.Processing(), model.Failed("boom")} {
		if err := st.SetStatus(ctx, id, s); err != nil {
			t.Fatalf("SetStatus(%v) error: %v", s, err)
		}
	}
	for _, s := range []model.Status{model.Processing(), model.Completed(), model.Failed("again")} {
		if err := st.SetStatus(ctx, id, s); !errors.Is(err, ErrTerminal) {
			t.Fatalf("SetStatus(%v) on failed job: expected ErrTerminal, got %v", s, err)
		}
	}

	got, err := st.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if got != model.Failed("boom") {
		t.Fatalf("status = %v, want failed(boom)", got)
	}
}

func TestPostgres_ResultBeforeStatus(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()
	id := uuid.NewString()

	// A result row written first has no state yet.
	if err := st.SetResult(ctx, id, sampleResult(id)); err != nil {
		t.Fatalf("SetResult error: %v", err)
	}
	if _, err := st.GetStatus(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a row without state, got %v", err)
	}

	if err := st.SetStatus(ctx, id, model.Completed()); err != nil {
		t.Fatalf("SetStatus(completed) error: %v", err)
	}
	res, err := st.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult error: %v", err)
	}
	if res.JobID != id || res.Summary.TotalIssues != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPostgres_DeleteExpired(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()
	id := uuid.NewString()

	if err := st.SetStatus(ctx, id, model.Pending()); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if _, err := st.DeleteExpired(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if _, err := st.GetStatus(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected swept job to be gone, got %v", err)
	}
}
