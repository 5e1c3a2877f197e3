package engine

import (
	"context"
	"errors"
	"testing"

	"kool/internal/config"
	"kool/internal/db"
	"kool/internal/domain"
	"kool/internal/logging"
	"kool/internal/migrate"
	"kool/internal/repo"
	"kool/internal/strategy"
)

func TestStrategyStoreRefusesMisalignedRecord(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn, config.Default(), nil)
	e.Logger = logging.Discard()
	if _, err := e.CreateUser(ctx, "u1", ""); err != nil {
		t.Fatalf("create user: %v", err)
	}
	store := strategyStore{e: e}

	bad := domain.StrategyRecord{
		UserID: "u1", WindowStart: "2026-10-19", WindowEnd: "2027-01-19", UpdatedAt: "2026-10-19T09:00:00Z",
		Strategy: domain.Strategy{
			Calendar:    []domain.CalendarEvent{{ID: "e1", Date: "2026-10-20", Title: "Teaser"}},
			TaskTracker: []domain.TaskTrackerEntry{{ID: "e2", Title: "Teaser", Status: domain.TaskPending}},
		},
	}
	if err := store.SaveStrategy(ctx, bad); !errors.Is(err, strategy.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if _, err := e.Repo.GetStrategy(ctx, "u1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("misaligned record was stored: %v", err)
	}

	good := bad
	good.Strategy.TaskTracker = []domain.TaskTrackerEntry{{ID: "e1", Title: "Teaser", Status: domain.TaskPending, Owner: domain.DefaultOwner}}
	if err := store.SaveStrategy(ctx, good); err != nil {
		t.Fatalf("save aligned record: %v", err)
	}
	if _, err := e.Repo.GetStrategy(ctx, "u1"); err != nil {
		t.Fatalf("aligned record missing: %v", err)
	}
}
