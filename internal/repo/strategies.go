package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kool/internal/domain"
)

// UpsertStrategy replaces the user's whole strategy record.
func (r Repo) UpsertStrategy(ctx context.Context, tx *sql.Tx, rec domain.StrategyRecord) error {
	if rec.UpdatedAt == "" {
		rec.UpdatedAt = nowString()
	}
	doc, err := json.Marshal(rec.Strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO strategies(user_id,doc,model,window_start,window_end,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET doc=excluded.doc, model=excluded.model, window_start=excluded.window_start,
	window_end=excluded.window_end, updated_at=excluded.updated_at`,
		rec.UserID, string(doc), rec.Model, rec.WindowStart, rec.WindowEnd, rec.UpdatedAt)
	return err
}

func (r Repo) GetStrategy(ctx context.Context, userID string) (domain.StrategyRecord, error) {
	return r.GetStrategyTx(ctx, nil, userID)
}

func (r Repo) GetStrategyTx(ctx context.Context, tx *sql.Tx, userID string) (domain.StrategyRecord, error) {
	rec := domain.StrategyRecord{UserID: userID}
	var doc string
	err := r.on(tx).QueryRowContext(ctx, `SELECT doc,model,window_start,window_end,updated_at FROM strategies WHERE user_id=?`, userID).
		Scan(&doc, &rec.Model, &rec.WindowStart, &rec.WindowEnd, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(doc), &rec.Strategy); err != nil {
		return rec, fmt.Errorf("decode strategy %s: %w", userID, err)
	}
	return rec, nil
}

// UpdateTaskStatus rewrites the status of one task_tracker entry in place.
// Calendar entries and the other tasks are left untouched.
func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, userID, taskID string, status domain.TaskStatus) (domain.TaskTrackerEntry, error) {
	rec, err := r.GetStrategyTx(ctx, tx, userID)
	if err != nil {
		return domain.TaskTrackerEntry{}, err
	}
	idx := -1
	for i, t := range rec.Strategy.TaskTracker {
		if t.ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.TaskTrackerEntry{}, ErrNotFound
	}
	rec.Strategy.TaskTracker[idx].Status = status
	doc, err := json.Marshal(rec.Strategy)
	if err != nil {
		return domain.TaskTrackerEntry{}, fmt.Errorf("marshal strategy: %w", err)
	}
	if _, err := r.on(tx).ExecContext(ctx, `UPDATE strategies SET doc=? WHERE user_id=?`, string(doc), userID); err != nil {
		return domain.TaskTrackerEntry{}, err
	}
	return rec.Strategy.TaskTracker[idx], nil
}
