package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kool/internal/domain"
	"kool/internal/events"
	"kool/internal/repo"
	"kool/internal/strategy"
)

// profileReader adapts the repo to strategy.ProfileReader.
type profileReader struct {
	repo repo.Repo
}

func (p profileReader) GetProfile(ctx context.Context, userID string) (domain.ArtistProfile, error) {
	prof, err := p.repo.GetProfile(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ArtistProfile{}, fmt.Errorf("user %s: %w", userID, strategy.ErrProfileNotFound)
	}
	return prof, err
}

// strategyStore writes the record and its audit event in one transaction and
// notifies open streams after commit. Records that break calendar/tracker
// alignment are refused.
type strategyStore struct {
	e Engine
}

func (s strategyStore) SaveStrategy(ctx context.Context, rec domain.StrategyRecord) error {
	if err := strategy.Validate(rec.Strategy, nil); err != nil {
		return err
	}
	var eventID int64
	err := s.e.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.e.Repo.UpsertStrategy(ctx, tx, rec); err != nil {
			return err
		}
		var err error
		eventID, err = s.e.Events.Append(ctx, tx, events.Entry{
			Type:       events.StrategyGenerated,
			UserID:     rec.UserID,
			EntityKind: "strategy",
			EntityID:   rec.UserID,
			Payload: events.EventPayload{
				"events":       len(rec.Strategy.Calendar),
				"model":        rec.Model,
				"window_start": rec.WindowStart,
				"window_end":   rec.WindowEnd,
			},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.e.publish(rec.UserID, events.StrategyGenerated, rec.UserID, eventID, map[string]any{"events": len(rec.Strategy.Calendar)})
	return nil
}

func (e Engine) generator() strategy.Generator {
	cfg := e.config()
	model := cfg.Strategy.Model
	if model == "" {
		model = cfg.LLM.Model
	}
	temp := cfg.Strategy.Temperature
	return strategy.Generator{
		Profiles:        profileReader{repo: e.Repo},
		Store:           strategyStore{e: e},
		LLM:             e.LLM,
		Model:           model,
		Temperature:     &temp,
		MaxTokens:       cfg.Strategy.MaxTokens,
		ResponseTimeout: cfg.StrategyTimeout(),
		Now:             e.now,
		Logger:          e.logger(),
	}
}

// GenerateStrategy produces and persists a fresh strategy for userID,
// replacing any previous one.
func (e Engine) GenerateStrategy(ctx context.Context, userID string) (domain.Strategy, error) {
	return e.generator().Generate(ctx, userID)
}

func (e Engine) GetStrategy(ctx context.Context, userID string) (domain.StrategyRecord, error) {
	return e.Repo.GetStrategy(ctx, userID)
}

func (e Engine) StrategySummary(ctx context.Context, userID string) (strategy.Summary, error) {
	rec, err := e.Repo.GetStrategy(ctx, userID)
	if err != nil {
		return strategy.Summary{}, err
	}
	return strategy.Summarize(rec.Strategy), nil
}

// UpdateTaskStatus moves one tracker entry to status.
func (e Engine) UpdateTaskStatus(ctx context.Context, userID, taskID, status string) (domain.TaskTrackerEntry, error) {
	if !domain.ValidTaskStatus(status) {
		return domain.TaskTrackerEntry{}, fmt.Errorf("%w: status %q must be one of pending, in-progress, done", domain.ErrInvalid, status)
	}
	var (
		entry   domain.TaskTrackerEntry
		eventID int64
	)
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		before, err := e.Repo.GetStrategyTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		var from domain.TaskStatus
		for _, t := range before.Strategy.TaskTracker {
			if t.ID == taskID {
				from = t.Status
			}
		}
		entry, err = e.Repo.UpdateTaskStatus(ctx, tx, userID, taskID, domain.TaskStatus(status))
		if err != nil {
			return err
		}
		eventID, err = e.Events.Append(ctx, tx, events.Entry{
			Type: events.TaskStatusChanged, UserID: userID, EntityKind: "task", EntityID: taskID,
			Payload: events.EventPayload{"from": from, "to": entry.Status, "at": e.now().UTC().Format(time.RFC3339)},
		})
		return err
	})
	if err != nil {
		return domain.TaskTrackerEntry{}, err
	}
	e.publish(userID, events.TaskStatusChanged, taskID, eventID, map[string]any{"status": entry.Status})
	return entry, nil
}
