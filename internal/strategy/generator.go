package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kool/internal/domain"
	"kool/internal/llm"
)

// ProfileReader loads the onboarding profile. Implementations return an error
// matching ErrProfileNotFound when the user has none.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (domain.ArtistProfile, error)
}

// Store persists a generated strategy, replacing any previous one.
type Store interface {
	SaveStrategy(ctx context.Context, rec domain.StrategyRecord) error
}

// Generator runs the strategy generation use case. It holds no per-call
// state, so one value may serve concurrent calls.
type Generator struct {
	Profiles        ProfileReader
	Store           Store
	LLM             llm.Client
	Model           string
	// Temperature nil means llm.DefaultTemperature; an explicit 0 is sent as 0.
	Temperature     *float64
	MaxTokens       int
	ResponseTimeout time.Duration
	Now             func() time.Time
	Logger          *slog.Logger
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Generate builds prompts from the user's profile, asks the model for a plan,
// validates it and persists it. Either a persisted strategy is returned or an
// error and nothing is written. Nothing is retried.
func (g Generator) Generate(ctx context.Context, userID string) (domain.Strategy, error) {
	log := g.logger().With("user_id", userID)

	profile, err := g.Profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return domain.Strategy{}, ErrProfileNotFound
		}
		return domain.Strategy{}, fmt.Errorf("load profile: %w", err)
	}

	window := NewDateWindow(g.now())
	prompts, err := BuildPrompts(profile, window)
	if err != nil {
		return domain.Strategy{}, err
	}
	log.Debug("strategy prompts built", "window_start", window.StartDate(), "window_end", window.EndDate(),
		"system_prompt", prompts.System, "user_prompt", prompts.User)

	text, model, err := g.complete(ctx, prompts)
	if err != nil {
		log.Warn("strategy completion failed", "error", err)
		return domain.Strategy{}, &GenerationFailedError{Cause: err}
	}

	strat, err := ParseStrategy(ExtractPayload(text), ParseOptions{Window: &window, Raw: text})
	if err != nil {
		var mre *MalformedResponseError
		if errors.As(err, &mre) {
			log.Warn("strategy response is not json", "excerpt", mre.Excerpt)
		} else {
			log.Warn("strategy response rejected", "error", err)
		}
		return domain.Strategy{}, err
	}

	rec := domain.StrategyRecord{
		UserID:      userID,
		Strategy:    strat,
		Model:       model,
		WindowStart: window.StartDate(),
		WindowEnd:   window.EndDate(),
		UpdatedAt:   g.now().UTC().Format(time.RFC3339),
	}
	if err := g.Store.SaveStrategy(ctx, rec); err != nil {
		log.Error("strategy persistence failed", "error", err)
		return domain.Strategy{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	log.Info("strategy generated", "events", len(strat.Calendar), "model", model)
	return strat, nil
}

func (g Generator) complete(ctx context.Context, prompts Prompts) (string, string, error) {
	if g.LLM == nil {
		return "", "", errors.New("completion client not configured")
	}
	timeout := g.ResponseTimeout
	if timeout <= 0 {
		timeout = llm.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temp := llm.DefaultTemperature
	if g.Temperature != nil {
		temp = *g.Temperature
	}
	maxTok := g.MaxTokens
	if maxTok <= 0 {
		maxTok = llm.DefaultMaxTokens
	}
	resp, err := g.LLM.Complete(ctx, llm.CompletionRequest{
		Purpose:      "strategy",
		SystemPrompt: prompts.System,
		UserPrompt:   prompts.User,
		Model:        g.Model,
		Temperature:  &temp,
		MaxTokens:    &maxTok,
	})
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", "", llm.ErrEmptyChoices
	}
	return resp.Text, resp.Model, nil
}
