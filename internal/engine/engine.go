package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kool/internal/agents"
	"kool/internal/config"
	"kool/internal/domain"
	"kool/internal/engine/auth"
	"kool/internal/events"
	"kool/internal/llm"
	"kool/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Hub    *events.Hub
	Auth   auth.Service
	Agents *agents.Catalog
	Config *config.Config
	LLM    llm.Client
	Now    func() time.Time
	Logger *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, client llm.Client) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Hub:    events.NewHub(),
		Auth:   auth.Service{Repo: r},
		Agents: agents.NewCatalog(cfg.Agents),
		Config: cfg,
		LLM:    client,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// withTx runs fn in a transaction and commits when it returns nil.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) publish(userID, evtType, entityID string, eventID int64, data map[string]any) {
	e.Hub.Publish(events.Notification{
		EventID:  eventID,
		UserID:   userID,
		Type:     evtType,
		EntityID: entityID,
		Data:     data,
	})
}

// EnsureUser creates the user on first sight, granting the starting credit
// balance. It reports whether the user was created.
func (e Engine) EnsureUser(ctx context.Context, userID, displayName string) (domain.User, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, false, fmt.Errorf("%w: user id required", domain.ErrInvalid)
	}
	var (
		user    domain.User
		created bool
	)
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := e.Repo.GetUserTx(ctx, tx, userID)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		user = domain.User{ID: userID, DisplayName: displayName, CreatedAt: e.stamp()}
		if err := e.Repo.InsertUser(ctx, tx, user); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := e.Events.Append(ctx, tx, events.Entry{Type: events.UserCreated, UserID: userID, EntityKind: "user", EntityID: userID}); err != nil {
			return err
		}
		if start := e.config().Credits.StartingBalance; start > 0 {
			if _, err := e.appendCredit(ctx, tx, domain.CreditTransaction{
				UserID: userID, Type: domain.TxGrant, Amount: start, Reason: "welcome",
			}); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	return user, created, err
}

// CreateUser fails when the user already exists.
func (e Engine) CreateUser(ctx context.Context, userID, displayName string) (domain.User, error) {
	u, created, err := e.EnsureUser(ctx, userID, displayName)
	if err != nil {
		return domain.User{}, err
	}
	if !created {
		return domain.User{}, fmt.Errorf("user %s already exists", userID)
	}
	return u, nil
}

// CreateAPIKey issues a key for an existing user and returns the plaintext.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	var (
		plain string
		key   domain.APIKey
	)
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		plain, key, err = e.Auth.IssueAPIKey(ctx, tx, userID, name)
		if err != nil {
			return err
		}
		_, err = e.Events.Append(ctx, tx, events.Entry{Type: events.APIKeyCreated, UserID: userID, EntityKind: "api_key", EntityID: key.ID,
			Payload: events.EventPayload{"name": name}})
		return err
	})
	return plain, key, err
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes one of userID's keys. Keys owned by someone else
// report repo.ErrNotFound.
func (e Engine) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			return e.Repo.DeleteAPIKey(ctx, keyID)
		}
	}
	return repo.ErrNotFound
}

// SaveProfile validates and stores the onboarding result.
func (e Engine) SaveProfile(ctx context.Context, p domain.ArtistProfile) (domain.ArtistProfile, error) {
	if err := p.Validate(); err != nil {
		return domain.ArtistProfile{}, err
	}
	if _, err := e.Repo.GetUser(ctx, p.UserID); err != nil {
		return domain.ArtistProfile{}, err
	}
	p.Language = strings.ToLower(p.Language)
	p.UpdatedAt = e.stamp()
	var eventID int64
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertProfile(ctx, tx, p); err != nil {
			return err
		}
		var err error
		eventID, err = e.Events.Append(ctx, tx, events.Entry{Type: events.ProfileUpdated, UserID: p.UserID, EntityKind: "profile", EntityID: p.UserID,
			Payload: events.EventPayload{"artist_name": p.ArtistName}})
		return err
	})
	if err != nil {
		return domain.ArtistProfile{}, err
	}
	e.publish(p.UserID, events.ProfileUpdated, p.UserID, eventID, nil)
	return p, nil
}

func (e Engine) GetProfile(ctx context.Context, userID string) (domain.ArtistProfile, error) {
	return e.Repo.GetProfile(ctx, userID)
}
