// Package auth issues and resolves the credentials accepted by the API.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kool/internal/domain"
	"kool/internal/repo"
)

// KeyPrefix marks plaintext API keys so they are recognisable in configs and logs.
const KeyPrefix = "kool_"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidToken    = errors.New("invalid token")
	ErrNoSecret        = errors.New("jwt secret not configured")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Source string
}

// Service provides credential helpers backed by SQL.
type Service struct {
	Repo      repo.Repo
	JWTSecret string
	TokenTTL  time.Duration
	Now       func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GenerateKey returns a random plaintext API key.
func GenerateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// IssueAPIKey creates a key for userID and returns the plaintext once; only
// its hash is stored.
func (s Service) IssueAPIKey(ctx context.Context, tx *sql.Tx, userID, name string) (string, domain.APIKey, error) {
	if strings.TrimSpace(userID) == "" {
		return "", domain.APIKey{}, errors.New("user_id required")
	}
	plain, err := GenerateKey()
	if err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

// ResolveAPIKey maps a plaintext key to its owner.
func (s Service) ResolveAPIKey(ctx context.Context, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, ErrUnauthenticated
	}
	apiKey, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	return Principal{UserID: apiKey.UserID, Source: "api_key"}, nil
}

// SignToken mints an HS256 token whose subject is userID.
func (s Service) SignToken(userID string) (string, time.Time, error) {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return "", time.Time{}, ErrNoSecret
	}
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "kool",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken validates an HS256 token and returns its subject.
func (s Service) ParseToken(token string) (Principal, error) {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return Principal{}, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: subject claim required", ErrInvalidToken)
	}
	return Principal{UserID: claims.Subject, Source: "jwt"}, nil
}
