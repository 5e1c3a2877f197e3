package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kool/internal/domain"
)

// UpsertProfile stores the whole profile as one JSON document.
func (r Repo) UpsertProfile(ctx context.Context, tx *sql.Tx, p domain.ArtistProfile) error {
	if p.UpdatedAt == "" {
		p.UpdatedAt = nowString()
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO profiles(user_id,doc,updated_at) VALUES (?,?,?)
ON CONFLICT(user_id) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at`, p.UserID, string(doc), p.UpdatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, userID string) (domain.ArtistProfile, error) {
	var doc, updated string
	err := r.DB.QueryRowContext(ctx, `SELECT doc,updated_at FROM profiles WHERE user_id=?`, userID).Scan(&doc, &updated)
	if err == sql.ErrNoRows {
		return domain.ArtistProfile{}, ErrNotFound
	}
	if err != nil {
		return domain.ArtistProfile{}, err
	}
	var p domain.ArtistProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return domain.ArtistProfile{}, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	p.UserID = userID
	p.UpdatedAt = updated
	return p, nil
}
