package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the audit log.
const (
	StrategyGenerated = "strategy.generated"
	TaskStatusChanged = "task.status_changed"
	ProfileUpdated    = "profile.updated"
	CreditsChanged    = "credits.changed"
	AgentChatted      = "agent.chatted"
	UserCreated       = "user.created"
	APIKeyCreated     = "apikey.created"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Entry is one audit event to append.
type Entry struct {
	Type       string
	UserID     string
	EntityKind string
	EntityID   string
	Payload    EventPayload
}

// Append writes e inside tx and returns its id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if e.Payload == nil {
		e.Payload = EventPayload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, e.Type, e.UserID, e.EntityKind, nullable(e.EntityID), string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
