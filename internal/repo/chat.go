package repo

import (
	"context"
	"database/sql"

	"kool/internal/domain"
)

func (r Repo) InsertChatMessage(ctx context.Context, tx *sql.Tx, m domain.ChatMessage) error {
	if m.CreatedAt == "" {
		m.CreatedAt = nowString()
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO chat_messages(id,user_id,agent_id,role,content,created_at) VALUES (?,?,?,?,?,?)`,
		m.ID, m.UserID, m.AgentID, m.Role, m.Content, m.CreatedAt)
	return err
}

// ListChatMessages returns the last limit messages of a thread, oldest first.
func (r Repo) ListChatMessages(ctx context.Context, userID, agentID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,agent_id,role,content,created_at FROM (
	SELECT rowid AS seq,id,user_id,agent_id,role,content,created_at FROM chat_messages WHERE user_id=? AND agent_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?
) ORDER BY created_at ASC, seq ASC`, userID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.AgentID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
