package repo

import (
	"context"
	"database/sql"
	"errors"

	"kool/internal/domain"
)

func (r Repo) InsertCreditTransaction(ctx context.Context, tx *sql.Tx, t domain.CreditTransaction) error {
	if t.ID == "" || t.UserID == "" {
		return errors.New("id and user_id required")
	}
	if t.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if t.CreatedAt == "" {
		t.CreatedAt = nowString()
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO credit_transactions(id,user_id,type,amount,reason,ref,created_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.UserID, string(t.Type), t.Amount, t.Reason, t.Ref, t.CreatedAt)
	return err
}

// CreditBalance is the signed sum of the user's transactions.
func (r Repo) CreditBalance(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var bal int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COALESCE(SUM(CASE WHEN type='spend' THEN -amount ELSE amount END),0)
FROM credit_transactions WHERE user_id=?`, userID).Scan(&bal)
	return bal, err
}

// ListCreditTransactions returns the newest transactions first.
func (r Repo) ListCreditTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,type,amount,reason,ref,created_at FROM credit_transactions
WHERE user_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.Reason, &t.Ref, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = domain.TransactionType(typ)
		res = append(res, t)
	}
	return res, rows.Err()
}
