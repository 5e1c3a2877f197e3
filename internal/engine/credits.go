package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"kool/internal/domain"
	"kool/internal/events"
)

// MaxPurchase caps a single purchase.
const MaxPurchase = 10000

// InsufficientCreditsError is returned when a paid action costs more than the balance.
type InsufficientCreditsError struct {
	Balance  int
	Required int
}

func (e InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d", e.Balance, e.Required)
}

// appendCredit writes a ledger entry plus its audit event and returns the new balance.
func (e Engine) appendCredit(ctx context.Context, tx *sql.Tx, t domain.CreditTransaction) (int, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = e.stamp()
	}
	if err := e.Repo.InsertCreditTransaction(ctx, tx, t); err != nil {
		return 0, fmt.Errorf("insert credit transaction: %w", err)
	}
	bal, err := e.Repo.CreditBalance(ctx, tx, t.UserID)
	if err != nil {
		return 0, err
	}
	_, err = e.Events.Append(ctx, tx, events.Entry{
		Type: events.CreditsChanged, UserID: t.UserID, EntityKind: "credit_transaction", EntityID: t.ID,
		Payload: events.EventPayload{"type": t.Type, "amount": t.Amount, "balance": bal, "reason": t.Reason},
	})
	return bal, err
}

func (e Engine) Balance(ctx context.Context, userID string) (int, error) {
	return e.Repo.CreditBalance(ctx, nil, userID)
}

// CreditsOverview is the balance plus the most recent transactions.
type CreditsOverview struct {
	Balance      int
	Transactions []domain.CreditTransaction
}

func (e Engine) Credits(ctx context.Context, userID string, limit int) (CreditsOverview, error) {
	bal, err := e.Repo.CreditBalance(ctx, nil, userID)
	if err != nil {
		return CreditsOverview{}, err
	}
	txs, err := e.Repo.ListCreditTransactions(ctx, userID, limit)
	if err != nil {
		return CreditsOverview{}, err
	}
	return CreditsOverview{Balance: bal, Transactions: txs}, nil
}

func (e Engine) addCredits(ctx context.Context, userID string, typ domain.TransactionType, amount int, reason, ref string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", domain.ErrInvalid)
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	var bal int
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		bal, err = e.appendCredit(ctx, tx, domain.CreditTransaction{UserID: userID, Type: typ, Amount: amount, Reason: reason, Ref: ref})
		return err
	})
	if err != nil {
		return 0, err
	}
	e.publish(userID, events.CreditsChanged, "", 0, map[string]any{"balance": bal})
	return bal, nil
}

// Purchase records bought credits. Payment is settled upstream; ref carries
// the payment reference.
func (e Engine) Purchase(ctx context.Context, userID string, amount int, ref string) (int, error) {
	if amount > MaxPurchase {
		return 0, fmt.Errorf("%w: amount must be at most %d", domain.ErrInvalid, MaxPurchase)
	}
	return e.addCredits(ctx, userID, domain.TxPurchase, amount, "purchase", ref)
}

// Grant adds free credits, e.g. from the CLI.
func (e Engine) Grant(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if reason == "" {
		reason = "grant"
	}
	return e.addCredits(ctx, userID, domain.TxGrant, amount, reason, "")
}

// spend debits cost inside tx or fails with InsufficientCreditsError.
func (e Engine) spend(ctx context.Context, tx *sql.Tx, userID string, cost int, reason, ref string) (int, error) {
	bal, err := e.Repo.CreditBalance(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if bal < cost {
		return bal, InsufficientCreditsError{Balance: bal, Required: cost}
	}
	return e.appendCredit(ctx, tx, domain.CreditTransaction{UserID: userID, Type: domain.TxSpend, Amount: cost, Reason: reason, Ref: ref})
}
