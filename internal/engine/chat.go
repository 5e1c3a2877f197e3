package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kool/internal/agents"
	"kool/internal/domain"
	"kool/internal/events"
	"kool/internal/llm"
	"kool/internal/repo"
)

const (
	// chatHistoryTurns is how many prior exchanges (one user message plus
	// its reply) are folded into an agent prompt.
	chatHistoryTurns = 10
	maxChatMessage   = 4000
)

// ErrAgentUnavailable wraps a failed agent completion. Any charge has been refunded.
var ErrAgentUnavailable = errors.New("agent unavailable")

// ChatResult is one completed exchange.
type ChatResult struct {
	Agent   domain.Agent
	Message domain.ChatMessage
	Reply   domain.ChatMessage
	Charged int
	Balance int
}

func (e Engine) ListAgents() []domain.Agent {
	return e.Agents.List()
}

// Chat sends message to an agent. Paid agents debit their cost up front and
// refund it if the completion fails.
func (e Engine) Chat(ctx context.Context, userID, agentID, message string) (ChatResult, error) {
	agent, err := e.Agents.Get(agentID)
	if err != nil {
		return ChatResult{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResult{}, fmt.Errorf("%w: message required", domain.ErrInvalid)
	}
	if len(message) > maxChatMessage {
		return ChatResult{}, fmt.Errorf("%w: message longer than %d bytes", domain.ErrInvalid, maxChatMessage)
	}
	if e.LLM == nil {
		return ChatResult{}, fmt.Errorf("%w: completion client not configured", ErrAgentUnavailable)
	}

	res := ChatResult{Agent: agent}
	ref := uuid.NewString()
	if agent.Paid && agent.Cost > 0 {
		err := e.withTx(ctx, func(tx *sql.Tx) error {
			bal, err := e.spend(ctx, tx, userID, agent.Cost, "agent:"+agent.ID, ref)
			res.Balance = bal
			return err
		})
		if err != nil {
			return res, err
		}
		res.Charged = agent.Cost
		e.publish(userID, events.CreditsChanged, "", 0, map[string]any{"balance": res.Balance})
	} else {
		if res.Balance, err = e.Repo.CreditBalance(ctx, nil, userID); err != nil {
			return res, err
		}
	}

	reply, err := e.completeChat(ctx, userID, agent, message)
	if err != nil {
		e.logger().Warn("agent chat failed", "user_id", userID, "agent", agent.ID, "error", err)
		if res.Charged > 0 {
			if refundErr := e.refund(context.WithoutCancel(ctx), userID, res.Charged, agent.ID, ref, &res); refundErr != nil {
				return res, errors.Join(fmt.Errorf("%w: %w", ErrAgentUnavailable, err), refundErr)
			}
		}
		return res, fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
	}

	now := e.stamp()
	res.Message = domain.ChatMessage{ID: uuid.NewString(), UserID: userID, AgentID: agent.ID, Role: "user", Content: message, CreatedAt: now}
	res.Reply = domain.ChatMessage{ID: uuid.NewString(), UserID: userID, AgentID: agent.ID, Role: "assistant", Content: reply, CreatedAt: now}
	var eventID int64
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertChatMessage(ctx, tx, res.Message); err != nil {
			return err
		}
		if err := e.Repo.InsertChatMessage(ctx, tx, res.Reply); err != nil {
			return err
		}
		var err error
		eventID, err = e.Events.Append(ctx, tx, events.Entry{
			Type: events.AgentChatted, UserID: userID, EntityKind: "agent", EntityID: agent.ID,
			Payload: events.EventPayload{"charged": res.Charged},
		})
		return err
	})
	if err != nil {
		return res, err
	}
	e.publish(userID, events.AgentChatted, agent.ID, eventID, nil)
	return res, nil
}

func (e Engine) completeChat(ctx context.Context, userID string, agent domain.Agent, message string) (string, error) {
	var profile *domain.ArtistProfile
	p, err := e.Repo.GetProfile(ctx, userID)
	switch {
	case err == nil:
		profile = &p
	case !errors.Is(err, repo.ErrNotFound):
		return "", err
	}
	system, err := agents.BuildSystemPrompt(agent, profile)
	if err != nil {
		return "", err
	}
	history, err := e.Repo.ListChatMessages(ctx, userID, agent.ID, 2*chatHistoryTurns)
	if err != nil {
		return "", err
	}
	cfg := e.config()
	resp, err := e.LLM.Complete(ctx, llm.CompletionRequest{
		Purpose:      "agent:" + agent.ID,
		SystemPrompt: system,
		UserPrompt:   agents.BuildUserPrompt(history, message),
		Model:        cfg.LLM.Model,
		Temperature:  &cfg.LLM.Temperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", llm.ErrEmptyChoices
	}
	return text, nil
}

func (e Engine) refund(ctx context.Context, userID string, amount int, agentID, ref string, res *ChatResult) error {
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		bal, err := e.appendCredit(ctx, tx, domain.CreditTransaction{UserID: userID, Type: domain.TxRefund, Amount: amount, Reason: "agent:" + agentID, Ref: ref})
		res.Balance = bal
		return err
	})
	if err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	res.Charged = 0
	e.publish(userID, events.CreditsChanged, "", 0, map[string]any{"balance": res.Balance})
	return nil
}

func (e Engine) ChatHistory(ctx context.Context, userID, agentID string, limit int) ([]domain.ChatMessage, error) {
	if _, err := e.Agents.Get(agentID); err != nil {
		return nil, err
	}
	return e.Repo.ListChatMessages(ctx, userID, agentID, limit)
}

// RecentEvents returns the user's audit log, newest first.
func (e Engine) RecentEvents(ctx context.Context, userID string, limit int, evtType string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, repo.EventFilter{UserID: userID, Type: evtType})
}
