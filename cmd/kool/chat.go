package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"kool/internal/app"
	"kool/internal/engine"
)

func chatCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat <agent-id>",
		Short: "Chat with an agent as --user (interactive unless --message is set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if _, _, err := rt.Engine.EnsureUser(ctx, user, ""); err != nil {
					return err
				}
				if message != "" {
					return sendChat(ctx, rt.Engine, user, args[0], message)
				}
				return chatLoop(ctx, rt.Engine, user, args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}

func chatLoop(ctx context.Context, e engine.Engine, user, agentID string) error {
	agent, err := e.Agents.Get(agentID)
	if err != nil {
		return err
	}
	rl, err := readline.New("You> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("Chatting with %s (%s)\n", agent.Name, agent.Topic)
	if agent.Paid {
		fmt.Printf("Each message costs %d credits.\n", agent.Cost)
	}
	fmt.Println("Type exit to quit, /history for recent messages, /balance for credits")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == "exit":
			return nil
		case input == "/history":
			msgs, err := e.ChatHistory(ctx, user, agentID, 10)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.Role, m.Content)
			}
			continue
		case input == "/balance":
			bal, err := e.Balance(ctx, user)
			if err != nil {
				return err
			}
			fmt.Printf("Balance: %d\n", bal)
			continue
		}
		if err := sendChat(ctx, e, user, agentID, input); err != nil {
			var insufficient engine.InsufficientCreditsError
			if errors.As(err, &insufficient) || errors.Is(err, engine.ErrAgentUnavailable) {
				fmt.Println("!", err)
				continue
			}
			return err
		}
	}
}

func sendChat(ctx context.Context, e engine.Engine, user, agentID, message string) error {
	res, err := e.Chat(ctx, user, agentID, message)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s>\n%s\n\n", res.Agent.Name, res.Reply.Content)
	if res.Charged > 0 {
		fmt.Printf("(-%d credits, balance %d)\n", res.Charged, res.Balance)
	}
	return nil
}
