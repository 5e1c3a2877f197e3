package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kool/internal/app"
	"kool/internal/domain"
	"kool/internal/repo"
	"kool/internal/strategy"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	var name string
	create := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create a user and grant the starting balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				u, err := rt.Engine.CreateUser(ctx, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Created user %s\n", u.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				users, err := rt.Engine.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.DisplayName, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for --user (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				plain, key, err := rt.Engine.CreateAPIKey(ctx, user, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": plain, "api_key": key})
				}
				fmt.Printf("API key %s created; store it now, it is not shown again:\n%s\n", key.ID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Engine.ListAPIKeys(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key of --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.RevokeAPIKey(ctx, user, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Manage the artist profile"}
	var file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Store a profile from a YAML or JSON file for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			p, err := readProfile(file)
			if err != nil {
				return err
			}
			p.UserID = user
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if _, _, err := rt.Engine.EnsureUser(ctx, user, ""); err != nil {
					return err
				}
				saved, err := rt.Engine.SaveProfile(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(saved)
				}
				fmt.Printf("Saved profile for %s (%s)\n", saved.ArtistName, saved.UserID)
				return nil
			})
		},
	}
	imp.Flags().StringVarP(&file, "file", "f", "", "profile file (.yml, .yaml or .json)")
	_ = imp.MarkFlagRequired("file")
	cmd.AddCommand(imp)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the profile of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.GetProfile(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Field", "Value"})
				tw.AppendRows([]table.Row{
					{"Artist", p.ArtistName},
					{"Genre", p.Genre},
					{"City", p.City},
					{"Language", p.Language},
					{"Instagram", p.Socials.InstagramFollowers},
					{"TikTok", p.Socials.TikTokFollowers},
					{"YouTube", p.Socials.YouTubeSubscribers},
					{"Spotify listeners", p.Socials.SpotifyMonthlyListeners},
					{"Upcoming releases", len(p.Discography.UpcomingReleases)},
					{"Shows last year", p.Live.ShowsLastYear},
					{"Budget per release", p.Financials.BudgetPerRelease},
					{"Updated", p.UpdatedAt},
				})
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

// readProfile decodes a profile file by extension; anything that is not
// .json is read as YAML.
func readProfile(path string) (domain.ArtistProfile, error) {
	var p domain.ArtistProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &p)
	} else {
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

func strategyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "strategy", Short: "Generate and inspect strategies"}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a new strategy for --user, replacing the stored one",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.GenerateStrategy(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				renderCalendar(s)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored calendar of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rec, err := rt.Engine.GetStrategy(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Printf("Window %s .. %s (model %s)\n", rec.WindowStart, rec.WindowEnd, rec.Model)
				renderCalendar(rec.Strategy)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Totals per channel, goal and month",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				sum, err := rt.Engine.StrategySummary(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("%d events, %dh effort, budget %s, %d optional\n",
					sum.Events, sum.EffortHours, sum.Budget.StringFixed(2), sum.Optional)
				tw := newTable()
				tw.AppendHeader(table.Row{"Group", "Key", "Events", "Effort (h)", "Budget"})
				tw.AppendRows(summaryRows("channel", sum.ByChannel))
				tw.AppendSeparator()
				tw.AppendRows(summaryRows("goal", sum.ByGoal))
				tw.AppendSeparator()
				tw.AppendRows(summaryRows("month", sum.ByMonth))
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tasks",
		Short: "Show the task tracker of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rec, err := rt.Engine.GetStrategy(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec.Strategy.TaskTracker)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Owner", "Depends on"})
				for _, t := range rec.Strategy.TaskTracker {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Owner, strings.Join(t.Dependencies, ",")})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func summaryRows(group string, buckets []strategy.Bucket) []table.Row {
	rows := make([]table.Row, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, table.Row{group, b.Key, b.Events, b.EffortHours, b.Budget.StringFixed(2)})
	}
	return rows
}

func renderCalendar(s domain.Strategy) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Date", "ID", "Title", "Channel", "Goal", "Effort (h)", "Budget", "Status"})
	for i, ev := range s.Calendar {
		status := ""
		if i < len(s.TaskTracker) {
			status = string(s.TaskTracker[i].Status)
		}
		title := ev.Title
		if ev.IsOptional != nil && *ev.IsOptional {
			title += " (optional)"
		}
		tw.AppendRow(table.Row{ev.Date, ev.ID, title, ev.Channel, ev.Goal, ev.EffortHours, fmt.Sprintf("%.2f", ev.Budget), status})
	}
	tw.Render()
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Update tracker tasks"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-status <task-id> <pending|in-progress|done>",
		Short: "Move a task of --user to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.UpdateTaskStatus(ctx, user, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s %s -> %s\n", t.ID, t.Title, t.Status)
				return nil
			})
		},
	})
	return cmd
}

func creditsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "credits", Short: "Inspect and add credits"}
	var limit int
	balance := &cobra.Command{
		Use:   "balance",
		Short: "Show balance and recent transactions of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ov, err := rt.Engine.Credits(ctx, user, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"balance": ov.Balance, "transactions": ov.Transactions})
				}
				fmt.Printf("Balance: %d\n", ov.Balance)
				tw := newTable()
				tw.AppendHeader(table.Row{"When", "Type", "Amount", "Reason", "Ref"})
				for _, t := range ov.Transactions {
					tw.AppendRow(table.Row{t.CreatedAt, t.Type, t.Type.Sign() * t.Amount, t.Reason, t.Ref})
				}
				tw.Render()
				return nil
			})
		},
	}
	balance.Flags().IntVar(&limit, "limit", 20, "transactions to show")
	cmd.AddCommand(balance)

	var reason string
	grant := &cobra.Command{
		Use:   "grant <amount>",
		Short: "Grant free credits to --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addCredits(cmd.Context(), args[0], func(ctx context.Context, rt *app.Runtime, user string, amount int) (int, error) {
				return rt.Engine.Grant(ctx, user, amount, reason)
			})
		},
	}
	grant.Flags().StringVar(&reason, "reason", "grant", "ledger reason")
	cmd.AddCommand(grant)

	var ref string
	purchase := &cobra.Command{
		Use:   "purchase <amount>",
		Short: "Record purchased credits for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addCredits(cmd.Context(), args[0], func(ctx context.Context, rt *app.Runtime, user string, amount int) (int, error) {
				return rt.Engine.Purchase(ctx, user, amount, ref)
			})
		},
	}
	purchase.Flags().StringVar(&ref, "ref", "", "payment reference")
	cmd.AddCommand(purchase)
	return cmd
}

func addCredits(ctx context.Context, rawAmount string, fn func(context.Context, *app.Runtime, string, int) (int, error)) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	var amount int
	if _, err := fmt.Sscan(rawAmount, &amount); err != nil {
		return fmt.Errorf("amount %q: %w", rawAmount, domain.ErrInvalid)
	}
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		bal, err := fn(ctx, rt, user, amount)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(map[string]int{"balance": bal})
		}
		fmt.Printf("Balance: %d\n", bal)
		return nil
	})
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agent", Short: "Chat agents"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				list := rt.Engine.ListAgents()
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Topic", "Cost"})
				for _, a := range list {
					cost := "free"
					if a.Paid {
						cost = fmt.Sprintf("%d credits", a.Cost)
					}
					tw.AppendRow(table.Row{a.ID, a.Name, a.Topic, cost})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(chatCmd())
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Audit log"}
	var limit int
	var evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events (all users unless --user is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				evts, err := rt.Engine.Repo.LatestEvents(ctx, limit, repo.EventFilter{
					UserID: strings.TrimSpace(viper.GetString("user")),
					Type:   evtType,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "User", "Entity", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.UserID, strings.Trim(e.EntityKind+":"+e.EntityID, ":"), e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "only events of this type")
	cmd.AddCommand(tail)
	return cmd
}
