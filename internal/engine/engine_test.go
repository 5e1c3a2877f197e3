package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"kool/internal/config"
	"kool/internal/db"
	"kool/internal/domain"
	"kool/internal/engine"
	"kool/internal/events"
	"kool/internal/llm"
	"kool/internal/llm/llmtest"
	"kool/internal/logging"
	"kool/internal/migrate"
	"kool/internal/repo"
	"kool/internal/strategy"
)

var testNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, client llm.Client) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), client)
	eng.Now = func() time.Time { return testNow }
	eng.Logger = logging.Discard()
	if _, err := eng.CreateUser(ctx, "u1", "Luna"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func seedProfile(t *testing.T, env testEnv) {
	t.Helper()
	_, err := env.Engine.SaveProfile(env.Ctx, domain.ArtistProfile{
		UserID: "u1", ArtistName: "Luna Vega", Genre: "indie pop", City: "Lisbon", Language: "PT",
	})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
}

func validPlan() string {
	return `{"calendar":[
{"id":"e1","date":"2026-10-21","title":"Teaser reel","description":"15s hook","channel":"IG/TikTok","effort_hours":2,"goal":"engagement","budget":0},
{"id":"e2","date":"2026-11-02","title":"Fan newsletter","description":"tour dates","channel":"Email","effort_hours":1,"goal":"data-driven","budget":0}
],"task_tracker":[
{"id":"e1","title":"Teaser reel","status":"pending","owner":"artist","dependencies":[]},
{"id":"e2","title":"Fan newsletter","status":"pending","owner":"artist","dependencies":["e1"]}
]}`
}

func countStrategies(t *testing.T, env testEnv) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM strategies`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestEnsureUserGrantsStartingBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	bal, err := env.Engine.Balance(env.Ctx, "u1")
	if err != nil || bal != 10 {
		t.Fatalf("expected welcome balance 10, got %d (%v)", bal, err)
	}
	_, created, err := env.Engine.EnsureUser(env.Ctx, "u1", "")
	if err != nil || created {
		t.Fatalf("second ensure should be a no-op: created=%v err=%v", created, err)
	}
	if bal, _ := env.Engine.Balance(env.Ctx, "u1"); bal != 10 {
		t.Fatalf("balance changed on second ensure: %d", bal)
	}
	if _, err := env.Engine.CreateUser(env.Ctx, "u1", ""); err == nil {
		t.Fatalf("expected duplicate user error")
	}
}

func TestSaveProfileValidates(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.SaveProfile(env.Ctx, domain.ArtistProfile{UserID: "u1", ArtistName: "X", Language: "portuguese"})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	_, err = env.Engine.SaveProfile(env.Ctx, domain.ArtistProfile{UserID: "ghost", ArtistName: "X", Language: "en"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown user, got %v", err)
	}
	seedProfile(t, env)
	p, err := env.Engine.GetProfile(env.Ctx, "u1")
	if err != nil || p.Language != "pt" {
		t.Fatalf("expected normalized language, got %+v (%v)", p, err)
	}
}

func TestGenerateStrategyPersistsOnce(t *testing.T) {
	stub := llmtest.Text("```json\n" + validPlan() + "\n```")
	env := newTestEnv(t, stub)
	seedProfile(t, env)

	sub, unsub := env.Engine.Hub.Subscribe("u1")
	defer unsub()

	s, err := env.Engine.GenerateStrategy(env.Ctx, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(s.Calendar) != 2 || len(s.TaskTracker) != 2 {
		t.Fatalf("unexpected strategy %+v", s)
	}
	if n := countStrategies(t, env); n != 1 {
		t.Fatalf("expected one stored strategy, got %d", n)
	}
	rec, err := env.Engine.GetStrategy(env.Ctx, "u1")
	if err != nil || rec.WindowStart != "2026-10-19" || rec.WindowEnd != "2027-01-19" {
		t.Fatalf("stored record: %+v (%v)", rec, err)
	}
	evts, err := env.Engine.RecentEvents(env.Ctx, "u1", 10, events.StrategyGenerated)
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected strategy.generated event, got %d (%v)", len(evts), err)
	}
	select {
	case n := <-sub:
		if n.Type != events.StrategyGenerated {
			t.Fatalf("unexpected notification %+v", n)
		}
	default:
		t.Fatalf("no realtime notification")
	}

	if _, err := env.Engine.GenerateStrategy(env.Ctx, "u1"); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if n := countStrategies(t, env); n != 1 {
		t.Fatalf("regeneration should replace, got %d rows", n)
	}
}

func TestGenerateStrategyUpstreamFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()
	client := llm.NewOpenAIClient(llm.Config{BaseURL: srv.URL, APIKey: "sk-test-secret"}, nil)
	env := newTestEnv(t, client)
	seedProfile(t, env)

	_, err := env.Engine.GenerateStrategy(env.Ctx, "u1")
	if !errors.Is(err, strategy.ErrGenerationFailed) {
		t.Fatalf("expected generation failed, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-test-secret") {
		t.Fatalf("error leaks api key: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", hits)
	}
	if n := countStrategies(t, env); n != 0 {
		t.Fatalf("nothing should be stored, got %d", n)
	}
}

func TestGenerateStrategyEndToEndOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "=== ARTIST PROFILE ===") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content, _ := json.Marshal("Sure!\n```json\n" + validPlan() + "\n```")
		fmt.Fprintf(w, `{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":%s}}]}`, content)
	}))
	defer srv.Close()
	env := newTestEnv(t, llm.NewOpenAIClient(llm.Config{BaseURL: srv.URL}, nil))
	seedProfile(t, env)

	s, err := env.Engine.GenerateStrategy(env.Ctx, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if s.TaskTracker[1].Dependencies[0] != "e1" {
		t.Fatalf("unexpected tracker %+v", s.TaskTracker)
	}
	if n := countStrategies(t, env); n != 1 {
		t.Fatalf("expected one upsert, got %d", n)
	}
}

func TestGenerateStrategyEmptyCompletionFails(t *testing.T) {
	for _, body := range []string{
		`{"choices":[{"message":{"role":"assistant","content":""}}]}`,
		`{"choices":[{}]}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		env := newTestEnv(t, llm.NewOpenAIClient(llm.Config{BaseURL: srv.URL}, nil))
		seedProfile(t, env)

		_, err := env.Engine.GenerateStrategy(env.Ctx, "u1")
		srv.Close()
		if !errors.Is(err, strategy.ErrGenerationFailed) || !errors.Is(err, llm.ErrEmptyChoices) {
			t.Fatalf("%s: expected generation failed, got %v", body, err)
		}
		if code := strategy.Code(err); code != "generation_failed" {
			t.Fatalf("%s: expected generation_failed, got %s", body, code)
		}
		if n := countStrategies(t, env); n != 0 {
			t.Fatalf("%s: nothing should be stored, got %d", body, n)
		}
	}
}

func TestGenerateStrategyHonoursZeroTemperature(t *testing.T) {
	stub := llmtest.Text(validPlan())
	env := newTestEnv(t, stub)
	seedProfile(t, env)
	env.Engine.Config.Strategy.Temperature = 0

	if _, err := env.Engine.GenerateStrategy(env.Ctx, "u1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	call := stub.Calls()[0]
	if call.Temperature == nil || *call.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", call.Temperature)
	}
}

func TestGenerateStrategyErrors(t *testing.T) {
	env := newTestEnv(t, llmtest.Text(validPlan()))
	if _, err := env.Engine.GenerateStrategy(env.Ctx, "u1"); !errors.Is(err, strategy.ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}

	bad := newTestEnv(t, llmtest.Text(`{"calendar":[{"id":"1","date":"2026-10-20"}],"task_tracker":[]}`))
	seedProfile(t, bad)
	if _, err := bad.Engine.GenerateStrategy(bad.Ctx, "u1"); !errors.Is(err, strategy.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if n := countStrategies(t, bad); n != 0 {
		t.Fatalf("nothing should be stored, got %d", n)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	env := newTestEnv(t, llmtest.Text(validPlan()))
	seedProfile(t, env)
	if _, err := env.Engine.GenerateStrategy(env.Ctx, "u1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	entry, err := env.Engine.UpdateTaskStatus(env.Ctx, "u1", "e2", "in-progress")
	if err != nil || entry.Status != domain.TaskInProgress {
		t.Fatalf("update: %+v (%v)", entry, err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, "u1", "e2", "blocked"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, "u1", "e9", "done"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	sum, err := env.Engine.StrategySummary(env.Ctx, "u1")
	if err != nil || sum.TaskStatus[domain.TaskInProgress] != 1 || sum.TaskStatus[domain.TaskPending] != 1 {
		t.Fatalf("summary: %+v (%v)", sum.TaskStatus, err)
	}
}

func TestCredits(t *testing.T) {
	env := newTestEnv(t, nil)
	bal, err := env.Engine.Purchase(env.Ctx, "u1", 25, "pay_123")
	if err != nil || bal != 35 {
		t.Fatalf("purchase: %d (%v)", bal, err)
	}
	if _, err := env.Engine.Purchase(env.Ctx, "u1", 0, ""); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := env.Engine.Purchase(env.Ctx, "u1", engine.MaxPurchase+1, ""); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected cap, got %v", err)
	}
	if _, err := env.Engine.Grant(env.Ctx, "ghost", 5, ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown user, got %v", err)
	}
	ov, err := env.Engine.Credits(env.Ctx, "u1", 10)
	if err != nil || ov.Balance != 35 || len(ov.Transactions) != 2 {
		t.Fatalf("overview: %+v (%v)", ov, err)
	}
}

func TestChatPaidAgentDebits(t *testing.T) {
	stub := llmtest.Text("Pitch at least a week before release.")
	env := newTestEnv(t, stub)
	seedProfile(t, env)

	res, err := env.Engine.Chat(env.Ctx, "u1", "spotify", "When should I pitch?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Charged != 1 || res.Balance != 9 || res.Reply.Role != "assistant" {
		t.Fatalf("unexpected result %+v", res)
	}
	call := stub.Calls()[0]
	if !strings.Contains(call.SystemPrompt, "Luna Vega") || call.UserPrompt != "When should I pitch?" {
		t.Fatalf("unexpected prompts %+v", call)
	}

	if _, err := env.Engine.Chat(env.Ctx, "u1", "spotify", "And canvas?"); err != nil {
		t.Fatalf("second chat: %v", err)
	}
	if !strings.Contains(stub.Calls()[1].UserPrompt, "You: Pitch at least a week before release.") {
		t.Fatalf("history not folded in: %q", stub.Calls()[1].UserPrompt)
	}
	hist, err := env.Engine.ChatHistory(env.Ctx, "u1", "spotify", 10)
	if err != nil || len(hist) != 4 {
		t.Fatalf("history: %d (%v)", len(hist), err)
	}
}

func TestChatHistoryKeepsTenTurns(t *testing.T) {
	stub := llmtest.Text("noted")
	env := newTestEnv(t, stub)
	for i := 1; i <= 12; i++ {
		if _, err := env.Engine.Chat(env.Ctx, "u1", "social", fmt.Sprintf("question %02d", i)); err != nil {
			t.Fatalf("chat %d: %v", i, err)
		}
	}
	if _, err := env.Engine.Chat(env.Ctx, "u1", "social", "question 13"); err != nil {
		t.Fatalf("chat 13: %v", err)
	}
	calls := stub.Calls()
	prompt := calls[len(calls)-1].UserPrompt
	for i := 3; i <= 12; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("Artist: question %02d\n", i)) {
			t.Fatalf("turn %d missing from prompt:\n%s", i, prompt)
		}
	}
	for _, old := range []string{"question 01", "question 02"} {
		if strings.Contains(prompt, old) {
			t.Fatalf("%s should have aged out:\n%s", old, prompt)
		}
	}
	if n := strings.Count(prompt, "You: noted\n"); n != 10 {
		t.Fatalf("expected 10 replies in history, got %d", n)
	}
}

func TestChatFreeAgentAndErrors(t *testing.T) {
	env := newTestEnv(t, llmtest.Text("Post three times a week."))
	res, err := env.Engine.Chat(env.Ctx, "u1", "social", "cadence?")
	if err != nil || res.Charged != 0 || res.Balance != 10 {
		t.Fatalf("free chat: %+v (%v)", res, err)
	}
	if _, err := env.Engine.Chat(env.Ctx, "u1", "social", "   "); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid message, got %v", err)
	}
	if _, err := env.Engine.Chat(env.Ctx, "u1", "nope", "hi"); err == nil {
		t.Fatalf("expected unknown agent")
	}
}

func TestChatInsufficientCredits(t *testing.T) {
	env := newTestEnv(t, llmtest.Text("ok"))
	for i := 0; i < 5; i++ {
		if _, err := env.Engine.Chat(env.Ctx, "u1", "publishing", "question"); err != nil {
			t.Fatalf("chat %d: %v", i, err)
		}
	}
	_, err := env.Engine.Chat(env.Ctx, "u1", "publishing", "one more")
	var ice engine.InsufficientCreditsError
	if !errors.As(err, &ice) || ice.Balance != 0 || ice.Required != 2 {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
}

func TestChatRefundsOnFailure(t *testing.T) {
	env := newTestEnv(t, llmtest.Failing(llm.ErrUnavailable))
	_, err := env.Engine.Chat(env.Ctx, "u1", "live", "how much for tickets?")
	if !errors.Is(err, engine.ErrAgentUnavailable) || !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected agent unavailable, got %v", err)
	}
	if bal, _ := env.Engine.Balance(env.Ctx, "u1"); bal != 10 {
		t.Fatalf("expected refund to restore balance, got %d", bal)
	}
	ov, _ := env.Engine.Credits(env.Ctx, "u1", 10)
	if len(ov.Transactions) != 3 {
		t.Fatalf("expected grant, spend, refund; got %+v", ov.Transactions)
	}
	hist, _ := env.Engine.ChatHistory(env.Ctx, "u1", "live", 10)
	if len(hist) != 0 {
		t.Fatalf("failed exchange should not be stored")
	}
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t, nil)
	plain, key, err := env.Engine.CreateAPIKey(env.Ctx, "u1", "ci")
	if err != nil || plain == "" || key.UserID != "u1" {
		t.Fatalf("create key: %v", err)
	}
	p, err := env.Engine.Auth.ResolveAPIKey(env.Ctx, plain)
	if err != nil || p.UserID != "u1" {
		t.Fatalf("resolve: %+v (%v)", p, err)
	}
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, "ghost", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown user, got %v", err)
	}
}
