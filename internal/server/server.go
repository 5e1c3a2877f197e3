package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"kool/internal/agents"
	"kool/internal/domain"
	"kool/internal/engine"
	"kool/internal/engine/auth"
	"kool/internal/repo"
	"kool/internal/strategy"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

// AuthConfig toggles credential paths that are unsafe outside development.
type AuthConfig struct {
	DevLogin bool
}

type bodyBytesKey struct{}

// apiError is the error body every endpoint returns.
type apiError struct {
	status  int
	Message string         `json:"error" example:"artist profile not found"`
	Code    string         `json:"code" example:"profile_not_found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// routes carries the dependencies shared by every handler.
type routes struct {
	e      engine.Engine
	log    *slog.Logger
	auth   AuthConfig
	flight singleflight.Group
}

// New returns an HTTP handler exposing the Kool API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		return nil, errors.New("base path must not be /")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine, log))
	hcfg := huma.DefaultConfig("Kool API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	rt := &routes{e: cfg.Engine, log: log, auth: cfg.Auth}
	registerDocs(router, basePath)
	registerHealth(group)
	rt.registerStrategy(group)
	rt.registerProfile(group)
	rt.registerCredits(group)
	rt.registerAgents(group)
	rt.registerEvents(group)
	rt.registerStream(group)
	rt.registerAPIKeys(group)
	rt.registerMe(group)
	rt.registerDevAuth(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status:  status,
		Message: message,
		Code:    code,
		Details: details,
	}
}

// handleError maps engine errors to responses. Internal causes are logged,
// never returned.
func (rt *routes) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if code := strategy.Code(err); code != "internal_error" {
		return rt.strategyError(ctx, code, err)
	}
	var insufficient engine.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		return newAPIError(http.StatusPaymentRequired, "insufficient_credits", "not enough credits",
			map[string]any{"balance": insufficient.Balance, "required": insufficient.Required})
	case errors.Is(err, agents.ErrUnknownAgent):
		return newAPIError(http.StatusNotFound, "agent_not_found", "agent not found", nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, domain.ErrInvalid):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrAgentUnavailable):
		rt.log.WarnContext(ctx, "agent unavailable", "error", err)
		return newAPIError(http.StatusBadGateway, "agent_unavailable", "agent is unavailable, any charge was refunded", nil)
	case errors.Is(err, auth.ErrNoSecret):
		rt.log.ErrorContext(ctx, "token signing unavailable", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	default:
		rt.log.ErrorContext(ctx, "request failed", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func (rt *routes) strategyError(ctx context.Context, code string, err error) huma.StatusError {
	switch code {
	case "profile_not_found":
		return newAPIError(http.StatusNotFound, code, "artist profile not found", nil)
	case "contract_violation":
		var cv *strategy.ContractViolationError
		var details map[string]any
		if errors.As(err, &cv) {
			details = map[string]any{"problems": cv.Problems}
		}
		return newAPIError(http.StatusInternalServerError, code, "strategy generation failed", details)
	default:
		rt.log.ErrorContext(ctx, "strategy request failed", "code", code, "error", err)
		return newAPIError(http.StatusInternalServerError, code, "strategy generation failed", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusPaymentRequired:
		return "insufficient_credits"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Kool API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (rt *routes) registerStrategy(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-strategy",
		Method:      http.MethodPost,
		Path:        "/strategy/generate",
		Summary:     "Generate a three-month growth strategy",
		Description: "Builds a plan from the stored artist profile, replacing any previous strategy. " +
			"Concurrent requests for the same user share one generation.",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body GenerateStrategyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// The shared call must outlive any single caller disconnecting.
		v, err, shared := rt.flight.Do(userID, func() (any, error) {
			return rt.e.GenerateStrategy(context.WithoutCancel(ctx), userID)
		})
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		if shared {
			rt.log.DebugContext(ctx, "strategy generation shared", "user_id", userID)
		}
		return &struct {
			Body GenerateStrategyResponse `json:"body"`
		}{Body: GenerateStrategyResponse{Success: true, Strategy: v.(domain.Strategy)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-strategy",
		Method:      http.MethodGet,
		Path:        "/strategy",
		Summary:     "Current strategy",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.StrategyRecord `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := rt.e.GetStrategy(ctx, userID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body domain.StrategyRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-strategy-summary",
		Method:      http.MethodGet,
		Path:        "/strategy/summary",
		Summary:     "Strategy totals per channel, goal and month",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StrategySummaryResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := rt.e.StrategySummary(ctx, userID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body StrategySummaryResponse `json:"body"`
		}{Body: summaryResponse(sum)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/strategy/tasks/{task_id}",
		Summary:     "Move a tracker task to a new status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskTrackerEntry `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := rt.e.UpdateTaskStatus(ctx, userID, input.TaskID, input.Body.Status)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body domain.TaskTrackerEntry `json:"body"`
		}{Body: entry}, nil
	})
}

func (rt *routes) registerProfile(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile",
		Summary:     "Artist profile",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.ArtistProfile `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := rt.e.GetProfile(ctx, userID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body domain.ArtistProfile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-profile",
		Method:      http.MethodPut,
		Path:        "/profile",
		Summary:     "Store the onboarding result",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body ProfileRequest `json:"body"`
	}) (*struct {
		Body domain.ArtistProfile `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := rt.e.SaveProfile(ctx, input.Body.toDomain(userID))
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body domain.ArtistProfile `json:"body"`
		}{Body: p}, nil
	})
}

func (rt *routes) registerCredits(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-credits",
		Method:      http.MethodGet,
		Path:        "/credits",
		Summary:     "Credit balance and recent transactions",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}) (*struct {
		Body CreditsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		overview, err := rt.e.Credits(ctx, userID, input.Limit)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body CreditsResponse `json:"body"`
		}{Body: creditsResponse(overview)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "purchase-credits",
		Method:      http.MethodPost,
		Path:        "/credits/purchase",
		Summary:     "Record purchased credits",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body PurchaseRequest `json:"body"`
	}) (*struct {
		Body BalanceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bal, err := rt.e.Purchase(ctx, userID, input.Body.Amount, input.Body.Ref)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body BalanceResponse `json:"body"`
		}{Body: BalanceResponse{Balance: bal}}, nil
	})
}

func (rt *routes) registerAgents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "Available chat agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AgentsResponse `json:"body"`
	}, error) {
		return &struct {
			Body AgentsResponse `json:"body"`
		}{Body: AgentsResponse{Agents: nonNilSlice(rt.e.ListAgents())}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat-agent",
		Method:      http.MethodPost,
		Path:        "/agents/{agent_id}/chat",
		Summary:     "Send a message to an agent",
		Description: "Paid agents debit their cost before the completion and refund it if the completion fails.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusPaymentRequired,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		AgentID string      `path:"agent_id"`
		Body    ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := rt.e.Chat(ctx, userID, input.AgentID, input.Body.Message)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: chatResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agent-messages",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/messages",
		Summary:     "Chat history with an agent, oldest first",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
		Limit   int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body ChatMessagesResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		msgs, err := rt.e.ChatHistory(ctx, userID, input.AgentID, input.Limit)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body ChatMessagesResponse `json:"body"`
		}{Body: ChatMessagesResponse{Messages: nonNilSlice(msgs)}}, nil
	})
}

func (rt *routes) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type  string `query:"type" example:"strategy.generated"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evts, err := rt.e.RecentEvents(ctx, userID, input.Limit, input.Type)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		out := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Events: out}}, nil
	})
}

func (rt *routes) registerAPIKeys(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plain, key, err := rt.e.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{Key: plain, APIKey: apiKeyResponse(key)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body APIKeysResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := rt.e.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k))
		}
		return &struct {
			Body APIKeysResponse `json:"body"`
		}{Body: APIKeysResponse{APIKeys: out}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := rt.e.RevokeAPIKey(ctx, userID, input.KeyID); err != nil {
			return nil, rt.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func (rt *routes) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		user, err := rt.e.Repo.GetUser(ctx, principal.UserID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		bal, err := rt.e.Balance(ctx, principal.UserID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		res := MeResponse{
			UserID:      user.ID,
			DisplayName: user.DisplayName,
			Source:      principal.Source,
			Balance:     bal,
		}
		if _, err := rt.e.GetProfile(ctx, principal.UserID); err == nil {
			res.HasProfile = true
		}
		if _, err := rt.e.GetStrategy(ctx, principal.UserID); err == nil {
			res.HasStrategy = true
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: res}, nil
	})
}

func (rt *routes) registerDevAuth(api huma.API) {
	if !rt.auth.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		user, _, err := rt.e.EnsureUser(ctx, input.Body.UserID, strings.TrimSpace(input.Body.DisplayName))
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		token, exp, err := rt.e.Auth.SignToken(user.ID)
		if err != nil {
			return nil, rt.handleError(ctx, err)
		}
		rt.log.WarnContext(ctx, "dev login issued token", "user_id", user.ID)
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339), UserID: user.ID}}, nil
	})
}
