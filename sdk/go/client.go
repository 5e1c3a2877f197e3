package koolsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Kool HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. The timeout leaves room for a
// full strategy generation.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 150 * time.Second,
	}
}

type CalendarEvent struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Channel     string  `json:"channel"`
	EffortHours int     `json:"effort_hours"`
	Goal        string  `json:"goal"`
	Budget      float64 `json:"budget"`
	IsOptional  *bool   `json:"is_optional,omitempty"`
}

type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Owner        string   `json:"owner"`
	Dependencies []string `json:"dependencies"`
}

// Strategy is the generated plan; Calendar[i] and TaskTracker[i] describe
// the same item.
type Strategy struct {
	Calendar    []CalendarEvent `json:"calendar"`
	TaskTracker []Task          `json:"task_tracker"`
}

// StrategyRecord is the stored strategy with its planning window.
type StrategyRecord struct {
	UserID      string   `json:"user_id"`
	Strategy    Strategy `json:"strategy"`
	Model       string   `json:"model"`
	WindowStart string   `json:"window_start"`
	WindowEnd   string   `json:"window_end"`
	UpdatedAt   string   `json:"updated_at"`
}

// Profile is the onboarding payload. Nested sections are passed through as-is.
type Profile struct {
	ArtistName  string         `json:"artist_name"`
	Genre       string         `json:"genre,omitempty"`
	City        string         `json:"city,omitempty"`
	Language    string         `json:"language"`
	Goals       string         `json:"goals,omitempty"`
	Socials     map[string]int `json:"socials,omitempty"`
	Discography map[string]any `json:"discography,omitempty"`
	Live        map[string]any `json:"live,omitempty"`
	Financials  map[string]int `json:"financials,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`
}

type Transaction struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    int    `json:"amount"`
	Reason    string `json:"reason"`
	Ref       string `json:"ref"`
	CreatedAt string `json:"created_at"`
}

type Credits struct {
	Balance      int           `json:"balance"`
	Transactions []Transaction `json:"transactions"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type ChatReply struct {
	Agent   string      `json:"agent"`
	Message ChatMessage `json:"message"`
	Reply   ChatMessage `json:"reply"`
	Charged int         `json:"charged"`
	Balance int         `json:"balance"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// GenerateStrategy asks the server for a fresh strategy, replacing the stored one.
func (c *Client) GenerateStrategy(ctx context.Context) (Strategy, error) {
	var resp struct {
		Success  bool     `json:"success"`
		Strategy Strategy `json:"strategy"`
	}
	err := c.do(ctx, http.MethodPost, "v0/strategy/generate", nil, &resp)
	return resp.Strategy, err
}

func (c *Client) GetStrategy(ctx context.Context) (StrategyRecord, error) {
	var resp StrategyRecord
	err := c.do(ctx, http.MethodGet, "v0/strategy", nil, &resp)
	return resp, err
}

// UpdateTask moves a tracker task to status.
func (c *Client) UpdateTask(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/strategy/tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "v0/profile", nil, &resp)
	return resp, err
}

func (c *Client) SaveProfile(ctx context.Context, p Profile) (Profile, error) {
	p.UpdatedAt = ""
	var resp Profile
	err := c.do(ctx, http.MethodPut, "v0/profile", p, &resp)
	return resp, err
}

func (c *Client) Credits(ctx context.Context) (Credits, error) {
	var resp Credits
	err := c.do(ctx, http.MethodGet, "v0/credits", nil, &resp)
	return resp, err
}

// Purchase records bought credits and returns the new balance.
func (c *Client) Purchase(ctx context.Context, amount int, ref string) (int, error) {
	var resp struct {
		Balance int `json:"balance"`
	}
	err := c.do(ctx, http.MethodPost, "v0/credits/purchase", map[string]any{"amount": amount, "ref": ref}, &resp)
	return resp.Balance, err
}

// Chat sends message to agentID.
func (c *Client) Chat(ctx context.Context, agentID, message string) (ChatReply, error) {
	var resp ChatReply
	endpoint := fmt.Sprintf("v0/agents/%s/chat", url.PathEscape(agentID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"message": message}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(b, &payload) == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Error
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
