package server

import (
	"encoding/json"

	"kool/internal/domain"
	"kool/internal/engine"
	"kool/internal/strategy"
)

// Request payloads

type ProfileSocialsRequest struct {
	InstagramFollowers      int `json:"instagram_followers,omitempty" minimum:"0"`
	TikTokFollowers         int `json:"tiktok_followers,omitempty" minimum:"0"`
	YouTubeSubscribers      int `json:"youtube_subscribers,omitempty" minimum:"0"`
	SpotifyMonthlyListeners int `json:"spotify_monthly_listeners,omitempty" minimum:"0"`
	NewsletterSubscribers   int `json:"newsletter_subscribers,omitempty" minimum:"0"`
}

type ProfileReleaseRequest struct {
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date,omitempty" format:"date"`
	Type        string `json:"type,omitempty" example:"single"`
}

type ProfileDiscographyRequest struct {
	EPs              int                     `json:"eps,omitempty" minimum:"0"`
	Singles          int                     `json:"singles,omitempty" minimum:"0"`
	UpcomingReleases []ProfileReleaseRequest `json:"upcoming_releases,omitempty"`
	VisualConcept    string                  `json:"visual_concept,omitempty"`
}

type ProfileLiveRequest struct {
	Highlights     []string `json:"highlights,omitempty"`
	ShowsLastYear  int      `json:"shows_last_year,omitempty" minimum:"0"`
	AvgCapacity    int      `json:"avg_capacity,omitempty" minimum:"0"`
	AvgTicketPrice int      `json:"avg_ticket_price,omitempty" minimum:"0"`
}

type ProfileFinancialsRequest struct {
	AnnualExpenses   int `json:"annual_expenses,omitempty" minimum:"0"`
	BudgetPerRelease int `json:"budget_per_release,omitempty" minimum:"0"`
}

type ProfileRequest struct {
	ArtistName  string                     `json:"artist_name" minLength:"1"`
	Genre       string                     `json:"genre,omitempty"`
	City        string                     `json:"city,omitempty"`
	Language    string                     `json:"language" example:"fr"`
	Goals       string                     `json:"goals,omitempty"`
	Socials     *ProfileSocialsRequest     `json:"socials,omitempty"`
	Discography *ProfileDiscographyRequest `json:"discography,omitempty"`
	Live        *ProfileLiveRequest        `json:"live,omitempty"`
	Financials  *ProfileFinancialsRequest  `json:"financials,omitempty"`
}

type UpdateTaskRequest struct {
	Status string `json:"status" enum:"pending,in-progress,done"`
}

type PurchaseRequest struct {
	Amount int    `json:"amount" minimum:"1" maximum:"10000"`
	Ref    string `json:"ref,omitempty" doc:"Payment reference from the checkout provider"`
}

type ChatRequest struct {
	Message string `json:"message" minLength:"1" maxLength:"4000"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID      string `json:"user_id" minLength:"1"`
	DisplayName string `json:"display_name,omitempty"`
}

// Response payloads

type GenerateStrategyResponse struct {
	Success  bool            `json:"success"`
	Strategy domain.Strategy `json:"strategy"`
}

type BucketResponse struct {
	Key         string `json:"key"`
	Events      int    `json:"events"`
	EffortHours int    `json:"effort_hours"`
	Budget      string `json:"budget" example:"125.50"`
}

type StrategySummaryResponse struct {
	Events      int              `json:"events"`
	EffortHours int              `json:"effort_hours"`
	Budget      string           `json:"budget" example:"1250.00"`
	Optional    int              `json:"optional"`
	ByChannel   []BucketResponse `json:"by_channel"`
	ByGoal      []BucketResponse `json:"by_goal"`
	ByMonth     []BucketResponse `json:"by_month"`
	TaskStatus  map[string]int   `json:"task_status"`
}

type CreditsResponse struct {
	Balance      int                        `json:"balance"`
	Transactions []domain.CreditTransaction `json:"transactions"`
}

type BalanceResponse struct {
	Balance int `json:"balance"`
}

type AgentsResponse struct {
	Agents []domain.Agent `json:"agents"`
}

type ChatResponse struct {
	Agent   string             `json:"agent"`
	Message domain.ChatMessage `json:"message"`
	Reply   domain.ChatMessage `json:"reply"`
	Charged int                `json:"charged"`
	Balance int                `json:"balance"`
}

type ChatMessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreateAPIKeyResponse struct {
	Key    string         `json:"key" doc:"Plaintext key, shown once"`
	APIKey APIKeyResponse `json:"api_key"`
}

type APIKeysResponse struct {
	APIKeys []APIKeyResponse `json:"api_keys"`
}

type MeResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Source      string `json:"source" enum:"jwt,api_key"`
	Balance     int    `json:"balance"`
	HasProfile  bool   `json:"has_profile"`
	HasStrategy bool   `json:"has_strategy"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
	UserID    string `json:"user_id"`
}

// Conversions

func (r ProfileRequest) toDomain(userID string) domain.ArtistProfile {
	p := domain.ArtistProfile{
		UserID:     userID,
		ArtistName: r.ArtistName,
		Genre:      r.Genre,
		City:       r.City,
		Language:   r.Language,
		Goals:      r.Goals,
		Discography: domain.Discography{
			UpcomingReleases: []domain.Release{},
		},
		Live: domain.LiveHistory{Highlights: []string{}},
	}
	if s := r.Socials; s != nil {
		p.Socials = domain.Socials{
			InstagramFollowers:      s.InstagramFollowers,
			TikTokFollowers:         s.TikTokFollowers,
			YouTubeSubscribers:      s.YouTubeSubscribers,
			SpotifyMonthlyListeners: s.SpotifyMonthlyListeners,
			NewsletterSubscribers:   s.NewsletterSubscribers,
		}
	}
	if d := r.Discography; d != nil {
		p.Discography.EPs = d.EPs
		p.Discography.Singles = d.Singles
		p.Discography.VisualConcept = d.VisualConcept
		for _, rel := range d.UpcomingReleases {
			p.Discography.UpcomingReleases = append(p.Discography.UpcomingReleases, domain.Release(rel))
		}
	}
	if l := r.Live; l != nil {
		p.Live.ShowsLastYear = l.ShowsLastYear
		p.Live.AvgCapacity = l.AvgCapacity
		p.Live.AvgTicketPrice = l.AvgTicketPrice
		p.Live.Highlights = append(p.Live.Highlights, l.Highlights...)
	}
	if f := r.Financials; f != nil {
		p.Financials = domain.Financials(*f)
	}
	return p
}

func summaryResponse(s strategy.Summary) StrategySummaryResponse {
	status := make(map[string]int, len(s.TaskStatus))
	for k, v := range s.TaskStatus {
		status[string(k)] = v
	}
	return StrategySummaryResponse{
		Events:      s.Events,
		EffortHours: s.EffortHours,
		Budget:      s.Budget.StringFixed(2),
		Optional:    s.Optional,
		ByChannel:   bucketResponses(s.ByChannel),
		ByGoal:      bucketResponses(s.ByGoal),
		ByMonth:     bucketResponses(s.ByMonth),
		TaskStatus:  status,
	}
}

func bucketResponses(in []strategy.Bucket) []BucketResponse {
	out := make([]BucketResponse, 0, len(in))
	for _, b := range in {
		out = append(out, BucketResponse{
			Key:         b.Key,
			Events:      b.Events,
			EffortHours: b.EffortHours,
			Budget:      b.Budget.StringFixed(2),
		})
	}
	return out
}

func creditsResponse(o engine.CreditsOverview) CreditsResponse {
	return CreditsResponse{
		Balance:      o.Balance,
		Transactions: nonNilSlice(o.Transactions),
	}
}

func chatResponse(r engine.ChatResult) ChatResponse {
	return ChatResponse{
		Agent:   r.Agent.ID,
		Message: r.Message,
		Reply:   r.Reply,
		Charged: r.Charged,
		Balance: r.Balance,
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    payload,
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
