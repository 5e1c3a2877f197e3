package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid marks input that fails domain validation.
var ErrInvalid = errors.New("invalid input")

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Socials struct {
	InstagramFollowers      int `json:"instagram_followers" yaml:"instagram_followers"`
	TikTokFollowers         int `json:"tiktok_followers" yaml:"tiktok_followers"`
	YouTubeSubscribers      int `json:"youtube_subscribers" yaml:"youtube_subscribers"`
	SpotifyMonthlyListeners int `json:"spotify_monthly_listeners" yaml:"spotify_monthly_listeners"`
	NewsletterSubscribers   int `json:"newsletter_subscribers" yaml:"newsletter_subscribers"`
}

type Release struct {
	Title       string `json:"title" yaml:"title"`
	ReleaseDate string `json:"release_date,omitempty" yaml:"release_date"`
	Type        string `json:"type,omitempty" yaml:"type"`
}

type Discography struct {
	EPs              int       `json:"eps" yaml:"eps"`
	Singles          int       `json:"singles" yaml:"singles"`
	UpcomingReleases []Release `json:"upcoming_releases" yaml:"upcoming_releases"`
	VisualConcept    string    `json:"visual_concept,omitempty" yaml:"visual_concept"`
}

type LiveHistory struct {
	Highlights     []string `json:"highlights" yaml:"highlights"`
	ShowsLastYear  int      `json:"shows_last_year" yaml:"shows_last_year"`
	AvgCapacity    int      `json:"avg_capacity" yaml:"avg_capacity"`
	AvgTicketPrice int      `json:"avg_ticket_price" yaml:"avg_ticket_price"`
}

type Financials struct {
	AnnualExpenses   int `json:"annual_expenses" yaml:"annual_expenses"`
	BudgetPerRelease int `json:"budget_per_release" yaml:"budget_per_release"`
}

// ArtistProfile is the onboarding result the strategy prompt is rendered from.
type ArtistProfile struct {
	UserID      string      `json:"user_id" yaml:"user_id"`
	ArtistName  string      `json:"artist_name" yaml:"artist_name"`
	Genre       string      `json:"genre,omitempty" yaml:"genre"`
	City        string      `json:"city,omitempty" yaml:"city"`
	Language    string      `json:"language" yaml:"language"`
	Goals       string      `json:"goals,omitempty" yaml:"goals"`
	Socials     Socials     `json:"socials" yaml:"socials"`
	Discography Discography `json:"discography" yaml:"discography"`
	Live        LiveHistory `json:"live" yaml:"live"`
	Financials  Financials  `json:"financials" yaml:"financials"`
	UpdatedAt   string      `json:"updated_at,omitempty" yaml:"-" format:"date-time"`
}

// Validate checks the non-negativity and language invariants.
func (p ArtistProfile) Validate() error {
	var problems []string
	if strings.TrimSpace(p.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(p.ArtistName) == "" {
		problems = append(problems, "artist_name is required")
	}
	if !isLanguageTag(p.Language) {
		problems = append(problems, fmt.Sprintf("language %q must be a two-letter code", p.Language))
	}
	counts := []struct {
		name  string
		value int
	}{
		{"socials.instagram_followers", p.Socials.InstagramFollowers},
		{"socials.tiktok_followers", p.Socials.TikTokFollowers},
		{"socials.youtube_subscribers", p.Socials.YouTubeSubscribers},
		{"socials.spotify_monthly_listeners", p.Socials.SpotifyMonthlyListeners},
		{"socials.newsletter_subscribers", p.Socials.NewsletterSubscribers},
		{"discography.eps", p.Discography.EPs},
		{"discography.singles", p.Discography.Singles},
		{"live.shows_last_year", p.Live.ShowsLastYear},
		{"live.avg_capacity", p.Live.AvgCapacity},
		{"live.avg_ticket_price", p.Live.AvgTicketPrice},
		{"financials.annual_expenses", p.Financials.AnnualExpenses},
		{"financials.budget_per_release", p.Financials.BudgetPerRelease},
	}
	for _, c := range counts {
		if c.value < 0 {
			problems = append(problems, fmt.Sprintf("%s must be non-negative", c.name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func isLanguageTag(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

type Channel string

const (
	ChannelSocial Channel = "IG/TikTok"
	ChannelYT     Channel = "YT"
	ChannelLive   Channel = "Live"
	ChannelEmail  Channel = "Email"
	ChannelPR     Channel = "PR"
	ChannelOther  Channel = "Other"
)

// Channels lists every calendar channel in prompt order.
var Channels = []Channel{ChannelSocial, ChannelYT, ChannelLive, ChannelEmail, ChannelPR, ChannelOther}

type Goal string

const (
	GoalBrand      Goal = "brand"
	GoalEngagement Goal = "engagement"
	GoalConversion Goal = "conversion"
	GoalDataDriven Goal = "data-driven"
)

var Goals = []Goal{GoalBrand, GoalEngagement, GoalConversion, GoalDataDriven}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
)

var TaskStatuses = []TaskStatus{TaskPending, TaskInProgress, TaskDone}

// ValidTaskStatus reports whether s is one of the tracker statuses.
func ValidTaskStatus(s string) bool {
	for _, st := range TaskStatuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

// DefaultOwner is assigned to tracker entries that arrive without an owner.
const DefaultOwner = "artist"

type CalendarEvent struct {
	ID          string  `json:"id"`
	Date        string  `json:"date" format:"date"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Channel     Channel `json:"channel"`
	EffortHours int     `json:"effort_hours"`
	Goal        Goal    `json:"goal"`
	Budget      float64 `json:"budget"`
	IsOptional  *bool   `json:"is_optional,omitempty"`
}

type TaskTrackerEntry struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       TaskStatus `json:"status"`
	Owner        string     `json:"owner"`
	Dependencies []string   `json:"dependencies"`
}

// Strategy is the generated growth plan. Calendar and TaskTracker are
// index-aligned: entry i of each shares id and title.
type Strategy struct {
	Calendar    []CalendarEvent    `json:"calendar"`
	TaskTracker []TaskTrackerEntry `json:"task_tracker"`
}

// StrategyRecord is the persisted, per-user strategy.
type StrategyRecord struct {
	UserID      string   `json:"user_id"`
	Strategy    Strategy `json:"strategy"`
	Model       string   `json:"model,omitempty"`
	WindowStart string   `json:"window_start" format:"date"`
	WindowEnd   string   `json:"window_end" format:"date"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TransactionType string

const (
	TxGrant    TransactionType = "grant"
	TxPurchase TransactionType = "purchase"
	TxSpend    TransactionType = "spend"
	TxRefund   TransactionType = "refund"
)

// Sign is +1 for credit-adding transactions and -1 for spends.
func (t TransactionType) Sign() int {
	if t == TxSpend {
		return -1
	}
	return 1
}

type CreditTransaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      TransactionType `json:"type" enum:"grant,purchase,spend,refund"`
	Amount    int             `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

// Agent is a topic-scoped chat persona.
type Agent struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Topic        string `json:"topic" yaml:"topic"`
	Instructions string `json:"-" yaml:"instructions"`
	Paid         bool   `json:"paid" yaml:"paid"`
	Cost         int    `json:"cost" yaml:"cost"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	Role      string `json:"role" enum:"user,assistant"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
