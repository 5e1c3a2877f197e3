// Package agents holds the topic-scoped chat personas offered next to the
// strategy dashboard.
package agents

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"kool/internal/config"
	"kool/internal/domain"
)

var ErrUnknownAgent = errors.New("unknown agent")

// Defaults is the built-in catalog in display order.
func Defaults() []domain.Agent {
	return []domain.Agent{
		{
			ID:    "strategy",
			Name:  "Strategy Coach",
			Topic: "release planning and the 3-month calendar",
			Instructions: "You coach independent musicians on executing their release strategy. " +
				"Refer to concrete calendar items when the artist has a plan and keep advice doable within a week.",
		},
		{
			ID:    "social",
			Name:  "Social Media Manager",
			Topic: "Instagram, TikTok and YouTube content",
			Instructions: "You plan short-form content. Suggest hooks, posting cadence and formats that fit the artist's " +
				"visual concept. Prefer organic tactics before paid ones.",
		},
		{
			ID:    "spotify",
			Name:  "Streaming Specialist",
			Topic: "Spotify for Artists, playlist pitching and release radar",
			Instructions: "You explain streaming platform tools. Cover pitching windows, canvas, " +
				"and how to read listener data. Never promise placements.",
			Paid: true,
			Cost: 1,
		},
		{
			ID:    "live",
			Name:  "Booking Agent",
			Topic: "shows, venues and ticket pricing",
			Instructions: "You help plan live performances. Ground venue sizes and ticket prices in the artist's live history.",
			Paid:         true,
			Cost:         1,
		},
		{
			ID:    "publishing",
			Name:  "Publishing Advisor",
			Topic: "royalties, collecting societies and splits",
			Instructions: "You explain music publishing and royalty collection in plain language. " +
				"Flag when the artist should talk to a lawyer instead of acting on your answer.",
			Paid: true,
			Cost: 2,
		},
	}
}

// Catalog is an ordered, read-only set of agents.
type Catalog struct {
	order []string
	byID  map[string]domain.Agent
}

// NewCatalog starts from Defaults and applies overrides. An override with a
// new id appends an agent; empty fields keep the built-in values.
func NewCatalog(overrides []config.AgentConfig) *Catalog {
	c := &Catalog{byID: map[string]domain.Agent{}}
	for _, a := range Defaults() {
		c.order = append(c.order, a.ID)
		c.byID[a.ID] = a
	}
	for _, o := range overrides {
		id := strings.TrimSpace(o.ID)
		if id == "" {
			continue
		}
		a, exists := c.byID[id]
		if !exists {
			a = domain.Agent{ID: id, Name: id}
			c.order = append(c.order, id)
		}
		if o.Name != "" {
			a.Name = o.Name
		}
		if o.Topic != "" {
			a.Topic = o.Topic
		}
		if o.Instructions != "" {
			a.Instructions = o.Instructions
		}
		if o.Paid != nil {
			a.Paid = *o.Paid
		}
		if o.Cost != nil {
			a.Cost = *o.Cost
		}
		if !a.Paid {
			a.Cost = 0
		}
		c.byID[id] = a
	}
	return c
}

func (c *Catalog) List() []domain.Agent {
	out := make([]domain.Agent, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Catalog) Get(id string) (domain.Agent, error) {
	a, ok := c.byID[id]
	if !ok {
		return domain.Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return a, nil
}

var systemTemplate = template.Must(template.New("agent").Parse(`You are {{.Agent.Name}}, an assistant for independent musicians focused on {{.Agent.Topic}}.
{{.Agent.Instructions}}
Stay on your topic. If asked about something else, point the artist to the right specialist.
{{- if .Profile}}

Artist: {{.Profile.ArtistName}}{{if .Profile.Genre}} ({{.Profile.Genre}}{{if .Profile.City}}, {{.Profile.City}}{{end}}){{end}}
Audience: {{.Profile.Socials.InstagramFollowers}} Instagram, {{.Profile.Socials.TikTokFollowers}} TikTok, {{.Profile.Socials.SpotifyMonthlyListeners}} Spotify monthly listeners.
Live: {{.Profile.Live.ShowsLastYear}} shows last year, average capacity {{.Profile.Live.AvgCapacity}}.
{{- if .Profile.Goals}}
Goals: {{.Profile.Goals}}
{{- end}}
Reply in the language "{{.Profile.Language}}".
{{- end}}
`))

// BuildSystemPrompt renders the persona prompt. profile may be nil when the
// artist has not onboarded yet.
func BuildSystemPrompt(agent domain.Agent, profile *domain.ArtistProfile) (string, error) {
	var buf bytes.Buffer
	err := systemTemplate.Execute(&buf, struct {
		Agent   domain.Agent
		Profile *domain.ArtistProfile
	}{agent, profile})
	if err != nil {
		return "", fmt.Errorf("render agent prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildUserPrompt folds prior turns and the new message into one prompt.
func BuildUserPrompt(history []domain.ChatMessage, message string) string {
	if len(history) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		who := "Artist"
		if m.Role == "assistant" {
			who = "You"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	b.WriteString("\nArtist: ")
	b.WriteString(message)
	return b.String()
}
