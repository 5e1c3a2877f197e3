package strategy

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kool/internal/domain"
)

func sampleProfile() domain.ArtistProfile {
	return domain.ArtistProfile{
		UserID:     "user-1",
		ArtistName: "Luna Vega",
		Genre:      "indie pop",
		City:       "Lisbon",
		Language:   "pt",
		Socials: domain.Socials{
			InstagramFollowers:      12000,
			TikTokFollowers:         30500,
			SpotifyMonthlyListeners: 8200,
		},
		Discography: domain.Discography{
			EPs:     1,
			Singles: 4,
			UpcomingReleases: []domain.Release{
				{Title: "Maré", ReleaseDate: "2026-12-05", Type: "single"},
			},
			VisualConcept: "sunlit 16mm, ocean blues",
		},
		Live: domain.LiveHistory{
			Highlights:     []string{"Opened for a national act", "Sold out Musicbox"},
			ShowsLastYear:  14,
			AvgCapacity:    180,
			AvgTicketPrice: 12,
		},
		Financials: domain.Financials{AnnualExpenses: 9000, BudgetPerRelease: 1500},
	}
}

func TestBuildPrompts_EmbedsWindow(t *testing.T) {
	window := NewDateWindow(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	p, err := BuildPrompts(sampleProfile(), window)
	require.NoError(t, err)

	assert.Contains(t, p.System, "2026-10-19")
	assert.Contains(t, p.System, "2027-01-19")
	assert.Contains(t, p.User, "Build the calendar and task_tracker for 2026-10-19 to 2027-01-19.")
	assert.Contains(t, p.System, `"calendar"`)
	assert.Contains(t, p.System, `"task_tracker"`)
	assert.Contains(t, p.System, `"IG/TikTok", "YT", "Live", "Email", "PR", "Other"`)
	assert.Contains(t, p.System, `"brand", "engagement", "conversion", "data-driven"`)
	assert.Contains(t, p.System, `"pending", "in-progress", "done"`)
	assert.Contains(t, p.System, "at most 3 high-effort tasks")
	assert.Contains(t, p.System, `at least one "data-driven" checkpoint per month`)
	assert.Contains(t, p.System, `language "pt"`)
}

func TestBuildPrompts_ContainsProfileJSON(t *testing.T) {
	profile := sampleProfile()
	window := NewDateWindow(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	p, err := BuildPrompts(profile, window)
	require.NoError(t, err)

	literal, err := json.MarshalIndent(profile, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, p.System, string(literal))
	assert.Contains(t, p.User, string(literal))

	start := strings.Index(p.User, profileBanner)
	end := strings.Index(p.User, profileEndBanner)
	require.True(t, start >= 0 && end > start)
	between := strings.TrimSpace(p.User[start+len(profileBanner) : end])
	var decoded domain.ArtistProfile
	require.NoError(t, json.Unmarshal([]byte(between), &decoded))
	assert.Equal(t, profile.ArtistName, decoded.ArtistName)
	assert.Equal(t, profile.Socials, decoded.Socials)
}

func TestBuildPrompts_Deterministic(t *testing.T) {
	window := NewDateWindow(time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC))
	a, err := BuildPrompts(sampleProfile(), window)
	require.NoError(t, err)
	b, err := BuildPrompts(sampleProfile(), window)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
