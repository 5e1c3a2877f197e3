package strategy

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kool/internal/domain"
)

const minimalPayload = `{"calendar":[{"id":"1","title":"T"}],"task_tracker":[{"id":"1","title":"T","status":"pending","owner":"artist","dependencies":[]}]}`

// planJSON renders an aligned n-entry plan starting on start.
func planJSON(start time.Time, n int) string {
	var cal, tasks []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("e%d", i+1)
		date := start.AddDate(0, 0, i*7).Format(DateLayout)
		cal = append(cal, fmt.Sprintf(`{"id":%q,"date":%q,"title":"Task %d","description":"d","channel":"IG/TikTok","effort_hours":2,"goal":"engagement","budget":25.5}`, id, date, i+1))
		deps := "[]"
		if i > 0 {
			deps = fmt.Sprintf(`["e%d"]`, i)
		}
		tasks = append(tasks, fmt.Sprintf(`{"id":%q,"title":"Task %d","status":"pending","owner":"artist","dependencies":%s}`, id, i+1, deps))
	}
	return fmt.Sprintf(`{"calendar":[%s],"task_tracker":[%s]}`, strings.Join(cal, ","), strings.Join(tasks, ","))
}

func TestParseStrategy_Minimal(t *testing.T) {
	s, err := ParseStrategy(minimalPayload, ParseOptions{})
	require.NoError(t, err)
	require.Len(t, s.Calendar, 1)
	require.Len(t, s.TaskTracker, 1)
	assert.Equal(t, "1", s.Calendar[0].ID)
	assert.Equal(t, s.Calendar[0].ID, s.TaskTracker[0].ID)
	assert.Equal(t, "T", s.TaskTracker[0].Title)
	assert.Equal(t, domain.TaskPending, s.TaskTracker[0].Status)
	assert.Equal(t, "artist", s.TaskTracker[0].Owner)
	assert.NotNil(t, s.TaskTracker[0].Dependencies)
}

func TestParseStrategy_FullPlan(t *testing.T) {
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	window := NewDateWindow(start)
	s, err := ParseStrategy(planJSON(start, 5), ParseOptions{Window: &window})
	require.NoError(t, err)
	require.Len(t, s.Calendar, 5)
	assert.Equal(t, "2026-10-26", s.Calendar[1].Date)
	assert.Equal(t, domain.ChannelSocial, s.Calendar[1].Channel)
	assert.Equal(t, domain.GoalEngagement, s.Calendar[1].Goal)
	assert.Equal(t, 25.5, s.Calendar[1].Budget)
	assert.Equal(t, 2, s.Calendar[1].EffortHours)
	assert.Equal(t, []string{"e1"}, s.TaskTracker[1].Dependencies)
	assert.NoError(t, Validate(s, &window))
}

func TestParseStrategy_Defaults(t *testing.T) {
	payload := `{"calendar":[{"id":"a","title":"A","is_optional":true,"effort_hours":3.0}],"task_tracker":[{"id":"a","title":"A"}]}`
	s, err := ParseStrategy(payload, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, s.TaskTracker[0].Status)
	assert.Equal(t, domain.DefaultOwner, s.TaskTracker[0].Owner)
	assert.Equal(t, []string{}, s.TaskTracker[0].Dependencies)
	require.NotNil(t, s.Calendar[0].IsOptional)
	assert.True(t, *s.Calendar[0].IsOptional)
	assert.Equal(t, 3, s.Calendar[0].EffortHours)
}

func TestParseStrategy_EmptyPlan(t *testing.T) {
	s, err := ParseStrategy(`{"calendar":[],"task_tracker":[]}`, ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, s.Calendar)
	assert.Empty(t, s.TaskTracker)
}

func TestParseStrategy_Malformed(t *testing.T) {
	raw := "Sorry, I cannot help with that. " + strings.Repeat("x", 4000)
	_, err := ParseStrategy(raw, ParseOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Len(t, mre.Excerpt, ExcerptLimit)
	assert.True(t, strings.HasPrefix(raw, mre.Excerpt))
	assert.Equal(t, "malformed_response", Code(err))
}

func TestParseStrategy_MalformedExcerptKeepsGraphemes(t *testing.T) {
	raw := strings.Repeat("e\u0301", 1500)
	_, err := ParseStrategy(raw, ParseOptions{})
	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, strings.Repeat("e\u0301", ExcerptLimit), mre.Excerpt)
}

func TestParseStrategy_ExcerptComesFromRaw(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"calendar\": [\n```\nEnjoy!"
	_, err := ParseStrategy(ExtractPayload(raw), ParseOptions{Raw: raw})
	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, raw, mre.Excerpt)
}

func TestParseStrategy_ShortMalformedKeepsWholeText(t *testing.T) {
	_, err := ParseStrategy(`{"calendar": [`, ParseOptions{})
	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, `{"calendar": [`, mre.Excerpt)
}

func TestParseStrategy_EmptyText(t *testing.T) {
	_, err := ParseStrategy("   ", ParseOptions{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseStrategy_ContractViolations(t *testing.T) {
	cases := map[string]struct {
		payload string
		problem string
	}{
		"length mismatch": {
			payload: `{"calendar":[{"id":"1","title":"A"},{"id":"2","title":"B"}],"task_tracker":[{"id":"1","title":"A"}]}`,
			problem: "calendar has 2 entries but task_tracker has 1",
		},
		"id mismatch": {
			payload: `{"calendar":[{"id":"1","title":"A"}],"task_tracker":[{"id":"2","title":"A"}]}`,
			problem: `task_tracker[0].id "2" does not match calendar[0].id "1"`,
		},
		"swapped order": {
			payload: `{"calendar":[{"id":"1"},{"id":"2"}],"task_tracker":[{"id":"2"},{"id":"1"}]}`,
			problem: `task_tracker[0].id "2" does not match calendar[0].id "1"`,
		},
		"title mismatch": {
			payload: `{"calendar":[{"id":"1","title":"A"}],"task_tracker":[{"id":"1","title":"B"}]}`,
			problem: `task_tracker[0].title "B" does not match calendar[0].title "A"`,
		},
		"missing task_tracker": {
			payload: `{"calendar":[]}`,
			problem: "task_tracker",
		},
		"calendar not array": {
			payload: `{"calendar":{"id":"1"},"task_tracker":[]}`,
			problem: "/calendar",
		},
		"root array": {
			payload: `[{"id":"1"}]`,
			problem: "/",
		},
		"bad channel": {
			payload: `{"calendar":[{"id":"1","channel":"Myspace"}],"task_tracker":[{"id":"1"}]}`,
			problem: "/calendar/0/channel",
		},
		"negative budget": {
			payload: `{"calendar":[{"id":"1","budget":-5}],"task_tracker":[{"id":"1"}]}`,
			problem: "/calendar/0/budget",
		},
		"bad status": {
			payload: `{"calendar":[{"id":"1"}],"task_tracker":[{"id":"1","status":"blocked"}]}`,
			problem: "/task_tracker/0/status",
		},
		"duplicate id": {
			payload: `{"calendar":[{"id":"1"},{"id":"1"}],"task_tracker":[{"id":"1"},{"id":"1"}]}`,
			problem: `calendar[1] repeats id "1"`,
		},
		"unknown dependency": {
			payload: `{"calendar":[{"id":"1"}],"task_tracker":[{"id":"1","dependencies":["9"]}]}`,
			problem: `task_tracker[0] depends on unknown id "9"`,
		},
		"numeric id": {
			payload: `{"calendar":[{"id":1}],"task_tracker":[{"id":1}]}`,
			problem: "/calendar/0/id",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStrategy(tc.payload, ParseOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContractViolation)
			var cve *ContractViolationError
			require.True(t, errors.As(err, &cve))
			assert.Contains(t, strings.Join(cve.Problems, "\n"), tc.problem)
			assert.Equal(t, "contract_violation", Code(err))
		})
	}
}

func TestParseStrategy_WindowEnforced(t *testing.T) {
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	window := NewDateWindow(start)

	_, err := ParseStrategy(planJSON(start.AddDate(0, 0, -1), 1), ParseOptions{Window: &window})
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Contains(t, err.Error(), "outside 2026-10-19..2027-01-19")

	_, err = ParseStrategy(minimalPayload, ParseOptions{Window: &window})
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Contains(t, err.Error(), "calendar[0] has no date")

	_, err = ParseStrategy(planJSON(window.End, 1), ParseOptions{Window: &window})
	assert.NoError(t, err)
}

func TestValidate_DetectsMisalignment(t *testing.T) {
	s := domain.Strategy{
		Calendar:    []domain.CalendarEvent{{ID: "1", Title: "A"}},
		TaskTracker: []domain.TaskTrackerEntry{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}},
	}
	assert.ErrorIs(t, Validate(s, nil), ErrContractViolation)
}
