package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"kool/internal/domain"
)

const (
	profileBanner    = "=== ARTIST PROFILE ==="
	profileEndBanner = "=== END ARTIST PROFILE ==="

	// HighEffortHours is the effort at which a task counts against the weekly cap.
	HighEffortHours = 4
	// MaxHighEffortPerWeek bounds heavy tasks in any calendar week.
	MaxHighEffortPerWeek = 3
)

// Prompts is the system/user pair sent to the completion API.
type Prompts struct {
	System string
	User   string
}

type systemPromptData struct {
	Start          string
	End            string
	Language       string
	Channels       string
	Goals          string
	Statuses       string
	DefaultOwner   string
	HighEffort     int
	MaxHighPerWeek int
	ProfileJSON    string
}

var systemTemplate = template.Must(template.New("system").Parse(`You are the growth strategist of Kool, a platform for independent musicians.
Plan the artist's next three months of growth work from {{.Start}} to {{.End}}.

Return ONLY a JSON object with exactly two top-level keys: "calendar" and "task_tracker".
Do not wrap it in markdown, do not add prose or comments.

"calendar" is an array of objects with exactly these fields:
- "id": string, unique within the plan
- "date": string "YYYY-MM-DD", between {{.Start}} and {{.End}} inclusive
- "title": string
- "description": string
- "channel": one of {{.Channels}}
- "effort_hours": integer >= 0
- "goal": one of {{.Goals}}
- "budget": number >= 0, 0 if the action is organic

"task_tracker" is an array with the same order and the same length as "calendar". Entry i describes calendar entry i:
- "id": string, equal to the id of calendar entry i
- "title": string, equal to the title of calendar entry i
- "status": one of {{.Statuses}}; use "pending" for new tasks
- "owner": string, "{{.DefaultOwner}}" unless someone else clearly owns the task
- "dependencies": array of calendar ids this task waits on, may be empty

Planning rules:
- Every calendar date must fall inside {{.Start}} .. {{.End}}.
- Distribute tasks across the whole window instead of clustering them at the start.
- Schedule at most {{.MaxHighPerWeek}} high-effort tasks (effort_hours >= {{.HighEffort}}) per week.
- Include at least one "data-driven" checkpoint per month to review metrics and adjust.
- Budgets must fit the artist's financials.
- Write titles and descriptions in the language "{{.Language}}".

Artist context:
{{.ProfileJSON}}
`))

// BuildPrompts renders the strategy prompts for profile over window. It is a
// pure function of its inputs.
func BuildPrompts(profile domain.ArtistProfile, window DateWindow) (Prompts, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return Prompts{}, fmt.Errorf("marshal profile: %w", err)
	}
	data := systemPromptData{
		Start:          window.StartDate(),
		End:            window.EndDate(),
		Language:       profile.Language,
		Channels:       quoteJoin(domain.Channels),
		Goals:          quoteJoin(domain.Goals),
		Statuses:       quoteJoin(domain.TaskStatuses),
		DefaultOwner:   domain.DefaultOwner,
		HighEffort:     HighEffortHours,
		MaxHighPerWeek: MaxHighEffortPerWeek,
		ProfileJSON:    string(profileJSON),
	}
	var sys bytes.Buffer
	if err := systemTemplate.Execute(&sys, data); err != nil {
		return Prompts{}, fmt.Errorf("render system prompt: %w", err)
	}

	var user strings.Builder
	user.WriteString(profileBanner)
	user.WriteString("\n")
	user.Write(profileJSON)
	user.WriteString("\n")
	user.WriteString(profileEndBanner)
	user.WriteString("\n\n")
	fmt.Fprintf(&user, "Build the calendar and task_tracker for %s to %s. Every date must be within these bounds.", data.Start, data.End)

	return Prompts{System: sys.String(), User: user.String()}, nil
}

func quoteJoin[T ~string](items []T) string {
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, `"`+string(it)+`"`)
	}
	return strings.Join(quoted, ", ")
}
