package strategy

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"kool/internal/domain"
)

//go:embed strategy.schema.json
var strategySchemaJSON string

const strategySchemaURL = "strategy.schema.json"

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func contractSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(strategySchemaURL, strings.NewReader(strategySchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile(strategySchemaURL)
	})
	return schemaCompiled, schemaErr
}

// ParseOptions tunes ParseStrategy.
type ParseOptions struct {
	// Window, when set, requires every calendar entry to carry a date inside it.
	Window *DateWindow
	// Raw is the completion before fence extraction. When set, malformed
	// response excerpts are cut from it instead of from text.
	Raw string
}

// ParseStrategy parses extracted completion text into a Strategy. Non-JSON
// text yields a *MalformedResponseError; shape or alignment problems yield a
// *ContractViolationError. Misaligned arrays are rejected, never repaired.
func ParseStrategy(text string, opts ParseOptions) (domain.Strategy, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !gjson.Valid(trimmed) {
		source := text
		if opts.Raw != "" {
			source = opts.Raw
		}
		return domain.Strategy{}, &MalformedResponseError{
			Excerpt: excerpt(source, ExcerptLimit),
			Cause:   decodeError(trimmed),
		}
	}

	if problems := schemaProblems(trimmed); len(problems) > 0 {
		return domain.Strategy{}, &ContractViolationError{Problems: problems}
	}
	doc := gjson.Parse(trimmed)
	calendar := doc.Get("calendar").Array()
	tracker := doc.Get("task_tracker").Array()
	if problems := alignmentProblems(calendar, tracker, opts.Window); len(problems) > 0 {
		return domain.Strategy{}, &ContractViolationError{Problems: problems}
	}

	out := domain.Strategy{
		Calendar:    make([]domain.CalendarEvent, 0, len(calendar)),
		TaskTracker: make([]domain.TaskTrackerEntry, 0, len(tracker)),
	}
	for _, v := range calendar {
		out.Calendar = append(out.Calendar, decodeCalendarEvent(v))
	}
	for _, v := range tracker {
		out.TaskTracker = append(out.TaskTracker, decodeTaskEntry(v))
	}
	return out, nil
}

// Validate checks an already-decoded strategy against the alignment contract.
func Validate(s domain.Strategy, window *DateWindow) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	doc := gjson.ParseBytes(data)
	problems := alignmentProblems(doc.Get("calendar").Array(), doc.Get("task_tracker").Array(), window)
	if len(problems) > 0 {
		return &ContractViolationError{Problems: problems}
	}
	return nil
}

func decodeError(text string) error {
	if text == "" {
		return errors.New("empty completion")
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return err
	}
	return errors.New("invalid json")
}

func schemaProblems(text string) []string {
	schema, err := contractSchema()
	if err != nil {
		return []string{fmt.Sprintf("compile contract schema: %v", err)}
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []string{err.Error()}
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var problems []string
	collectLeaves(ve, &problems)
	if len(problems) == 0 {
		problems = append(problems, ve.Message)
	}
	return problems
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

func alignmentProblems(calendar, tracker []gjson.Result, window *DateWindow) []string {
	var problems []string
	if len(calendar) != len(tracker) {
		problems = append(problems, fmt.Sprintf("calendar has %d entries but task_tracker has %d", len(calendar), len(tracker)))
	}
	ids := make(map[string]int, len(calendar))
	for i, ev := range calendar {
		id := ev.Get("id").String()
		if id == "" {
			problems = append(problems, fmt.Sprintf("calendar[%d] has no id", i))
			continue
		}
		if prev, dup := ids[id]; dup {
			problems = append(problems, fmt.Sprintf("calendar[%d] repeats id %q of calendar[%d]", i, id, prev))
			continue
		}
		ids[id] = i
	}
	n := len(calendar)
	if len(tracker) < n {
		n = len(tracker)
	}
	for i := 0; i < n; i++ {
		calID, taskID := calendar[i].Get("id").String(), tracker[i].Get("id").String()
		if calID != taskID {
			problems = append(problems, fmt.Sprintf("task_tracker[%d].id %q does not match calendar[%d].id %q", i, taskID, i, calID))
		}
		calTitle, taskTitle := calendar[i].Get("title").String(), tracker[i].Get("title").String()
		if calTitle != "" && taskTitle != "" && calTitle != taskTitle {
			problems = append(problems, fmt.Sprintf("task_tracker[%d].title %q does not match calendar[%d].title %q", i, taskTitle, i, calTitle))
		}
	}
	for i, task := range tracker {
		for _, dep := range task.Get("dependencies").Array() {
			if _, ok := ids[dep.String()]; !ok {
				problems = append(problems, fmt.Sprintf("task_tracker[%d] depends on unknown id %q", i, dep.String()))
			}
		}
	}
	if window != nil {
		for i, ev := range calendar {
			date := ev.Get("date").String()
			if date == "" {
				problems = append(problems, fmt.Sprintf("calendar[%d] has no date", i))
				continue
			}
			ok, err := window.ContainsDate(date)
			if err != nil {
				problems = append(problems, fmt.Sprintf("calendar[%d]: %v", i, err))
				continue
			}
			if !ok {
				problems = append(problems, fmt.Sprintf("calendar[%d].date %s is outside %s..%s", i, date, window.StartDate(), window.EndDate()))
			}
		}
	}
	return problems
}

func decodeCalendarEvent(v gjson.Result) domain.CalendarEvent {
	ev := domain.CalendarEvent{
		ID:          v.Get("id").String(),
		Date:        v.Get("date").String(),
		Title:       v.Get("title").String(),
		Description: v.Get("description").String(),
		Channel:     domain.Channel(v.Get("channel").String()),
		EffortHours: int(v.Get("effort_hours").Int()),
		Goal:        domain.Goal(v.Get("goal").String()),
		Budget:      v.Get("budget").Float(),
	}
	if opt := v.Get("is_optional"); opt.Exists() {
		b := opt.Bool()
		ev.IsOptional = &b
	}
	return ev
}

func decodeTaskEntry(v gjson.Result) domain.TaskTrackerEntry {
	entry := domain.TaskTrackerEntry{
		ID:           v.Get("id").String(),
		Title:        v.Get("title").String(),
		Status:       domain.TaskStatus(v.Get("status").String()),
		Owner:        v.Get("owner").String(),
		Dependencies: []string{},
	}
	if entry.Status == "" {
		entry.Status = domain.TaskPending
	}
	if strings.TrimSpace(entry.Owner) == "" {
		entry.Owner = domain.DefaultOwner
	}
	for _, dep := range v.Get("dependencies").Array() {
		entry.Dependencies = append(entry.Dependencies, dep.String())
	}
	return entry
}
