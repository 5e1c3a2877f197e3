package strategy

import (
	"sort"

	"github.com/shopspring/decimal"

	"kool/internal/domain"
)

// Bucket aggregates the calendar entries sharing one key.
type Bucket struct {
	Key         string
	Events      int
	EffortHours int
	Budget      decimal.Decimal
}

// Summary is the dashboard rollup of a strategy.
type Summary struct {
	Events      int
	EffortHours int
	Budget      decimal.Decimal
	ByChannel   []Bucket
	ByGoal      []Bucket
	ByMonth     []Bucket
	TaskStatus  map[domain.TaskStatus]int
	Optional    int
}

// Summarize totals budget and effort per channel, goal and month. Budgets are
// summed as decimals so cents do not drift.
func Summarize(s domain.Strategy) Summary {
	out := Summary{
		Budget:     decimal.Zero,
		TaskStatus: map[domain.TaskStatus]int{},
	}
	channels := map[string]*Bucket{}
	goals := map[string]*Bucket{}
	months := map[string]*Bucket{}
	for _, ev := range s.Calendar {
		budget := decimal.NewFromFloat(ev.Budget)
		out.Events++
		out.EffortHours += ev.EffortHours
		out.Budget = out.Budget.Add(budget)
		if ev.IsOptional != nil && *ev.IsOptional {
			out.Optional++
		}
		addTo(channels, string(ev.Channel), ev.EffortHours, budget)
		addTo(goals, string(ev.Goal), ev.EffortHours, budget)
		month := ""
		if len(ev.Date) >= 7 {
			month = ev.Date[:7]
		}
		addTo(months, month, ev.EffortHours, budget)
	}
	for _, st := range domain.TaskStatuses {
		out.TaskStatus[st] = 0
	}
	for _, t := range s.TaskTracker {
		out.TaskStatus[t.Status]++
	}
	out.ByChannel = sortedBuckets(channels)
	out.ByGoal = sortedBuckets(goals)
	out.ByMonth = sortedBuckets(months)
	return out
}

func addTo(m map[string]*Bucket, key string, effort int, budget decimal.Decimal) {
	if key == "" {
		key = "unspecified"
	}
	b, ok := m[key]
	if !ok {
		b = &Bucket{Key: key, Budget: decimal.Zero}
		m[key] = b
	}
	b.Events++
	b.EffortHours += effort
	b.Budget = b.Budget.Add(budget)
}

func sortedBuckets(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
