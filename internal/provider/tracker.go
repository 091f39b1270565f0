package provider

import (
	"sort"
	"sync"
	"time"
)

// DefaultHourlyBudget is the NextDNS hourly query budget before the tracker
// deprioritizes it.
const DefaultHourlyBudget = 100

// Tracker keeps per-provider call counters and orders the provider list:
// NextDNS drops to the back once its hourly budget is spent, everything
// else sorts by ascending failure rate. The ordering is computed per query
// from a snapshot; in-flight queries keep the order they read.
type Tracker struct {
	mu           sync.Mutex
	counters     map[string]*counter
	hourlyBudget int
}

type counter struct {
	total    int64
	failures int64

	hourStart time.Time
	hourCount int64
}

// NewTracker creates a tracker with the given NextDNS hourly budget
// (DefaultHourlyBudget when <= 0).
func NewTracker(hourlyBudget int) *Tracker {
	if hourlyBudget <= 0 {
		hourlyBudget = DefaultHourlyBudget
	}
	return &Tracker{
		counters:     map[string]*counter{},
		hourlyBudget: hourlyBudget,
	}
}

// Record notes one call to the named provider and whether it failed.
func (t *Tracker) Record(name string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.counter(name)
	c.total++
	if failed {
		c.failures++
	}

	now := time.Now()
	if now.Sub(c.hourStart) >= time.Hour {
		c.hourStart = now
		c.hourCount = 0
	}
	c.hourCount++
}

func (t *Tracker) counter(name string) *counter {
	c, ok := t.counters[name]
	if !ok {
		c = &counter{hourStart: time.Now()}
		t.counters[name] = c
	}
	return c
}

// Order returns the providers rearranged by the heuristic. The input slice
// is not modified.
func (t *Tracker) Order(providers []Provider) []Provider {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Provider, len(providers))
	copy(out, providers)

	now := time.Now()
	overBudget := func(p Provider) bool {
		if p.Name() != "nextdns" {
			return false
		}
		c, ok := t.counters[p.Name()]
		if !ok {
			return false
		}
		if now.Sub(c.hourStart) >= time.Hour {
			return false
		}
		return c.hourCount > int64(t.hourlyBudget)
	}
	failureRate := func(p Provider) float64 {
		c, ok := t.counters[p.Name()]
		if !ok || c.total == 0 {
			return 0
		}
		return float64(c.failures) / float64(c.total)
	}

	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := overBudget(out[i]), overBudget(out[j])
		if oi != oj {
			return !oi
		}
		return failureRate(out[i]) < failureRate(out[j])
	})
	return out
}

// Snapshot returns the per-provider totals for status reporting.
func (t *Tracker) Snapshot() map[string]TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]TrackerStats, len(t.counters))
	for name, c := range t.counters {
		out[name] = TrackerStats{
			Total:      c.total,
			Failures:   c.failures,
			HourlyUsed: c.hourCount,
		}
	}
	return out
}

// TrackerStats is a point-in-time view of one provider's counters.
type TrackerStats struct {
	Total      int64 `json:"total"`
	Failures   int64 `json:"failures"`
	HourlyUsed int64 `json:"hourlyUsed"`
}
