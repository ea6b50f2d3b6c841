package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	mu          sync.Mutex
	transitions map[string]*transitionCounts
}

type transitionCounts struct {
	total  uint64
	failed uint64
}

func New() *Collector {
	return &Collector{transitions: map[string]*transitionCounts{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordTransition counts one evaluation action and whether it failed.
func (c *Collector) RecordTransition(action string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.transitions[action]
	if !ok {
		counts = &transitionCounts{}
		c.transitions[action] = counts
	}
	counts.total++
	if err != nil {
		counts.failed++
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
		"transitions":      c.transitionSnapshot(),
	}
}

type TransitionStat struct {
	Action string `json:"action"`
	Total  uint64 `json:"total"`
	Failed uint64 `json:"failed"`
}

func (c *Collector) transitionSnapshot() []TransitionStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TransitionStat, 0, len(c.transitions))
	for action, counts := range c.transitions {
		out = append(out, TransitionStat{Action: action, Total: counts.total, Failed: counts.failed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}
