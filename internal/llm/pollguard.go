package llm

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultPollMaxCount   = 50
	DefaultPollMaxElapsed = 180 * time.Second
	defaultGuardCapacity  = 10000
)

// Guard trip reasons.
const (
	GuardReasonCount   = "count"
	GuardReasonElapsed = "elapsed"
	// 按库中提交时间判断，跨进程生效
	GuardReasonAge = "age"
)

type pollEntry struct {
	count     int
	firstSeen time.Time
}

// PollGuard bounds how long a single request id may be polled. Entries live
// in a size-capped LRU with a TTL so abandoned ids do not accumulate; losing
// an entry only restarts its budget.
type PollGuard struct {
	mu         sync.Mutex
	entries    *expirable.LRU[string, pollEntry]
	maxCount   int
	maxElapsed time.Duration
	now        func() time.Time
}

// GuardOptions configures a PollGuard. Zero values fall back to defaults.
type GuardOptions struct {
	MaxCount   int
	MaxElapsed time.Duration
	Capacity   int
	Now        func() time.Time
}

func NewPollGuard(opts GuardOptions) *PollGuard {
	if opts.MaxCount <= 0 {
		opts.MaxCount = DefaultPollMaxCount
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = DefaultPollMaxElapsed
	}
	if opts.Capacity <= 0 {
		opts.Capacity = defaultGuardCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PollGuard{
		// TTL 取两倍时间上限，超时的条目无论如何都会被判定失败
		entries:    expirable.NewLRU[string, pollEntry](opts.Capacity, nil, 2*opts.MaxElapsed),
		maxCount:   opts.MaxCount,
		maxElapsed: opts.MaxElapsed,
		now:        opts.Now,
	}
}

// Observe records one poll of requestID. It returns a non-empty reason when
// the poll exceeds the count or time ceiling; the entry is cleared then.
func (g *PollGuard) Observe(requestID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	entry, ok := g.entries.Get(requestID)
	if !ok {
		entry = pollEntry{firstSeen: now}
	}
	entry.count++

	switch {
	case entry.count > g.maxCount:
		g.entries.Remove(requestID)
		return GuardReasonCount
	case now.Sub(entry.firstSeen) > g.maxElapsed:
		g.entries.Remove(requestID)
		return GuardReasonElapsed
	}
	g.entries.Add(requestID, entry)
	return ""
}

// Clear forgets requestID, typically once it reached a terminal state.
func (g *PollGuard) Clear(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries.Remove(requestID)
}

// Len reports the number of tracked request ids.
func (g *PollGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entries.Len()
}
