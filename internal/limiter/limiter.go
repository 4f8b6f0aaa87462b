// Package limiter implements a keyed sliding-window rate limiter on top
// of the store's window primitives.
package limiter

import (
	"context"
	"time"

	"github.com/newroots/portfolio/internal/store"
)

// Rule is one (count, window) budget, e.g. "3 resends per 2 minutes".
type Rule struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

// Limiter checks named rules against per-key sliding windows. State
// lives in the store, so limits hold across restarts and instances.
type Limiter struct {
	store store.Store
	rules map[string]Rule

	now func() time.Time
}

// New returns a Limiter with the given named rules. Unknown or
// zero-valued rules are treated as unlimited.
func New(st store.Store, rules map[string]Rule) *Limiter {
	return &Limiter{
		store: st,
		rules: rules,
		now:   time.Now,
	}
}

// Allow checks the window for (rule, key). When under budget it records
// the hit and returns true. When over budget it returns false and a
// retry-after hint derived from the oldest hit still in the window.
func (l *Limiter) Allow(ctx context.Context, rule, key string) (bool, time.Duration, error) {
	r, ok := l.rules[rule]
	if !ok || r.Max <= 0 || r.Window <= 0 {
		return true, 0, nil
	}

	var (
		now  = l.now()
		wkey = rule + ":" + key
	)

	count, oldest, err := l.store.WindowCount(ctx, wkey, now.Add(-r.Window))
	if err != nil {
		return false, 0, err
	}

	if count >= r.Max {
		retry := oldest.Add(r.Window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry, nil
	}

	if err := l.store.WindowAppend(ctx, wkey, now, r.Window); err != nil {
		return false, 0, err
	}

	return true, 0, nil
}
