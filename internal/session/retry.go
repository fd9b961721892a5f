package session

import "time"

// retry schedules re-sends of one unacknowledged message.
type retry struct {
	interval time.Duration
	max      int // 0 means unlimited

	attempts int
	next     time.Time
}

func newRetry(cfg Config) retry {
	return retry{interval: cfg.RetryInterval, max: cfg.MaxAttempts}
}

// due reports whether a send should happen at now. The first send is always
// due.
func (r *retry) due(now time.Time) bool {
	return r.attempts == 0 || !now.Before(r.next)
}

// fire records a send at now. It returns false once max sends have gone
// unanswered.
func (r *retry) fire(now time.Time) bool {
	if r.max > 0 && r.attempts >= r.max {
		return false
	}
	r.attempts++
	r.next = now.Add(r.interval)
	return true
}
