package transcription

import (
	"sync"
	"time"
)

type failureEntry struct {
	count       int
	permanent   bool
	lastFailure time.Time
	reason      string
}

// FailureCache remembers audio URLs that failed so the process stops hammering
// them. It is process local; other workers rediscover failures on their own.
type FailureCache struct {
	mu          sync.Mutex
	entries     map[string]*failureEntry
	cooldown    time.Duration
	maxFailures int
	now         func() time.Time
}

func NewFailureCache(cooldown time.Duration, maxFailures int, now func() time.Time) *FailureCache {
	if now == nil {
		now = time.Now
	}
	return &FailureCache{
		entries:     map[string]*failureEntry{},
		cooldown:    cooldown,
		maxFailures: maxFailures,
		now:         now,
	}
}

// ShouldSkip reports whether url must not be attempted now: it failed
// permanently, failed maxFailures times, or failed within the cooldown.
func (c *FailureCache) ShouldSkip(url string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[url]
	if e == nil {
		return false, ""
	}
	switch {
	case e.permanent:
		return true, "permanent failure: " + e.reason
	case c.maxFailures > 0 && e.count >= c.maxFailures:
		return true, "failure limit reached: " + e.reason
	case c.cooldown > 0 && c.now().Sub(e.lastFailure) < c.cooldown:
		return true, "in cooldown after failure: " + e.reason
	}
	return false, ""
}

func (c *FailureCache) RecordFailure(url string, permanent bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[url]
	if e == nil {
		e = &failureEntry{}
		c.entries[url] = e
	}
	e.count++
	e.permanent = e.permanent || permanent
	e.lastFailure = c.now()
	e.reason = reason
}

// Seed loads failure state persisted on an episode row.
func (c *FailureCache) Seed(url string, count int, permanent bool, last time.Time, reason string) {
	if count <= 0 && !permanent {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[url]
	if e == nil {
		e = &failureEntry{}
		c.entries[url] = e
	}
	if count > e.count {
		e.count = count
	}
	e.permanent = e.permanent || permanent
	if last.After(e.lastFailure) {
		e.lastFailure = last
	}
	if e.reason == "" {
		e.reason = reason
	}
}

func (c *FailureCache) RecordSuccess(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

// Prune drops entries whose last failure is older than retention.
func (c *FailureCache) Prune(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-retention)
	n := 0
	for url, e := range c.entries {
		if e.lastFailure.Before(cutoff) {
			delete(c.entries, url)
			n++
		}
	}
	return n
}

func (c *FailureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
