// Package ratelimit provides per-category rate limiting for model calls and
// tool executions, plus a daily cost budget and an auth-failure lockout.
//
// Unlike a refilling token bucket, each category keeps an ordered deque of
// the Unix timestamps of its recent requests; checks evict stale entries and
// count what remains. This matches the semantics of systems that need exact
// sliding-window behavior (e.g. "no more than N in any trailing hour") rather
// than smoothed-over-time throughput.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled        bool
	DailyBudgetUSD float64
	Limits         map[string]CategoryLimit
	DefaultLimit   CategoryLimit
}

// CategoryLimit bounds one category's request rate.
type CategoryLimit struct {
	MaxPerMinute int
	MaxPerHour   int // 0 means unbounded
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        false, // off by default for single-user use
		DailyBudgetUSD: 10.0,
		DefaultLimit:   CategoryLimit{MaxPerMinute: 60},
		Limits: map[string]CategoryLimit{
			"global":         {MaxPerMinute: 120},
			"chat_model":     {MaxPerMinute: 30, MaxPerHour: 600},
			"utility_model":  {MaxPerMinute: 60},
			"browser_model":  {MaxPerMinute: 10, MaxPerHour: 120},
			"code_execution": {MaxPerMinute: 20},
			"web_search":     {MaxPerMinute: 10, MaxPerHour: 100},
			"browser_agent":  {MaxPerMinute: 5, MaxPerHour: 60},
		},
	}
}

// Decision is the result of a Check call.
type Decision struct {
	Allowed  bool
	Reason   string
	WaitSecs float64
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string, waitSecs float64) Decision {
	return Decision{Allowed: false, Reason: reason, WaitSecs: waitSecs}
}

type categoryBucket struct {
	mu        sync.Mutex
	timestamps []float64 // seconds since epoch, ascending
}

func (b *categoryBucket) evictBefore(cutoff float64) {
	i := 0
	for i < len(b.timestamps) && b.timestamps[i] < cutoff {
		i++
	}
	if i > 0 {
		b.timestamps = b.timestamps[i:]
	}
}

func (b *categoryBucket) append(ts float64) {
	b.timestamps = append(b.timestamps, ts)
}

func (b *categoryBucket) countSince(cutoff float64) int {
	n := 0
	for i := len(b.timestamps) - 1; i >= 0; i-- {
		if b.timestamps[i] < cutoff {
			break
		}
		n++
	}
	return n
}

// Limiter implements the per-category deque rate limiter.
type Limiter struct {
	mu       sync.Mutex
	config   Config
	buckets  map[string]*categoryBucket
	auth     map[string]*categoryBucket
	nowFn    func() time.Time
	dailyCost     float64
	dailyResetAt  time.Time
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	if config.Limits == nil {
		config.Limits = map[string]CategoryLimit{}
	}
	return &Limiter{
		config:       config,
		buckets:      make(map[string]*categoryBucket),
		auth:         make(map[string]*categoryBucket),
		nowFn:        time.Now,
		dailyResetAt: time.Now(),
	}
}

func (l *Limiter) bucket(category string) *categoryBucket {
	b, ok := l.buckets[category]
	if !ok {
		b = &categoryBucket{}
		l.buckets[category] = b
	}
	return b
}

func (l *Limiter) limitFor(category string) CategoryLimit {
	if lim, ok := l.config.Limits[category]; ok {
		return lim
	}
	return l.config.DefaultLimit
}

func (l *Limiter) maybeResetDailyCost(now time.Time) {
	if now.Sub(l.dailyResetAt) >= 24*time.Hour {
		l.dailyCost = 0
		l.dailyResetAt = now
	}
}

// Check evaluates whether a request in the given category is currently
// allowed. It recurses into the "global" category unless already checking
// it, per the algorithm's step (f).
func (l *Limiter) Check(category string) Decision {
	return l.check(category, false)
}

func (l *Limiter) check(category string, checkingGlobal bool) Decision {
	if !l.config.Enabled {
		return allow()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	nowSecs := float64(now.Unix())

	l.maybeResetDailyCost(now)
	if l.config.DailyBudgetUSD > 0 && l.dailyCost >= l.config.DailyBudgetUSD {
		return deny("daily_budget_exceeded", 0)
	}

	b := l.bucket(category)
	b.evictBefore(nowSecs - 3600)

	limit := l.limitFor(category)

	countLastMinute := b.countSince(nowSecs - 60)
	if limit.MaxPerMinute > 0 && countLastMinute >= limit.MaxPerMinute {
		oldest := nowSecs
		if len(b.timestamps) > 0 {
			oldest = b.timestamps[len(b.timestamps)-countLastMinute]
		}
		wait := 60 - (nowSecs - oldest)
		if wait < 0 {
			wait = 0
		}
		return deny("rate_limited:"+category, wait)
	}

	if limit.MaxPerHour > 0 && len(b.timestamps) >= limit.MaxPerHour {
		return deny("hourly_limit:"+category, 0)
	}

	if !checkingGlobal && category != "global" {
		if d := l.check("global", true); !d.Allowed {
			return d
		}
	}

	return allow()
}

// Record notes that a request in category was made, with an optional cost in
// USD charged against the daily budget. It also records against "global".
func (l *Limiter) Record(category string, costUSD float64) {
	if !l.config.Enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	nowSecs := float64(now.Unix())

	l.maybeResetDailyCost(now)
	l.dailyCost += costUSD

	l.bucket(category).append(nowSecs)
	if category != "global" {
		l.bucket("global").append(nowSecs)
	}
}

// Status summarizes utilization for one category, for dashboards.
type Status struct {
	Category        string
	CountLastMinute int
	MaxPerMinute    int
	CountLastHour   int
	MaxPerHour      int
	DailyCostUSD    float64
	DailyBudgetUSD  float64
}

// GetStatus returns current utilization for a category.
func (l *Limiter) GetStatus(category string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := float64(l.nowFn().Unix())
	b := l.bucket(category)
	b.evictBefore(now - 3600)
	limit := l.limitFor(category)

	return Status{
		Category:        category,
		CountLastMinute: b.countSince(now - 60),
		MaxPerMinute:    limit.MaxPerMinute,
		CountLastHour:   len(b.timestamps),
		MaxPerHour:      limit.MaxPerHour,
		DailyCostUSD:    l.dailyCost,
		DailyBudgetUSD:  l.config.DailyBudgetUSD,
	}
}

// Reset clears all buckets and daily cost tracking.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*categoryBucket)
	l.dailyCost = 0
	l.dailyResetAt = l.nowFn()
}

// SetConfig replaces the limiter configuration in place.
func (l *Limiter) SetConfig(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if config.Limits == nil {
		config.Limits = map[string]CategoryLimit{}
	}
	l.config = config
}

const (
	authLockoutAttempts = 5
	authLockoutWindow   = 900.0 // seconds
)

// RecordAuthFailure appends a failed-auth timestamp for client_id.
func (l *Limiter) RecordAuthFailure(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.auth[clientID]
	if !ok {
		b = &categoryBucket{}
		l.auth[clientID] = b
	}
	now := float64(l.nowFn().Unix())
	b.evictBefore(now - authLockoutWindow)
	b.append(now)
}

// CheckAuthLockout reports whether client_id is currently locked out, and if
// so, how many seconds until the lockout clears.
func (l *Limiter) CheckAuthLockout(clientID string) (locked bool, retryAfterSecs float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.auth[clientID]
	if !ok {
		return false, 0
	}
	now := float64(l.nowFn().Unix())
	b.evictBefore(now - authLockoutWindow)
	if len(b.timestamps) < authLockoutAttempts {
		return false, 0
	}
	oldest := b.timestamps[0]
	retry := authLockoutWindow - (now - oldest)
	if retry < 0 {
		retry = 0
	}
	return true, retry
}

// RecordAuthSuccess clears the failure bucket for client_id.
func (l *Limiter) RecordAuthSuccess(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.auth, clientID)
}

// Global rate limiter instance, used by leaf callers that have no access to
// a constructed Kernel (matches the teacher's narrow global-singleton
// carve-out for pure-function convenience wrappers).
var (
	globalLimiter *Limiter
	globalOnce    sync.Once
)

// InitGlobal initializes the global rate limiter.
func InitGlobal(config Config) {
	globalOnce.Do(func() {
		globalLimiter = NewLimiter(config)
	})
}

// Allow checks the global limiter's "global" category.
func Allow() bool {
	if globalLimiter == nil {
		return true
	}
	return globalLimiter.Check("global").Allowed
}

// GetGlobalStatus reports status from the global limiter.
func GetGlobalStatus(category string) Status {
	if globalLimiter == nil {
		return Status{Category: category}
	}
	return globalLimiter.GetStatus(category)
}
