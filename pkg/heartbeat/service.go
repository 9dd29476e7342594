package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/crucibleai/kernel/pkg/logger"
	"github.com/crucibleai/kernel/pkg/memory"
	"github.com/crucibleai/kernel/pkg/ratelimit"
)

const (
	defaultIntervalSeconds        = 30
	defaultStallTimeoutSeconds    = 120
	defaultReconnectIntervalSecs  = 300
	maxHealthHistory              = 100
)

// Checkpointer is the narrow slice of CheckpointManager the monitor needs:
// an emergency save triggered on stall detection.
type Checkpointer interface {
	SaveEmergency(ctx context.Context) error
}

// AlertFunc delivers a human-readable alert string through whatever
// adapters are currently connected. Errors are swallowed — an alert
// delivery failure must never crash the monitor loop.
type AlertFunc func(message string)

// HealthRecord is one tick's health snapshot, appended to a bounded ring.
type HealthRecord struct {
	Timestamp       time.Time
	AgentAlive      bool
	LastActivityAgo time.Duration
	MemoryHealthy   bool
	MemoryCount     int
	BudgetOK        bool
	BudgetRemaining float64
}

// UptimeStats summarizes HealthRecord history.
type UptimeStats struct {
	Checks           int
	UptimePct        float64
	MemoryUptimePct  float64
	LastCheck        *HealthRecord
}

// HeartbeatMonitor is the periodic liveness and subsystem-health loop:
// it detects a stalled monologue, triggers an emergency checkpoint and
// alert, and reconnects a disconnected memory backend no more often than
// reconnect_interval_s.
type HeartbeatMonitor struct {
	mu sync.Mutex

	enabled           bool
	intervalSeconds   int
	stallTimeout      time.Duration
	reconnectInterval time.Duration

	memoryStore  memory.Store
	rateLimiter  *ratelimit.Limiter
	checkpointer Checkpointer
	alertFn      AlertFunc
	nowFn        func() time.Time

	lastActivity       time.Time
	lastReconnectAt    time.Time
	history            []HealthRecord

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// Config configures a HeartbeatMonitor. Zero values fall back to the
// spec's documented defaults (30s interval, 120s stall timeout, 300s
// reconnect interval).
type Config struct {
	Enabled           bool
	IntervalSeconds   int
	StallTimeoutSecs  int
	ReconnectInterval int
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		IntervalSeconds:   defaultIntervalSeconds,
		StallTimeoutSecs:  defaultStallTimeoutSeconds,
		ReconnectInterval: defaultReconnectIntervalSecs,
	}
}

// NewHeartbeatMonitor wires a monitor against the shared memory store, rate
// limiter, and checkpoint manager. alertFn may be nil.
func NewHeartbeatMonitor(cfg Config, memoryStore memory.Store, rateLimiter *ratelimit.Limiter, checkpointer Checkpointer, alertFn AlertFunc) *HeartbeatMonitor {
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = defaultIntervalSeconds
	}
	if cfg.StallTimeoutSecs <= 0 {
		cfg.StallTimeoutSecs = defaultStallTimeoutSeconds
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectIntervalSecs
	}

	return &HeartbeatMonitor{
		enabled:           cfg.Enabled,
		intervalSeconds:   cfg.IntervalSeconds,
		stallTimeout:      time.Duration(cfg.StallTimeoutSecs) * time.Second,
		reconnectInterval: time.Duration(cfg.ReconnectInterval) * time.Second,
		memoryStore:       memoryStore,
		rateLimiter:       rateLimiter,
		checkpointer:      checkpointer,
		alertFn:           alertFn,
		nowFn:             time.Now,
		lastActivity:      time.Now(),
	}
}

// UpdateActivity is called by the monologue loop to signal it is alive.
func (h *HeartbeatMonitor) UpdateActivity() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity = h.nowFn()
}

// Start begins the tick loop on a background goroutine. A disabled monitor
// returns nil immediately and never ticks.
func (h *HeartbeatMonitor) Start(ctx context.Context) error {
	if !h.enabled {
		return nil
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.stopChan = make(chan struct{})
	stopChan := h.stopChan
	h.mu.Unlock()

	h.wg.Add(1)
	go h.loop(ctx, stopChan)

	logger.InfoCF("heartbeat", "heartbeat monitor started", map[string]any{
		"interval_s":      h.intervalSeconds,
		"stall_timeout_s": int(h.stallTimeout.Seconds()),
	})
	return nil
}

// Stop halts the tick loop and waits for it to exit.
func (h *HeartbeatMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopChan)
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *HeartbeatMonitor) loop(ctx context.Context, stopChan chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(time.Duration(h.intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *HeartbeatMonitor) tick(ctx context.Context) {
	record := h.checkHealth(ctx)

	h.mu.Lock()
	h.history = append(h.history, record)
	if len(h.history) > maxHealthHistory {
		h.history = h.history[len(h.history)-maxHealthHistory:]
	}
	h.mu.Unlock()

	if !record.AgentAlive {
		h.handleStall(ctx, record)
	}
	if !record.MemoryHealthy {
		h.handleMemoryIssue(ctx)
	}
}

func (h *HeartbeatMonitor) checkHealth(ctx context.Context) HealthRecord {
	h.mu.Lock()
	lastActivity := h.lastActivity
	h.mu.Unlock()

	now := h.nowFn()
	age := now.Sub(lastActivity)

	record := HealthRecord{
		Timestamp:       now,
		AgentAlive:      age < h.stallTimeout,
		LastActivityAgo: age,
		MemoryHealthy:   true,
		BudgetOK:        true,
	}

	if h.memoryStore != nil {
		stats := h.memoryStore.Stats(ctx)
		record.MemoryHealthy = stats.Available
		record.MemoryCount = stats.Count
	}

	if h.rateLimiter != nil {
		status := h.rateLimiter.GetStatus("global")
		remaining := status.DailyBudgetUSD - status.DailyCostUSD
		record.BudgetRemaining = remaining
		record.BudgetOK = remaining > 0
	}

	return record
}

func (h *HeartbeatMonitor) handleStall(ctx context.Context, record HealthRecord) {
	logger.WarnCF("heartbeat", "agent stall detected", map[string]any{
		"last_activity_ago_s": record.LastActivityAgo.Seconds(),
		"stall_timeout_s":     h.stallTimeout.Seconds(),
	})

	if h.checkpointer != nil {
		if err := h.checkpointer.SaveEmergency(ctx); err != nil {
			logger.ErrorCF("heartbeat", "emergency checkpoint failed", map[string]any{"error": err.Error()})
		} else {
			logger.InfoCF("heartbeat", "emergency checkpoint saved", nil)
		}
	}

	h.sendAlert("Agent stall detected: no activity in over " +
		h.stallTimeout.String() + ". Attempting recovery.")

	// Reset the activity timestamp to prevent an alert flood every tick
	// until something actually resumes the loop.
	h.mu.Lock()
	h.lastActivity = h.nowFn()
	h.mu.Unlock()
}

func (h *HeartbeatMonitor) handleMemoryIssue(ctx context.Context) {
	h.mu.Lock()
	sinceLast := h.nowFn().Sub(h.lastReconnectAt)
	if sinceLast < h.reconnectInterval {
		h.mu.Unlock()
		return
	}
	h.lastReconnectAt = h.nowFn()
	h.mu.Unlock()

	if h.memoryStore == nil {
		return
	}

	if err := h.memoryStore.Connect(ctx); err != nil {
		logger.WarnCF("heartbeat", "memory store reconnect failed", map[string]any{"error": err.Error()})
		return
	}
	logger.InfoCF("heartbeat", "memory store reconnected", nil)
}

func (h *HeartbeatMonitor) sendAlert(message string) {
	if h.alertFn == nil {
		return
	}
	defer func() { _ = recover() }()
	h.alertFn(message)
}

// History returns up to limit most-recent health records, newest last.
func (h *HeartbeatMonitor) History(limit int) []HealthRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]HealthRecord, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// Uptime computes agent and memory uptime percentages from history.
func (h *HeartbeatMonitor) Uptime() UptimeStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.history) == 0 {
		return UptimeStats{UptimePct: 100.0, MemoryUptimePct: 100.0}
	}

	var alive, memOK int
	for _, r := range h.history {
		if r.AgentAlive {
			alive++
		}
		if r.MemoryHealthy {
			memOK++
		}
	}

	total := len(h.history)
	last := h.history[total-1]
	return UptimeStats{
		Checks:          total,
		UptimePct:       roundPct(alive, total),
		MemoryUptimePct: roundPct(memOK, total),
		LastCheck:       &last,
	}
}

func roundPct(part, total int) float64 {
	if total == 0 {
		return 100.0
	}
	pct := float64(part) / float64(total) * 100.0
	return float64(int(pct*10+0.5)) / 10
}
