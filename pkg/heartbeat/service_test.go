package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/crucibleai/kernel/pkg/memory"
	"github.com/crucibleai/kernel/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemoryStore struct {
	mu          sync.Mutex
	available   bool
	connectErr  error
	connectHits int
}

func (f *fakeMemoryStore) IsAvailable() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.available }
func (f *fakeMemoryStore) Count() int        { return 0 }
func (f *fakeMemoryStore) Remember(_ context.Context, _ memory.MemoryEntry) error { return nil }
func (f *fakeMemoryStore) Recall(_ context.Context, _ string, _ int) ([]memory.RecallResult, error) {
	return nil, nil
}
func (f *fakeMemoryStore) Delete(_ context.Context, _ string) error { return nil }
func (f *fakeMemoryStore) Stats(_ context.Context) memory.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return memory.Stats{Available: f.available}
}
func (f *fakeMemoryStore) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectHits++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.available = true
	return nil
}

type fakeCheckpointer struct {
	mu       sync.Mutex
	saveHits int
	saveErr  error
}

func (f *fakeCheckpointer) SaveEmergency(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveHits++
	return f.saveErr
}

func newTestMonitor(t *testing.T, mem memory.Store, cp Checkpointer, alertFn AlertFunc) *HeartbeatMonitor {
	t.Helper()
	cfg := Config{Enabled: true, IntervalSeconds: 1, StallTimeoutSecs: 1, ReconnectInterval: 1}
	m := NewHeartbeatMonitor(cfg, mem, ratelimit.NewLimiter(ratelimit.DefaultConfig()), cp, alertFn)
	return m
}

func TestHeartbeatMonitor_CheckHealth_AliveWithinStallTimeout(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	record := m.checkHealth(context.Background())
	assert.True(t, record.AgentAlive)
}

func TestHeartbeatMonitor_CheckHealth_StalledAfterTimeout(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	m.lastActivity = time.Now().Add(-10 * time.Second)
	record := m.checkHealth(context.Background())
	assert.False(t, record.AgentAlive)
}

func TestHeartbeatMonitor_HandleStall_SavesCheckpointAndAlerts(t *testing.T) {
	cp := &fakeCheckpointer{}
	var alerted string
	m := newTestMonitor(t, nil, cp, func(msg string) { alerted = msg })

	record := HealthRecord{LastActivityAgo: 5 * time.Second}
	m.handleStall(context.Background(), record)

	cp.mu.Lock()
	defer cp.mu.Unlock()
	assert.Equal(t, 1, cp.saveHits)
	assert.Contains(t, alerted, "stall")
}

func TestHeartbeatMonitor_HandleMemoryIssue_ReconnectsOncePerInterval(t *testing.T) {
	mem := &fakeMemoryStore{available: false}
	m := newTestMonitor(t, mem, nil, nil)

	m.handleMemoryIssue(context.Background())
	m.handleMemoryIssue(context.Background())

	mem.mu.Lock()
	defer mem.mu.Unlock()
	assert.Equal(t, 1, mem.connectHits, "reconnect must be gated by reconnect_interval_s")
}

func TestHeartbeatMonitor_HistoryBoundedAt100(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	for i := 0; i < 150; i++ {
		m.history = append(m.history, HealthRecord{Timestamp: time.Now()})
	}
	got := m.History(0)
	assert.Len(t, got, maxHealthHistory)
}

func TestHeartbeatMonitor_Uptime_NoHistory(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	stats := m.Uptime()
	assert.Equal(t, 0, stats.Checks)
	assert.Equal(t, 100.0, stats.UptimePct)
}

func TestHeartbeatMonitor_Uptime_ComputesPercentages(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	m.history = []HealthRecord{
		{AgentAlive: true, MemoryHealthy: true},
		{AgentAlive: true, MemoryHealthy: false},
		{AgentAlive: false, MemoryHealthy: true},
		{AgentAlive: true, MemoryHealthy: true},
	}
	stats := m.Uptime()
	assert.Equal(t, 4, stats.Checks)
	assert.InDelta(t, 75.0, stats.UptimePct, 0.01)
	assert.InDelta(t, 75.0, stats.MemoryUptimePct, 0.01)
}

func TestHeartbeatMonitor_StartStop(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	time.Sleep(1200 * time.Millisecond)
	m.Stop()

	assert.NotEmpty(t, m.History(0), "at least one tick should have run")
}

func TestHeartbeatMonitor_DisabledNeverTicks(t *testing.T) {
	cfg := Config{Enabled: false, IntervalSeconds: 1, StallTimeoutSecs: 1}
	m := NewHeartbeatMonitor(cfg, nil, nil, nil, nil)

	require.NoError(t, m.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, m.History(0))
}

func TestHeartbeatMonitor_UpdateActivityResetsStallClock(t *testing.T) {
	m := newTestMonitor(t, nil, nil, nil)
	m.lastActivity = time.Now().Add(-10 * time.Second)
	m.UpdateActivity()

	record := m.checkHealth(context.Background())
	assert.True(t, record.AgentAlive)
}

func TestHeartbeatMonitor_AlertPanicIsSwallowed(t *testing.T) {
	m := newTestMonitor(t, nil, nil, func(string) { panic("boom") })
	assert.NotPanics(t, func() {
		m.sendAlert("test")
	})
}
