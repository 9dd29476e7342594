package selfheal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crucibleai/kernel/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	recallResults []memory.RecallResult
	recallErr     error
	remembered    []memory.MemoryEntry
}

func (f *fakeMemory) Recall(_ context.Context, _ string, _ int) ([]memory.RecallResult, error) {
	return f.recallResults, f.recallErr
}

func (f *fakeMemory) Remember(_ context.Context, entry memory.MemoryEntry) error {
	f.remembered = append(f.remembered, entry)
	return nil
}

type fakeReasoner struct {
	response string
	err      error
}

func (f *fakeReasoner) Reason(_ context.Context, _, _ string) (string, error) {
	return f.response, f.err
}

func noSleep(time.Duration) {}

func newTestEngine(mem MemoryRecaller, reasoner Reasoner) *Engine {
	e := NewEngine(mem, reasoner)
	e.sleepFn = noSleep
	return e
}

func TestEngine_Heal_CriticalErrorNeverHeals(t *testing.T) {
	e := newTestEngine(nil, nil)
	result := e.Heal(context.Background(), errors.New("forbidden: unauthorized"), "api_tool", nil, nil)
	assert.False(t, result.Healed)
	assert.Contains(t, result.Message, "Critical error")
}

func TestEngine_Heal_MemoryFixSucceeds(t *testing.T) {
	mem := &fakeMemory{recallResults: []memory.RecallResult{
		{MemoryEntry: memory.MemoryEntry{Content: "retry with backoff"}},
	}}
	e := newTestEngine(mem, nil)

	calls := 0
	retry := func(context.Context) error {
		calls++
		return nil
	}

	result := e.Heal(context.Background(), errors.New("connection refused"), "http_tool", nil, retry)
	assert.True(t, result.Healed)
	assert.Equal(t, 1, calls)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, "memory", result.Attempts[0].Source)
}

func TestEngine_Heal_LLMFixSucceedsAndLearns(t *testing.T) {
	mem := &fakeMemory{}
	reasoner := &fakeReasoner{response: "1. Retry the request\n2. Check the URL\n3. Increase timeout"}
	e := newTestEngine(mem, reasoner)

	attemptsBeforeSuccess := 0
	retry := func(context.Context) error {
		attemptsBeforeSuccess++
		if attemptsBeforeSuccess < 2 {
			return errors.New("still failing")
		}
		return nil
	}

	result := e.Heal(context.Background(), errors.New("connection refused"), "http_tool", nil, retry)
	assert.True(t, result.Healed)
	require.Len(t, mem.remembered, 1)
	assert.Equal(t, "errors", mem.remembered[0].Category)
}

func TestEngine_Heal_AllFixesFailReturnsFailureMessage(t *testing.T) {
	mem := &fakeMemory{}
	reasoner := &fakeReasoner{response: "1. Try A\n2. Try B\n3. Try C"}
	e := newTestEngine(mem, reasoner)

	retry := func(context.Context) error { return errors.New("nope") }

	result := e.Heal(context.Background(), errors.New("connection refused"), "http_tool", nil, retry)
	assert.False(t, result.Healed)
	assert.Contains(t, result.Message, "Self-heal failed")
	assert.Len(t, result.Attempts, 3)
}

func TestEngine_Heal_SessionBudgetExhausted(t *testing.T) {
	e := newTestEngine(nil, nil)
	e.maxPerSession = 1
	e.sessionRetries = 1

	result := e.Heal(context.Background(), errors.New("connection refused"), "http_tool", nil, nil)
	assert.False(t, result.Healed)
	assert.Contains(t, result.Message, "budget exhausted")
}

func TestEngine_Heal_NoRetryFnOnlySurfacesMessage(t *testing.T) {
	reasoner := &fakeReasoner{response: "1. Try A"}
	e := newTestEngine(nil, reasoner)

	result := e.Heal(context.Background(), errors.New("connection refused"), "http_tool", nil, nil)
	assert.False(t, result.Healed)
	assert.Len(t, result.Attempts, 1)
}

func TestEngine_ResetSession(t *testing.T) {
	e := newTestEngine(nil, nil)
	e.sessionRetries = 5
	e.errorLog = []ClassifiedError{{Category: CategoryNetwork}}

	e.ResetSession()

	stats := e.GetStats()
	assert.Equal(t, 0, stats.SessionRetries)
	assert.Equal(t, 0, stats.TotalErrors)
}

func TestEngine_GetStats_CountsCategories(t *testing.T) {
	e := newTestEngine(nil, nil)
	e.Heal(context.Background(), errors.New("connection refused"), "t1", nil, nil)
	e.Heal(context.Background(), errors.New("connection reset"), "t2", nil, nil)

	stats := e.GetStats()
	assert.Equal(t, 2, stats.TotalErrors)
	assert.Equal(t, 2, stats.Categories[CategoryNetwork])
}
