// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package selfheal implements the 5-step auto-recovery pipeline: classify
// the failing error, probe memory for a previously solved fix, ask the
// LLM to reason about ranked fixes, retry with backoff, and learn from a
// successful fix by storing it back to memory. Security- and data-
// integrity-classified errors are never attempted; they escalate
// immediately.
package selfheal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crucibleai/kernel/pkg/logger"
	"github.com/crucibleai/kernel/pkg/memory"
)

// backoffSeconds is the fixed escalating delay between ranked LLM-fix
// retry attempts.
var backoffSeconds = []int{1, 5, 15}

const (
	maxAttemptsPerError   = 3
	maxRetriesPerSession  = 10
)

// MemoryRecaller is the narrow slice of memory.Store the engine needs to
// probe for and store fixes.
type MemoryRecaller interface {
	Recall(ctx context.Context, query string, topK int) ([]memory.RecallResult, error)
	Remember(ctx context.Context, entry memory.MemoryEntry) error
}

// Reasoner is the narrow LLM surface the engine needs: a single
// system+user prompt round trip with no tool calling.
type Reasoner interface {
	Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RetryFunc re-attempts the operation that originally failed. A nil
// RetryFunc means fixes are only surfaced as messages, never validated.
type RetryFunc func(ctx context.Context) error

// HealAttempt records one candidate fix the engine tried.
type HealAttempt struct {
	FixDescription string
	Source         string // "memory" or "llm"
	Success        bool
	ErrorOnRetry   string
}

// HealResult is the outcome of a full Heal call.
type HealResult struct {
	Healed   bool
	Message  string
	Attempts []HealAttempt
}

// Engine runs the self-heal pipeline against a shared memory store and
// LLM reasoner, with a process-lifetime-bounded retry budget.
type Engine struct {
	mu             sync.Mutex
	memory         MemoryRecaller
	reasoner       Reasoner
	maxPerError    int
	maxPerSession  int
	backoff        []int
	sessionRetries int
	errorLog       []ClassifiedError
	sleepFn        func(d time.Duration)
}

// NewEngine wires an Engine against the shared memory store and LLM
// reasoner. Either may be nil: a nil memory store skips step 2/5, a nil
// reasoner skips step 3 entirely (only the memory-sourced fix, if any,
// is attempted).
func NewEngine(memory MemoryRecaller, reasoner Reasoner) *Engine {
	return &Engine{
		memory:        memory,
		reasoner:      reasoner,
		maxPerError:   maxAttemptsPerError,
		maxPerSession: maxRetriesPerSession,
		backoff:       backoffSeconds,
		sleepFn:       time.Sleep,
	}
}

// ResetSession clears the per-session retry budget and error log. Call
// at the start of a new monologue run.
func (e *Engine) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionRetries = 0
	e.errorLog = nil
}

// Heal runs the full pipeline for a failing tool call. retryFn, if
// non-nil, is invoked to validate each candidate fix; a fix that makes
// retryFn succeed is the one reported as having healed the error.
func (e *Engine) Heal(ctx context.Context, err error, toolName string, toolArgs map[string]any, retryFn RetryFunc) HealResult {
	classified := Classify(err, toolName, toolArgs)

	e.mu.Lock()
	e.errorLog = append(e.errorLog, classified)
	e.mu.Unlock()

	if classified.Severity == SeverityCritical {
		logger.ErrorCF("selfheal", "critical error, not self-healable", map[string]any{
			"category": string(classified.Category),
			"message":  classified.Message,
		})
		return HealResult{
			Healed:  false,
			Message: fmt.Sprintf("Critical error: %s", classified.Message),
		}
	}

	e.mu.Lock()
	if e.sessionRetries >= e.maxPerSession {
		e.mu.Unlock()
		return HealResult{
			Healed:  false,
			Message: fmt.Sprintf("Self-heal session budget exhausted (%d/%d).", e.maxPerSession, e.maxPerSession),
		}
	}
	e.mu.Unlock()

	logger.InfoCF("selfheal", "self-heal started", map[string]any{
		"category": string(classified.Category),
		"message":  classified.Message,
	})

	var attempts []HealAttempt

	// Step 2: check memory for a previously solved fix.
	if fix := e.checkMemory(ctx, classified); fix != "" {
		attempt := HealAttempt{FixDescription: fix, Source: "memory"}
		e.incrementRetries()

		if retryFn != nil {
			if retryErr := retryFn(ctx); retryErr == nil {
				attempt.Success = true
				attempts = append(attempts, attempt)
				logger.InfoCF("selfheal", "self-healed from memory", map[string]any{"fix": truncate(fix, 80)})
				return HealResult{
					Healed:   true,
					Message:  fmt.Sprintf("Self-healed (from memory): %s", truncate(fix, 80)),
					Attempts: attempts,
				}
			} else {
				attempt.ErrorOnRetry = retryErr.Error()
			}
		}
		attempts = append(attempts, attempt)
	}

	// Step 3: LLM-reasoned ranked fixes, tried with escalating backoff.
	fixes := e.reasonFixes(ctx, classified)
	for i, fix := range fixes {
		e.mu.Lock()
		exhausted := e.sessionRetries >= e.maxPerSession
		e.mu.Unlock()
		if exhausted {
			break
		}

		attempt := HealAttempt{FixDescription: fix, Source: "llm"}
		e.incrementRetries()

		backoff := e.backoff[i]
		if i >= len(e.backoff) {
			backoff = e.backoff[len(e.backoff)-1]
		}
		e.sleepFn(time.Duration(backoff) * time.Second)

		if retryFn == nil {
			attempts = append(attempts, attempt)
			continue
		}

		if retryErr := retryFn(ctx); retryErr == nil {
			attempt.Success = true
			attempts = append(attempts, attempt)

			// Step 5: learn from the successful fix.
			e.learn(ctx, classified, fix)

			logger.InfoCF("selfheal", "self-healed via LLM fix", map[string]any{
				"fix_index": i + 1,
				"fix":       truncate(fix, 80),
			})
			return HealResult{
				Healed:   true,
				Message:  fmt.Sprintf("Self-healed (fix #%d): %s", i+1, truncate(fix, 80)),
				Attempts: attempts,
			}
		}
		attempt.ErrorOnRetry = retryErr.Error()
		attempts = append(attempts, attempt)
	}

	logger.ErrorCF("selfheal", "self-heal failed", map[string]any{
		"attempts": len(attempts),
		"message":  classified.Message,
	})
	return HealResult{
		Healed: false,
		Message: fmt.Sprintf(
			"Self-heal failed after %d attempts.\nError: %s\nCategory: %s",
			len(attempts), classified.Message, classified.Category,
		),
		Attempts: attempts,
	}
}

func (e *Engine) incrementRetries() {
	e.mu.Lock()
	e.sessionRetries++
	e.mu.Unlock()
}

func (e *Engine) checkMemory(ctx context.Context, classified ClassifiedError) string {
	if e.memory == nil {
		return ""
	}
	query := fmt.Sprintf("%s error: %s", classified.Category, classified.Message)
	results, err := e.memory.Recall(ctx, query, 3)
	if err != nil || len(results) == 0 {
		return ""
	}
	return results[0].Content
}

func (e *Engine) reasonFixes(ctx context.Context, classified ClassifiedError) []string {
	if e.reasoner == nil {
		return nil
	}
	prompt := fmt.Sprintf(
		"An error occurred during tool execution.\n\nTool: %s\nCategory: %s\nError: %s\n\n"+
			"Suggest exactly 3 possible fixes, ranked from most to least likely. "+
			"For each fix, provide a single actionable sentence. Format: one fix per line, numbered 1-3.",
		classified.ToolName, classified.Category, classified.Message,
	)
	response, err := e.reasoner.Reason(ctx, "You are a debugging assistant. Be concise.", prompt)
	if err != nil {
		return nil
	}

	var fixes []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, convErr := strconv.Atoi(string(line[0])); convErr != nil {
			continue
		}
		fixes = append(fixes, line)
		if len(fixes) == 3 {
			break
		}
	}
	return fixes
}

func (e *Engine) learn(ctx context.Context, classified ClassifiedError, fix string) {
	if e.memory == nil {
		return
	}
	content := fmt.Sprintf(
		"## Self-Healed Error\n**Category:** %s\n**Error:** %s\n**Fix:** %s\n**Tool:** %s\n",
		classified.Category, classified.Message, fix, classified.ToolName,
	)
	_ = e.memory.Remember(ctx, memory.MemoryEntry{
		Content:  content,
		Category: "errors",
		Source:   "self-heal",
	})
}

// Stats summarizes self-heal activity for a status dashboard.
type Stats struct {
	SessionRetries int
	MaxPerSession  int
	TotalErrors    int
	Categories     map[Category]int
}

// GetStats returns a snapshot of the engine's retry budget and error log.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	categories := make(map[Category]int)
	for _, ce := range e.errorLog {
		categories[ce.Category]++
	}
	return Stats{
		SessionRetries: e.sessionRetries,
		MaxPerSession:  e.maxPerSession,
		TotalErrors:    len(e.errorLog),
		Categories:     categories,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
