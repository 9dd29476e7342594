package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crucibleai/kernel/pkg/logger"
)

// SecurityBlocked is the sentinel return value an extension returns at the
// tool_execute_after hook to veto a tool's result.
const SecurityBlocked = "SECURITY_BLOCKED"

// ExtensionFunc mirrors the original scripting contract: an extension
// receives a context and a hook-specific keyword map, and may return a
// string that some hooks interpret specially (system_prompt accumulates it;
// tool_execute_after treats the literal SecurityBlocked as a veto).
type ExtensionFunc func(ctx context.Context, agent any, data map[string]any) (string, error)

type extensionEntry struct {
	name   string
	order  int
	fn     ExtensionFunc
}

// ExtensionPipeline is a load-ordered map of hook name to extension
// functions. Every hook fires its extensions strictly sequentially — no
// extension ever runs concurrently with another, and an extension that
// panics or returns an error is logged and swallowed rather than propagated.
type ExtensionPipeline struct {
	mu       sync.Mutex
	handlers map[string][]extensionEntry
	seq      int
}

// HookNames lists every hook point the monologue engine fires, in the order
// they appear across one full iteration of the loop.
var HookNames = []string{
	"agent_init",
	"system_prompt",
	"monologue_start",
	"message_loop_start",
	"message_loop_prompts_before",
	"message_loop_prompts_after",
	"before_main_llm_call",
	"response_stream_chunk",
	"tool_execute_before",
	"tool_execute_after",
	"hist_add_tool_result",
	"message_loop_end",
	"process_chain_end",
	"monologue_end",
	"error_format",
}

// NewExtensionPipeline creates an empty pipeline.
func NewExtensionPipeline() *ExtensionPipeline {
	return &ExtensionPipeline{handlers: make(map[string][]extensionEntry)}
}

// Register adds an extension function under the given hook name. Extensions
// registered earlier for the same hook run first (stable load order).
func (p *ExtensionPipeline) Register(hookName, extensionName string, fn ExtensionFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	entries := p.handlers[hookName]
	entries = append(entries, extensionEntry{name: extensionName, order: p.seq, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	p.handlers[hookName] = entries
}

// Fire invokes every extension registered for hookName, in load order,
// sequentially, and collects their non-empty string return values. Extension
// panics and errors are logged and swallowed; they never abort the run or
// propagate to the caller.
func (p *ExtensionPipeline) Fire(ctx context.Context, hookName string, agent any, data map[string]any) []string {
	p.mu.Lock()
	entries := append([]extensionEntry(nil), p.handlers[hookName]...)
	p.mu.Unlock()

	var results []string
	for _, e := range entries {
		result := p.runOne(ctx, hookName, e, agent, data)
		if result != "" {
			results = append(results, result)
		}
	}
	return results
}

func (p *ExtensionPipeline) runOne(ctx context.Context, hookName string, e extensionEntry, agent any, data map[string]any) (result string) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("hooks", "extension panic", map[string]any{
				"hook":      hookName,
				"extension": e.name,
				"panic":     fmt.Sprintf("%v", r),
			})
			result = ""
		}
	}()
	out, err := e.fn(ctx, agent, data)
	if err != nil {
		logger.WarnCF("hooks", "extension error", map[string]any{
			"hook":      hookName,
			"extension": e.name,
			"error":     err.Error(),
		})
		return ""
	}
	return out
}

// FireSystemPrompt fires system_prompt extensions and folds their returned
// strings into the accumulator: any extension that returns a non-empty
// string replaces the running accumulator value, matching the "any returned
// string replaces the accumulator" contract.
func (p *ExtensionPipeline) FireSystemPrompt(ctx context.Context, agent any, base string) string {
	p.mu.Lock()
	entries := append([]extensionEntry(nil), p.handlers["system_prompt"]...)
	p.mu.Unlock()

	acc := base
	for _, e := range entries {
		result := p.runOne(ctx, "system_prompt", e, agent, map[string]any{"system_prompt": acc})
		if result != "" {
			acc = result
		}
	}
	return acc
}

// FireToolExecuteAfter fires tool_execute_after extensions and reports
// whether any of them vetoed the tool result via the SecurityBlocked
// sentinel.
func (p *ExtensionPipeline) FireToolExecuteAfter(ctx context.Context, agent any, data map[string]any) (blocked bool) {
	results := p.Fire(ctx, "tool_execute_after", agent, data)
	for _, r := range results {
		if r == SecurityBlocked {
			return true
		}
	}
	return false
}
