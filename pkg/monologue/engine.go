package monologue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crucibleai/kernel/pkg/checkpoint"
	"github.com/crucibleai/kernel/pkg/hooks"
	"github.com/crucibleai/kernel/pkg/logger"
	"github.com/crucibleai/kernel/pkg/progress"
	"github.com/crucibleai/kernel/pkg/providers"
	"github.com/crucibleai/kernel/pkg/ratelimit"
	"github.com/crucibleai/kernel/pkg/selfheal"
)

const (
	maxApologyMessage  = "I've reached my maximum number of steps. Let me summarize what I've done so far."
	securityBlockedMsg = "⚠️ Security scanner blocked this action. Please try a safer approach."
	criticalErrorLabel = "🚫 Critical error: "
)

// RepairableError is a tool or transport failure worth routing through
// SelfHealEngine before giving up.
type RepairableError struct{ Err error }

func (e *RepairableError) Error() string { return e.Err.Error() }
func (e *RepairableError) Unwrap() error { return e.Err }

// CriticalError is a failure severe enough to allow only one retry before
// aborting the whole monologue.
type CriticalError struct{ Err error }

func (e *CriticalError) Error() string { return e.Err.Error() }
func (e *CriticalError) Unwrap() error { return e.Err }

// ModelRouter is the narrow LLM surface the engine drives: one chat
// round trip per iteration, with a callback fired per streamed chunk.
// Provider selection, fallback, and key rotation all live behind this
// port, not in the monologue engine.
type ModelRouter interface {
	Chat(ctx context.Context, messages []providers.Message, streamCallback func(chunk string)) (string, error)
}

// HeartbeatSignal is the narrow heartbeat surface the engine pings on
// every iteration.
type HeartbeatSignal interface {
	UpdateActivity()
}

// Config holds the engine's tunables. Zero-valued fields fall back to the
// documented defaults in NewEngine.
type Config struct {
	MaxIterations           int
	CheckpointIntervalSteps int
	RepeatDetectionEnabled  bool
}

// DefaultConfig returns the engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:           25,
		CheckpointIntervalSteps: 3,
		RepeatDetectionEnabled:  true,
	}
}

// Engine drives one AgentContext's conversation through the
// thought-tool-observation loop: LLM call, tool dispatch, repeat
// detection, checkpoint cadence, and controlled termination.
type Engine struct {
	config Config

	router       ModelRouter
	resolver     *Resolver
	hookPipe     *hooks.ExtensionPipeline
	limiter      *ratelimit.Limiter
	healer       *selfheal.Engine
	checkpoint   *checkpoint.Manager
	tracker      *progress.Tracker
	heartbeat    HeartbeatSignal
	systemPrompt func() string

	mu      sync.Mutex
	running bool
	history []providers.Message
	state   IterationState
	ctx     *AgentContext

	sleepFn func(time.Duration)
}

// NewEngine wires an Engine. router, resolver, and hookPipe must be
// non-nil; limiter, healer, checkpoint, tracker, and heartbeat may be nil
// to disable their respective steps.
func NewEngine(
	config Config,
	router ModelRouter,
	resolver *Resolver,
	hookPipe *hooks.ExtensionPipeline,
	limiter *ratelimit.Limiter,
	healer *selfheal.Engine,
	cp *checkpoint.Manager,
	tracker *progress.Tracker,
	heartbeat HeartbeatSignal,
	systemPrompt func() string,
) *Engine {
	if config.MaxIterations == 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.CheckpointIntervalSteps == 0 {
		config.CheckpointIntervalSteps = DefaultConfig().CheckpointIntervalSteps
	}
	return &Engine{
		config:       config,
		router:       router,
		resolver:     resolver,
		hookPipe:     hookPipe,
		limiter:      limiter,
		healer:       healer,
		checkpoint:   cp,
		tracker:      tracker,
		heartbeat:    heartbeat,
		systemPrompt: systemPrompt,
		sleepFn:      time.Sleep,
	}
}

// RestoreCheckpoint satisfies checkpoint.Restorable: it seeds history,
// iteration count, last response, and room ID from a saved snapshot ahead
// of the next Run.
func (e *Engine) RestoreCheckpoint(history []providers.Message, iteration int, lastResponse, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append([]providers.Message(nil), history...)
	e.state.IterationCount = iteration
	e.state.LastResponse = lastResponse
}

// Cancel stops the engine at the next loop boundary. It does not save a
// checkpoint.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}

// Run drives userMessage through the double loop to a final response: the
// text passed to break_loop, or a fixed summary if the iteration cap was
// reached.
func (e *Engine) Run(ctx context.Context, agentCtx *AgentContext, userMessage string) string {
	e.mu.Lock()
	e.running = true
	e.ctx = agentCtx
	e.state = IterationState{StartTime: time.Now()}
	e.history = append(e.history, providers.Message{Role: "user", Content: userMessage})
	e.mu.Unlock()

	e.fire(ctx, "monologue_start", map[string]any{"user_message": userMessage})
	if e.tracker != nil {
		e.tracker.Plan(agentCtx.RoomID, truncateRunes(fmt.Sprintf("Processing: %s...", userMessage), 100), nil)
	}
	logger.InfoCF("monologue", "user message", map[string]any{
		"room":    agentCtx.RoomID,
		"adapter": agentCtx.AdapterName,
	})
	logger.LogEvent(logger.EventUserMessage, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"message": userMessage}, 0, 0)

	criticalRetries := 0
	var final string

	defer func() {
		e.mu.Lock()
		e.running = false
		iterations := e.state.IterationCount
		historyLen := len(e.history)
		total := e.state.TotalIterations
		e.mu.Unlock()

		e.fire(ctx, "process_chain_end", nil)
		logger.InfoCF("monologue", "agent complete", map[string]any{
			"iterations":       iterations,
			"history_length":   historyLen,
			"total_iterations": total,
		})
		logger.LogEvent(logger.EventAgentComplete, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{
			"iterations":     iterations,
			"history_length": historyLen,
		}, 0, 0)
	}()

outer:
	for e.isRunning() {
		result, resetForIntervention := e.runInner(ctx, agentCtx, &criticalRetries)
		if resetForIntervention {
			continue outer
		}
		final = result
		break
	}
	return final
}

// runInner runs the inner LLM-call/tool-dispatch loop until it returns a
// final answer, hits an intervention (signalled by the second return
// value), or the engine is cancelled.
func (e *Engine) runInner(ctx context.Context, agentCtx *AgentContext, criticalRetries *int) (string, bool) {
	for e.isRunning() {
		e.mu.Lock()
		e.state.IterationCount++
		e.state.TotalIterations++
		iteration := e.state.IterationCount
		e.mu.Unlock()

		if e.heartbeat != nil {
			e.heartbeat.UpdateActivity()
		}

		if iteration > e.config.MaxIterations {
			logger.WarnCF("monologue", "max iterations reached", map[string]any{"iteration": iteration})
			return maxApologyMessage, false
		}

		if e.limiter != nil {
			decision := e.limiter.Check("chat_model")
			if !decision.Allowed {
				logger.WarnCF("monologue", "rate limited", map[string]any{"reason": decision.Reason})
				e.sleepFn(5 * time.Second)
				continue
			}
		}

		e.fire(ctx, "message_loop_start", nil)

		if msg, ok := agentCtx.popIntervention(); ok {
			e.mu.Lock()
			e.history = append(e.history, providers.Message{Role: "user", Content: "[INTERVENTION] " + msg})
			e.mu.Unlock()
			logger.InfoCF("monologue", "user intervention, restarting loop", nil)
			logger.LogEvent(logger.EventIntervention, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"message": msg}, 0, 0)
			return "", true
		}

		e.fire(ctx, "message_loop_prompts_before", nil)
		messages := e.prepareMessages()
		e.fire(ctx, "message_loop_prompts_after", map[string]any{"messages": messages})
		e.fire(ctx, "before_main_llm_call", map[string]any{"messages": messages})

		streamCB := func(chunk string) {
			e.fire(ctx, "response_stream_chunk", map[string]any{"chunk": chunk})
		}
		response, err := e.router.Chat(ctx, messages, streamCB)
		if err != nil {
			e.mu.Lock()
			e.history = append(e.history, providers.Message{
				Role:    "system",
				Content: fmt.Sprintf("LLM call failed: %s", err.Error()),
			})
			e.mu.Unlock()
			continue
		}

		if e.limiter != nil {
			e.limiter.Record("chat_model", 0)
		}

		if e.detectRepeat(response) {
			logger.WarnCF("monologue", "repeated response detected", nil)
			logger.LogEvent(logger.EventWarning, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"reason": "repeated_response"}, 0, 0)
			e.mu.Lock()
			e.history = append(e.history, providers.Message{
				Role:    "system",
				Content: "WARNING: You repeated yourself. Please try a different approach.",
			})
			e.state.LastResponse = response
			e.mu.Unlock()
			continue
		}

		e.mu.Lock()
		e.state.LastResponse = response
		e.history = append(e.history, providers.Message{Role: "assistant", Content: response})
		e.mu.Unlock()
		logger.LogEvent(logger.EventAgentResponse, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"response": response}, 0, 0)

		observation, shouldBreak, toolErr := e.processTools(ctx, response)
		if toolErr != nil {
			var critical *CriticalError
			if errors.As(toolErr, &critical) {
				*criticalRetries++
				if *criticalRetries > 1 {
					logger.LogEvent(logger.EventCriticalError, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"error": critical.Error()}, 0, 0)
					return criticalErrorLabel + critical.Error(), false
				}
				e.mu.Lock()
				e.history = append(e.history, providers.Message{
					Role:    "system",
					Content: fmt.Sprintf("CRITICAL ERROR: %s\n\nThis is your last retry.", critical.Error()),
				})
				e.mu.Unlock()
				e.sleepFn(2 * time.Second)
				continue
			}
			logger.ErrorCF("monologue", "unclassified error", map[string]any{"error": toolErr.Error()})
			logger.LogEvent(logger.EventError, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"error": toolErr.Error()}, 0, 0)
			return fmt.Sprintf("Error: %s", toolErr.Error()), false
		}

		if shouldBreak {
			e.fire(ctx, "monologue_end", nil)
			return observation, false
		}

		if observation != "" {
			e.fire(ctx, "hist_add_tool_result", map[string]any{"result": observation})
			e.mu.Lock()
			e.history = append(e.history, providers.Message{
				Role:    "system",
				Content: fmt.Sprintf("Tool result:\n%s", observation),
			})
			e.mu.Unlock()
		}

		if e.checkpoint != nil && e.config.CheckpointIntervalSteps > 0 && iteration%e.config.CheckpointIntervalSteps == 0 {
			e.mu.Lock()
			snap := checkpoint.Snapshot{
				Timestamp:    time.Now(),
				Iteration:    iteration,
				RoomID:       agentCtx.RoomID,
				Adapter:      agentCtx.AdapterName,
				History:      append([]providers.Message(nil), e.history...),
				LastResponse: e.state.LastResponse,
			}
			e.mu.Unlock()
			if err := e.checkpoint.Save(snap); err != nil {
				logger.WarnCF("monologue", "checkpoint save failed", map[string]any{"error": err.Error()})
				logger.LogEvent(logger.EventSystem, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"event": "checkpoint_save_failed", "error": err.Error()}, 0, 0)
			} else {
				logger.LogEvent(logger.EventSystem, agentCtx.RoomID, agentCtx.AdapterName, map[string]any{"event": "checkpoint_saved", "iteration": iteration}, 0, 0)
			}
		}

		e.fire(ctx, "message_loop_end", nil)
	}
	return "", false
}

// processTools parses a tool call out of response, resolves and invokes
// it, and returns the observation text plus whether the loop should break.
// A non-nil error is either a *RepairableError (already routed through
// self-heal if configured) or a *CriticalError to be handled by the
// caller.
func (e *Engine) processTools(ctx context.Context, response string) (string, bool, error) {
	call, ok := ExtractToolCall(response)
	if !ok {
		return "", false, nil
	}

	if call.Headline != "" && e.tracker != nil {
		e.tracker.Progress(e.ctx.RoomID, call.Headline, nil)
	}
	if len(call.Thoughts) > 0 {
		logger.InfoCF("monologue", "agent thoughts", map[string]any{"thoughts": call.Thoughts})
		logger.LogEvent(logger.EventAgentThoughts, e.ctx.RoomID, e.ctx.AdapterName, map[string]any{"thoughts": call.Thoughts}, 0, 0)
	}

	if e.limiter != nil {
		decision := e.limiter.Check(call.ToolName)
		if !decision.Allowed {
			logger.LogEvent(logger.EventWarning, e.ctx.RoomID, e.ctx.AdapterName, map[string]any{"reason": decision.Reason, "tool": call.ToolName}, 0, 0)
			return fmt.Sprintf("Rate limited: %s", decision.Reason), false, nil
		}
	}

	logger.LogEvent(logger.EventToolExecution, e.ctx.RoomID, e.ctx.AdapterName, map[string]any{"tool": call.ToolName, "args": call.ToolArgs}, 0, 0)
	e.fire(ctx, "tool_execute_before", map[string]any{"tool_name": call.ToolName, "tool_args": call.ToolArgs})

	res := e.resolver.resolve(call.ToolName, call.ToolArgs)
	if res.notFound != "" {
		return res.notFound, false, nil
	}

	var resultText string
	var shouldBreak bool
	var execErr error

	if res.isMCP {
		resultText, execErr = e.resolver.mcp.CallTool(ctx, res.mcpServer, res.mcpTool, call.ToolArgs)
		if execErr != nil {
			resultText = fmt.Sprintf("MCP Error: %s", execErr.Error())
			execErr = nil
		}
	} else {
		result := e.resolver.local.ExecuteWithContext(ctx, res.localName, res.localArgs, e.ctx.AdapterName, e.ctx.RoomID, e.ctx.UserID, nil)
		if result.IsError && result.Err != nil {
			if classified := selfheal.Classify(result.Err, res.localName, res.localArgs); classified.Severity == selfheal.SeverityCritical {
				return "", false, &CriticalError{Err: result.Err}
			}
			return e.heal(ctx, result.Err, res.localName, res.localArgs), false, nil
		}
		resultText = result.ForLLM
		shouldBreak = result.BreakLoop
	}

	blocked := e.hookPipe.FireToolExecuteAfter(ctx, e, map[string]any{
		"tool_name": call.ToolName,
		"tool_args": call.ToolArgs,
		"result":    resultText,
	})
	if blocked {
		return securityBlockedMsg, false, nil
	}

	logger.InfoCF("monologue", "tool execution", map[string]any{
		"tool":          call.ToolName,
		"result_length": len(resultText),
		"break_loop":    shouldBreak,
		"mcp":           res.isMCP,
	})
	logger.LogEvent(logger.EventToolResult, e.ctx.RoomID, e.ctx.AdapterName, map[string]any{
		"tool":       call.ToolName,
		"break_loop": shouldBreak,
	}, 0, 0)

	resultText = wrapUntrusted(call.ToolName, resultText)

	if e.limiter != nil {
		e.limiter.Record(call.ToolName, 0)
	}

	return resultText, shouldBreak, nil
}

// heal routes a repairable tool error through SelfHealEngine and returns
// either its success message or a human-readable failure string. When no
// healer is configured the error surfaces directly.
func (e *Engine) heal(ctx context.Context, toolErr error, toolName string, toolArgs map[string]any) string {
	if e.healer == nil {
		return fmt.Sprintf("Error (repairable): %s\n\nPlease fix this and try again.", toolErr.Error())
	}
	result := e.healer.Heal(ctx, toolErr, toolName, toolArgs, nil)
	if result.Healed {
		return result.Message
	}
	return fmt.Sprintf("Error (repairable): %s\n\nPlease fix this and try again.", toolErr.Error())
}

func (e *Engine) prepareMessages() []providers.Message {
	system := ""
	if e.systemPrompt != nil {
		system = e.systemPrompt()
	}
	if e.hookPipe != nil {
		system = e.hookPipe.FireSystemPrompt(context.Background(), e, system)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	messages := make([]providers.Message, 0, len(e.history)+1)
	messages = append(messages, providers.Message{Role: "system", Content: system})
	messages = append(messages, e.history...)
	return messages
}

func (e *Engine) detectRepeat(response string) bool {
	if !e.config.RepeatDetectionEnabled {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return response != "" && response == e.state.LastResponse
}

func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) fire(ctx context.Context, hookName string, data map[string]any) {
	if e.hookPipe == nil {
		return
	}
	results := e.hookPipe.Fire(ctx, hookName, e, data)
	if len(results) > 0 {
		roomID, adapter := "", ""
		if e.ctx != nil {
			roomID, adapter = e.ctx.RoomID, e.ctx.AdapterName
		}
		logger.LogEvent(logger.EventExtensionFired, roomID, adapter, map[string]any{"hook": hookName, "extensions": len(results)}, 0, 0)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
