package common

import "context"

// Tool is the contract every agent-invocable tool implements: a stable
// name, a description and JSON-schema-shaped parameter spec the LLM sees,
// and a synchronous Execute that returns a ToolResult.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]any) *ToolResult
}

// ContextualTool is implemented by tools that need to know which channel
// and chat they are currently operating in (e.g. to send an out-of-band
// message back through the originating adapter).
type ContextualTool interface {
	SetContext(channel, chatID string)
}

// AsyncCallback delivers a tool's final result once a long-running,
// asynchronously-executing tool call completes.
type AsyncCallback func(ctx context.Context, result *ToolResult)

// AsyncTool is implemented by tools that may return an immediate
// "started" ToolResult (Async=true) and later deliver their real result
// through a callback set before Execute runs.
type AsyncTool interface {
	SetCallback(cb AsyncCallback)
}

// ParallelPolicyProvider lets a tool opt into the registry's parallel
// dispatch: tools that don't implement it default to ToolParallelSerialOnly.
type ParallelPolicyProvider interface {
	ParallelPolicy() ToolParallelPolicy
}

// ConcurrentSafeTool lets one shared tool instance opt into concurrent
// Execute calls (no per-call mutable state). Tools are conservatively
// assumed unsafe unless they implement this explicitly.
type ConcurrentSafeTool interface {
	SupportsConcurrentExecution() bool
}

// ToolParallelPolicy classifies how a tool call may be scheduled relative
// to other tool calls in the same iteration.
type ToolParallelPolicy string

const (
	// ToolParallelSerialOnly is the default: the tool must run alone.
	ToolParallelSerialOnly ToolParallelPolicy = "serial_only"
	// ToolParallelReadOnly marks a tool as safe to run alongside other
	// read-only tools in the same iteration.
	ToolParallelReadOnly ToolParallelPolicy = "parallel_read_only"
)

// Parallel-tools dispatch modes, configured process-wide.
const (
	ParallelToolsModeReadOnlyOnly = "read_only_only"
	ParallelToolsModeAll          = "all"
)

// ToolResult is what a tool hands back to the monologue loop. ForLLM is
// appended to history as the tool observation; ForUser, if non-empty, is
// also pushed directly to the user's transport out of band. Silent
// suppresses the ForUser push even when ForUser is set. Async means the
// tool has merely started work and will deliver its real result later via
// an AsyncCallback. BreakLoop signals the monologue engine that this
// result is the conversation's final answer: the loop returns ForLLM
// immediately instead of continuing to the next iteration.
type ToolResult struct {
	ForLLM    string
	ForUser   string
	Silent    bool
	IsError   bool
	Async     bool
	BreakLoop bool
	Err       error
}

// NewToolResult builds a plain, non-error, non-silent result.
func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// SilentResult builds a result that is appended to history but never
// pushed to the user out of band.
func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// AsyncResult builds a result signaling the tool has started background
// work; its real outcome arrives later through an AsyncCallback.
func AsyncResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Async: true}
}

// ErrorResult builds an IsError result from a human-readable message.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: message, IsError: true}
}

// UserResult builds a result whose content is pushed directly to the
// user as well as appended to history.
func UserResult(content string) *ToolResult {
	return &ToolResult{ForLLM: content, ForUser: content}
}

// BreakResult builds a result that ends the monologue loop: the engine
// returns content as the final answer instead of continuing iteration.
func BreakResult(content string) *ToolResult {
	return &ToolResult{ForLLM: content, BreakLoop: true}
}

// WithError attaches the underlying error (for logging) without changing
// ForLLM, and ensures IsError is set.
func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	r.IsError = true
	return r
}
