package kernel

import (
	"context"
	"testing"

	"github.com/crucibleai/kernel/pkg/checkpoint"
	"github.com/crucibleai/kernel/pkg/hooks"
	"github.com/crucibleai/kernel/pkg/monologue"
	"github.com/crucibleai/kernel/pkg/providers"
	"github.com/crucibleai/kernel/pkg/ratelimit"
	"github.com/crucibleai/kernel/pkg/redaction"
	"github.com/crucibleai/kernel/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRouter struct{}

func (stubRouter) Chat(_ context.Context, _ []providers.Message, _ func(string)) (string, error) {
	return `{"tool_name":"response","tool_args":{"message":"ok"}}`, nil
}

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	reg := tools.NewToolRegistry()
	reg.Register(tools.NewResponseTool())
	resolver := monologue.NewResolver(reg, nil)
	pipe := hooks.NewExtensionPipeline()
	cpManager := checkpoint.NewManager(t.TempDir())
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	guard := redaction.NewOutputGuard()

	engine := monologue.NewEngine(
		monologue.DefaultConfig(),
		stubRouter{},
		resolver,
		pipe,
		limiter,
		nil,
		cpManager,
		nil,
		nil,
		nil,
	)

	return &Kernel{
		Engine:      engine,
		Tools:       reg,
		Hooks:       pipe,
		Limiter:     limiter,
		Guard:       guard,
		Checkpoints: cpManager,
	}
}

func TestKernel_Status_ReportsWiredSubsystems(t *testing.T) {
	k := newTestKernel(t)
	s := k.Status()

	assert.True(t, s.HasLimiter)
	assert.True(t, s.HasGuard)
	assert.True(t, s.HasCheckpoints)
	assert.False(t, s.HasHealer)
	assert.False(t, s.HasHeartbeat)
	assert.False(t, s.HasMCP)
}

func TestKernel_RestoreCheckpoint_NoFileIsNotAnError(t *testing.T) {
	k := newTestKernel(t)
	require.NoError(t, k.RestoreCheckpoint())
}

func TestKernel_RestoreCheckpoint_AppliesSavedSnapshot(t *testing.T) {
	k := newTestKernel(t)
	require.NoError(t, k.Checkpoints.Save(checkpoint.Snapshot{
		Iteration:    4,
		RoomID:       "room-1",
		Adapter:      "cli",
		LastResponse: "earlier reply",
		History:      []providers.Message{{Role: "user", Content: "hi"}},
	}))

	require.NoError(t, k.RestoreCheckpoint())

	out := k.Engine.Run(context.Background(), monologue.NewAgentContext("cli", "room-1", "user"), "continue")
	assert.Equal(t, "ok", out)
}

func TestKernel_UpdateActivity_NoopWithoutHeartbeat(t *testing.T) {
	k := newTestKernel(t)
	k.UpdateActivity() // must not panic
}

func TestKernel_StartStopHeartbeat_NoopWithoutHeartbeat(t *testing.T) {
	k := newTestKernel(t)
	require.NoError(t, k.StartHeartbeat(context.Background()))
	k.StopHeartbeat()
}
