// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package kernel assembles the MonologueEngine and every optional
// subsystem it can drive (self-healing, rate limiting, output
// redaction, checkpointing, progress reporting, heartbeat monitoring,
// secret masking) into one long-lived object an adapter can hand a
// stream of user messages to. It is the wiring the CLI and gateway
// entrypoints construct once at startup.
package kernel

import (
	"context"

	"github.com/crucibleai/kernel/pkg/checkpoint"
	"github.com/crucibleai/kernel/pkg/heartbeat"
	"github.com/crucibleai/kernel/pkg/hooks"
	"github.com/crucibleai/kernel/pkg/logger"
	"github.com/crucibleai/kernel/pkg/mcp"
	"github.com/crucibleai/kernel/pkg/monologue"
	"github.com/crucibleai/kernel/pkg/progress"
	"github.com/crucibleai/kernel/pkg/ratelimit"
	"github.com/crucibleai/kernel/pkg/redaction"
	"github.com/crucibleai/kernel/pkg/secrets"
	"github.com/crucibleai/kernel/pkg/selfheal"
	"github.com/crucibleai/kernel/pkg/tools"
)

// Kernel holds one MonologueEngine plus every subsystem it was built
// with, by reference, so a caller (the kernel CLI command, a future
// gateway adapter, or a test) can reach each subsystem directly without
// re-deriving it from config.
type Kernel struct {
	Engine *monologue.Engine

	Tools       *tools.ToolRegistry
	Hooks       *hooks.ExtensionPipeline
	Limiter     *ratelimit.Limiter
	Healer      *selfheal.Engine
	Guard       *redaction.OutputGuard
	Checkpoints *checkpoint.Manager
	Progress    *progress.Tracker
	Heartbeat   *heartbeat.HeartbeatMonitor
	Secrets     *secrets.Manager
	MCP         *mcp.Manager
}

// Status reports which optional subsystems are wired in. Subsystems are
// optional by design (e.g. a test Kernel may skip the heartbeat monitor
// or rate limiter); Status lets an operator or the CLI's "status"
// command see what's actually active without reaching into private
// fields.
type Status struct {
	HasLimiter     bool
	HasHealer      bool
	HasGuard       bool
	HasCheckpoints bool
	HasProgress    bool
	HasHeartbeat   bool
	HasMCP         bool

	RateLimiterStatus ratelimit.Status
	HealerStats       selfheal.Stats
	RedactionStats    redaction.Stats
	HeartbeatUptime   heartbeat.UptimeStats
	HeartbeatHistory  []heartbeat.HealthRecord
}

// Status reports the presence and, where cheap, the accumulated stats
// of every optional subsystem — the kernel's analogue of the original
// agent's get_subsystem_status introspection call.
func (k *Kernel) Status() Status {
	s := Status{
		HasLimiter:     k.Limiter != nil,
		HasHealer:      k.Healer != nil,
		HasGuard:       k.Guard != nil,
		HasCheckpoints: k.Checkpoints != nil,
		HasProgress:    k.Progress != nil,
		HasHeartbeat:   k.Heartbeat != nil,
		HasMCP:         k.MCP != nil,
	}
	if k.Limiter != nil {
		s.RateLimiterStatus = k.Limiter.GetStatus("global")
	}
	if k.Healer != nil {
		s.HealerStats = k.Healer.GetStats()
	}
	if k.Guard != nil {
		s.RedactionStats = k.Guard.GetStats()
	}
	if k.Heartbeat != nil {
		s.HeartbeatUptime = k.Heartbeat.Uptime()
		s.HeartbeatHistory = k.Heartbeat.History(10)
	}
	return s
}

// UpdateActivity pings the heartbeat monitor, if one is wired, so a
// long-running tool call isn't mistaken for a stall. Engines that were
// built without a HeartbeatSignal call this directly instead.
func (k *Kernel) UpdateActivity() {
	if k.Heartbeat != nil {
		k.Heartbeat.UpdateActivity()
	}
}

// StartHeartbeat starts the heartbeat monitor's background tick loop, if
// one is wired. Safe to call on a Kernel built without one.
func (k *Kernel) StartHeartbeat(ctx context.Context) error {
	if k.Heartbeat == nil {
		return nil
	}
	return k.Heartbeat.Start(ctx)
}

// StopHeartbeat stops the heartbeat monitor, if one is wired.
func (k *Kernel) StopHeartbeat() {
	if k.Heartbeat != nil {
		k.Heartbeat.Stop()
	}
}

// RestoreCheckpoint loads the last saved checkpoint, if a checkpoint
// manager is wired and a checkpoint file exists, and restores it into
// the engine. A missing checkpoint is not an error — it's the expected
// state on first run.
func (k *Kernel) RestoreCheckpoint() error {
	if k.Checkpoints == nil {
		return nil
	}
	err := k.Checkpoints.Restore(k.Engine)
	if err != nil {
		logger.WarnCF("kernel", "no checkpoint restored", map[string]any{"error": err.Error()})
		return nil
	}
	return nil
}
