// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crucibleai/kernel/pkg/checkpoint"
	"github.com/crucibleai/kernel/pkg/heartbeat"
	"github.com/crucibleai/kernel/pkg/hooks"
	"github.com/crucibleai/kernel/pkg/kernel"
	"github.com/crucibleai/kernel/pkg/logger"
	"github.com/crucibleai/kernel/pkg/mcp"
	"github.com/crucibleai/kernel/pkg/memory"
	"github.com/crucibleai/kernel/pkg/monologue"
	"github.com/crucibleai/kernel/pkg/progress"
	"github.com/crucibleai/kernel/pkg/providers"
	"github.com/crucibleai/kernel/pkg/ratelimit"
	"github.com/crucibleai/kernel/pkg/redaction"
	"github.com/crucibleai/kernel/pkg/secrets"
	"github.com/crucibleai/kernel/pkg/selfheal"
	"github.com/crucibleai/kernel/pkg/tools"
)

// providerRouter adapts an LLMProvider (tool-call-aware, multi-shot) to
// the narrower ModelRouter/Reasoner surfaces the monologue engine and
// self-heal engine drive. It sends no tool definitions of its own since
// the monologue engine encodes its tool contract inside the system
// prompt, per spec.md's JSON-in-text tool-call protocol.
type providerRouter struct {
	provider providers.LLMProvider
}

func (p *providerRouter) Chat(ctx context.Context, messages []providers.Message, stream func(chunk string)) (string, error) {
	resp, err := p.provider.Chat(ctx, messages, nil, p.provider.GetDefaultModel(), nil)
	if err != nil {
		return "", err
	}
	if stream != nil {
		stream(resp.Content)
	}
	return resp.Content, nil
}

func (p *providerRouter) Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	resp, err := p.provider.Chat(ctx, messages, nil, p.provider.GetDefaultModel(), nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func kernelCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		fmt.Printf("Error creating provider: %v\n", err)
		os.Exit(1)
	}
	router := &providerRouter{provider: provider}

	workspace := cfg.WorkspacePath()
	restrict := cfg.Agents.Defaults.RestrictToWorkspace

	registry := tools.NewToolRegistry()
	registry.Register(tools.NewResponseTool())
	registry.Register(tools.NewReadFileTool(workspace, restrict))
	registry.Register(tools.NewWriteFileTool(workspace, restrict))
	registry.Register(tools.NewListDirTool(workspace, restrict))
	registry.Register(tools.NewExecToolWithConfig(workspace, restrict, cfg))

	var mcpManager *mcp.Manager
	var mcpResolver monologue.MCPResolver
	if len(cfg.MCP) > 0 {
		mcpManager = mcp.NewManager(cfg.MCP)
		mcpResolver = monologue.NewMCPManagerAdapter(mcpManager)
	}
	resolver := monologue.NewResolver(registry, mcpResolver)

	pipe := hooks.NewExtensionPipeline()

	limiterCfg := ratelimit.DefaultConfig()
	if cfg.RateLimits.MaxRequestsPerMinute > 0 {
		limiterCfg.Enabled = true
		g := limiterCfg.Limits["global"]
		g.MaxPerMinute = cfg.RateLimits.MaxRequestsPerMinute
		limiterCfg.Limits["global"] = g
	}
	if cfg.RateLimits.MaxToolCallsPerMinute > 0 {
		limiterCfg.Enabled = true
		limiterCfg.DefaultLimit = ratelimit.CategoryLimit{MaxPerMinute: cfg.RateLimits.MaxToolCallsPerMinute}
	}
	limiter := ratelimit.NewLimiter(limiterCfg)

	guard := redaction.NewOutputGuard()
	secretMgr := secrets.Load(filepath.Join(workspace, ".env"))
	secretMgr.RegisterWithGuard(guard)

	var healer *selfheal.Engine
	memStore, err := memory.NewSemanticStore(
		filepath.Join(workspace, "data", "memory"),
		cfg.Tools.Memory.OllamaURL,
		cfg.Tools.Memory.EmbeddingModel,
	)
	if err != nil {
		logger.WarnCF("kernel", "memory store unavailable, self-healing runs without memory recall", map[string]any{"error": err.Error()})
	} else {
		healer = selfheal.NewEngine(memStore, router)
	}

	cpManager := checkpoint.NewManager(workspace)
	tracker := progress.NewTracker()
	tracker.Register("cli", func(event progress.Event) error {
		fmt.Printf("[%s] %s\n", event.Type, event.Message)
		return nil
	})

	var monitor *heartbeat.HeartbeatMonitor
	if cfg.Heartbeat.Enabled && memStore != nil {
		saver := &checkpoint.EmergencySaver{Manager: cpManager}
		hbCfg := heartbeat.DefaultConfig()
		if cfg.Heartbeat.Interval > 0 {
			hbCfg.IntervalSeconds = cfg.Heartbeat.Interval * 60
		}
		monitor = heartbeat.NewHeartbeatMonitor(hbCfg, memStore, limiter, saver, func(message string) {
			fmt.Printf("⚠️  %s\n", message)
		})
	}

	// A typed-nil *HeartbeatMonitor boxed directly into the
	// HeartbeatSignal interface would compare non-nil and panic on the
	// first UpdateActivity call, so only box it when it's really there.
	var heartbeatSignal monologue.HeartbeatSignal
	if monitor != nil {
		heartbeatSignal = monitor
	}

	engine := monologue.NewEngine(
		monologue.DefaultConfig(),
		router,
		resolver,
		pipe,
		limiter,
		healer,
		cpManager,
		tracker,
		heartbeatSignal,
		func() string { return "You are picoclaw, a terse and helpful assistant running interactively from a terminal." },
	)

	k := &kernel.Kernel{
		Engine:      engine,
		Tools:       registry,
		Hooks:       pipe,
		Limiter:     limiter,
		Healer:      healer,
		Guard:       guard,
		Checkpoints: cpManager,
		Progress:    tracker,
		Heartbeat:   monitor,
		Secrets:     secretMgr,
		MCP:         mcpManager,
	}

	if err := k.RestoreCheckpoint(); err != nil {
		logger.WarnCF("kernel", "checkpoint restore failed", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := k.StartHeartbeat(ctx); err != nil {
		logger.WarnCF("kernel", "heartbeat monitor failed to start", map[string]any{"error": err.Error()})
	}
	defer k.StopHeartbeat()

	fmt.Println("picoclaw kernel — interactive monologue session. Ctrl+D to exit.")
	agentCtx := monologue.NewAgentContext("cli", "kernel-cli", "local")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		k.UpdateActivity()
		out := engine.Run(ctx, agentCtx, line)
		fmt.Println(redactIfNeeded(guard, out))
	}
}

func redactIfNeeded(guard *redaction.OutputGuard, text string) string {
	return guard.Sanitize(text).Sanitized
}
