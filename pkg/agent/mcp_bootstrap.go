package agent

import (
	"context"
	"time"

	"github.com/crucibleai/kernel/pkg/config"
	"github.com/crucibleai/kernel/pkg/mcp"
)

const (
	mcpBootstrapMinTimeout   = 10 * time.Second
	mcpBootstrapMaxTimeout   = 5 * time.Minute
	mcpBootstrapGraceTimeout = 5 * time.Second
)

type mcpBootstrapResult struct {
	Manager *mcp.Manager
	Servers []mcp.ServerSummary
}

// bootstrapMCP starts the MCP manager against every enabled server in cfg
// and eagerly lists their tool catalogs so startup failures surface before
// the first monologue iteration rather than on the first tool call.
func bootstrapMCP(cfg map[string]config.MCPServerConfig) (*mcpBootstrapResult, error) {
	enabled := make(map[string]config.MCPServerConfig, len(cfg))
	for name, serverCfg := range cfg {
		if serverCfg.Enabled {
			enabled[name] = serverCfg
		}
	}
	if len(enabled) == 0 {
		return nil, nil
	}

	manager := mcp.NewManager(enabled)

	discoveryCtx, cancel := context.WithTimeout(context.Background(), calculateMCPDiscoveryTimeout(enabled))
	defer cancel()

	for name := range enabled {
		if _, err := manager.GetTools(discoveryCtx, name); err != nil {
			manager.Stop()
			return nil, err
		}
	}

	return &mcpBootstrapResult{
		Manager: manager,
		Servers: manager.ListServers(),
	}, nil
}

func calculateMCPDiscoveryTimeout(servers map[string]config.MCPServerConfig) time.Duration {
	timeout := mcpBootstrapMinTimeout
	for range servers {
		timeout += mcpBootstrapGraceTimeout
	}
	if timeout > mcpBootstrapMaxTimeout {
		return mcpBootstrapMaxTimeout
	}
	return timeout
}
