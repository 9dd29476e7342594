package monologue

import (
	"context"
	"fmt"

	"github.com/crucibleai/kernel/pkg/mcp"
)

// MCPManagerAdapter satisfies MCPResolver against the real pkg/mcp.Manager:
// a bare (unqualified) tool name matches an MCP tool when exactly one
// configured, enabled server advertises it.
type MCPManagerAdapter struct {
	manager *mcp.Manager
}

// NewMCPManagerAdapter wraps manager for use as an Engine's MCPResolver.
func NewMCPManagerAdapter(manager *mcp.Manager) *MCPManagerAdapter {
	return &MCPManagerAdapter{manager: manager}
}

// HasBareTool scans every enabled server's tool list for an exact name
// match. The first server (in ListServers order) advertising the name
// wins; this mirrors the original agent's "first registered MCP client
// with this tool" semantics.
func (a *MCPManagerAdapter) HasBareTool(name string) (string, bool) {
	for _, server := range a.manager.ListServers() {
		tools, err := a.manager.GetTools(context.Background(), server.Name)
		if err != nil {
			continue
		}
		for _, t := range tools {
			if t.Name == name {
				return server.Name, true
			}
		}
	}
	return "", false
}

// CallTool delegates to the manager, formatting a clear error if the
// target server can't be reached.
func (a *MCPManagerAdapter) CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (string, error) {
	result, err := a.manager.CallTool(ctx, serverName, toolName, args)
	if err != nil {
		return "", fmt.Errorf("mcp %s::%s: %w", serverName, toolName, err)
	}
	return result, nil
}
