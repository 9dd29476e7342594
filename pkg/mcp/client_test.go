package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test; it is re-exec'd as the fake MCP
// server child process. See https://pkg.go.dev/os/exec#Cmd for the pattern.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MCP_WANT_HELPER_PROCESS") != "1" {
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	page := 0
	for scanner.Scan() {
		line := scanner.Text()
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			continue
		}

		switch req.Method {
		case "initialize":
			writeHelperResponse(req.ID, map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
			})
		case "notifications/initialized":
			// no response expected for a notification
		case "tools/list":
			if page == 0 {
				page++
				writeHelperResponse(req.ID, map[string]any{
					"tools": []map[string]any{
						{"name": "alpha", "description": "first tool", "inputSchema": map[string]any{}},
					},
					"nextCursor": "page2",
				})
			} else {
				writeHelperResponse(req.ID, map[string]any{
					"tools": []map[string]any{
						{"name": "beta", "description": "second tool", "inputSchema": map[string]any{}},
					},
				})
			}
		case "tools/call":
			var params struct {
				Name string `json:"name"`
			}
			_ = json.Unmarshal(req.Params, &params)
			if params.Name == "slow" {
				time.Sleep(2 * time.Second)
			}
			writeHelperResponse(req.ID, map[string]any{
				"content": []map[string]any{{"type": "text", "text": "ok:" + params.Name}},
			})
		}
	}
}

func writeHelperResponse(id json.RawMessage, result any) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintln(os.Stdout, string(data))
}

func helperClient(t *testing.T) *StdioClient {
	t.Helper()
	cfg := ServerConfig{
		Name:         "fake",
		Command:      os.Args[0],
		Args:         []string{"-test.run=TestHelperProcess"},
		Env:          map[string]string{"MCP_WANT_HELPER_PROCESS": "1"},
		InitTimeoutS: 5 * time.Second,
		CallTimeoutS: 1 * time.Second,
	}
	client := NewStdioClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStdioClient_StartPerformsHandshake(t *testing.T) {
	client := helperClient(t)
	err := client.Start(context.Background())
	require.NoError(t, err)
}

func TestStdioClient_ListToolsPaginates(t *testing.T) {
	client := helperClient(t)
	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "alpha", tools[0].Name)
	assert.Equal(t, "beta", tools[1].Name)
}

func TestStdioClient_CallToolSuccess(t *testing.T) {
	client := helperClient(t)
	result, err := client.CallTool(context.Background(), "echo", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "ok:echo", result.Content)
}

func TestStdioClient_CallToolTimeoutSurfacesAsErroredResult(t *testing.T) {
	client := helperClient(t)
	result, err := client.CallTool(context.Background(), "slow", map[string]any{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStdioClient_MonotonicIntegerIDs(t *testing.T) {
	client := helperClient(t)
	require.NoError(t, client.Start(context.Background()))

	first := client.nextID
	_, err := client.request(context.Background(), "tools/list", map[string]any{})
	require.NoError(t, err)
	second := client.nextID
	assert.Greater(t, second, first)
}

func TestStdioClient_CloseIsIdempotent(t *testing.T) {
	client := helperClient(t)
	require.NoError(t, client.Start(context.Background()))
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestStdioClient_CommandNotFoundReturnsError(t *testing.T) {
	client := NewStdioClient(ServerConfig{Name: "missing", Command: "/nonexistent/binary/does-not-exist"})
	err := client.Start(context.Background())
	assert.Error(t, err)
}

func TestMain_helperProcessBuildsWithExecLookPath(t *testing.T) {
	// Sanity check that os.Args[0] is a usable executable path under test,
	// since helperClient relies on re-exec'ing the test binary itself.
	_, err := exec.LookPath(os.Args[0])
	if err != nil {
		t.Skip("test binary not in PATH form; re-exec still works via absolute path")
	}
}
