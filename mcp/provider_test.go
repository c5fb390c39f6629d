package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/strand/tools"
)

// fakeServer answers MCP requests on in-memory pipes. Requests to the
// "hang" tool are never answered.
func fakeServer(t *testing.T) (io.WriteCloser, io.Reader, func() error) {
	t.Helper()
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	go func() {
		defer serverToClientW.Close()
		enc := json.NewEncoder(serverToClientW)
		scanner := bufio.NewScanner(clientToServerR)
		for scanner.Scan() {
			var req struct {
				ID     *uint64         `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if json.Unmarshal(scanner.Bytes(), &req) != nil || req.ID == nil {
				continue
			}
			resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
			switch req.Method {
			case "initialize":
				resp["result"] = map[string]any{"protocolVersion": ProtocolVersion}
			case "tools/list":
				resp["result"] = map[string]any{"tools": []any{
					map[string]any{
						"name":        "lookup",
						"description": "Look up a word",
						"inputSchema": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"word":  map[string]any{"type": "string", "description": "Word"},
								"limit": map[string]any{"type": []any{"integer", "null"}},
							},
							"required": []any{"word"},
						},
					},
					map[string]any{"name": "hang"},
				}}
			case "tools/call":
				var p struct {
					Name      string         `json:"name"`
					Arguments map[string]any `json:"arguments"`
				}
				_ = json.Unmarshal(req.Params, &p)
				switch {
				case p.Name == "hang":
					continue
				case p.Arguments["word"] == "zzz":
					resp["result"] = map[string]any{
						"content": []any{map[string]any{"type": "text", "text": "no such word"}},
						"isError": true,
					}
				default:
					resp["result"] = map[string]any{"content": []any{
						map[string]any{"type": "text", "text": "definition of " + p.Arguments["word"].(string)},
						map[string]any{"type": "image", "mimeType": "image/png", "data": "AAAA"},
					}}
				}
			default:
				resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
			}
			_ = enc.Encode(resp)
		}
	}()

	stop := func() error { return clientToServerR.Close() }
	return clientToServerW, serverToClientR, stop
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	stdin, stdout, stop := fakeServer(t)
	client, err := NewClient(context.Background(), stdin, stdout, stop, nil)
	require.NoError(t, err)
	p := NewProvider("dictionary", client, nil)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_Capabilities(t *testing.T) {
	p := newTestProvider(t)

	cat, err := p.Capabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, cat["dictionary"], 2)

	lookup := cat["dictionary"][0]
	assert.Equal(t, "lookup", lookup.Name)
	assert.Equal(t, "Look up a word", lookup.Description)
	require.Len(t, lookup.Parameters, 2)
	assert.Equal(t, "limit", lookup.Parameters[0].Name)
	assert.Equal(t, "integer", lookup.Parameters[0].Type)
	assert.False(t, lookup.Parameters[0].Required)
	assert.True(t, lookup.Parameters[1].Required)
}

func TestProvider_Invoke(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	_, err := p.Capabilities(ctx)
	require.NoError(t, err)

	out, err := p.Invoke(ctx, "dictionary", "lookup", map[string]any{"word": "strand"})
	require.NoError(t, err)
	assert.Equal(t, "definition of strand\n[image content image/png]", out)

	out, err = p.Invoke(ctx, "dictionary", "lookup", map[string]any{"word": "zzz"})
	require.NoError(t, err)
	assert.Equal(t, "Error: no such word", out)
	assert.True(t, tools.IsErrorResult(out))

	_, err = p.Invoke(ctx, "thesaurus", "lookup", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownProvider)

	_, err = p.Invoke(ctx, "dictionary", "translate", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownOperation)
}

func TestProvider_InvokeHonoursContext(t *testing.T) {
	p := newTestProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Invoke(ctx, "dictionary", "hang", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The client stays usable after an abandoned call.
	out, err := p.Invoke(context.Background(), "dictionary", "lookup", map[string]any{"word": "again"})
	require.NoError(t, err)
	assert.Contains(t, out, "definition of again")
}

func TestClient_ClosedServer(t *testing.T) {
	p := newTestProvider(t)
	require.NoError(t, p.Close())

	_, err := p.Capabilities(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mcpServers": {
			"memory": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-memory"]},
			"fs": {"command": "mcp-fs", "args": [], "env": {"ROOT": "/tmp"}}
		}
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fs", "memory"}, cfg.Names())
	assert.Equal(t, "/tmp", cfg.MCPServers["fs"].Env["ROOT"])

	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers": {"bad": {"command": ""}}}`), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	sc, err := ParseCommand("  npx -y server-memory ")
	require.NoError(t, err)
	assert.Equal(t, "npx", sc.Command)
	assert.Equal(t, []string{"-y", "server-memory"}, sc.Args)

	_, err = ParseCommand("   ")
	assert.Error(t, err)
}

func TestConfig_AddCommand(t *testing.T) {
	cfg := &Config{}

	tests := []struct {
		line string
		want string
	}{
		{"npx -y @modelcontextprotocol/server-filesystem /tmp", "filesystem"},
		{"npx -y @modelcontextprotocol/server-filesystem /var", "filesystem2"},
		{"uvx mcp-server-fetch", "fetch"},
		{"/usr/local/bin/notes --stdio", "notes"},
		{"python weather.py", "weather"},
		{"local", "local2"},
	}
	for _, tt := range tests {
		name, err := cfg.AddCommand(tt.line, "local")
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, name, tt.line)
	}
	assert.Equal(t, "npx", cfg.MCPServers["filesystem2"].Command)

	_, err := cfg.AddCommand("  ")
	assert.Error(t, err)
}

func TestDispatch_DuplicateResponseDoesNotBlock(t *testing.T) {
	ch := make(chan mcpResponse, 1)
	c := &Client{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		pending: map[uint64]chan mcpResponse{7: ch},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.dispatch([]byte(`{"jsonrpc":"2.0","id":7,"result":{"n":1}}`))
		c.dispatch([]byte(`{"jsonrpc":"2.0","id":7,"result":{"n":2}}`))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a repeated id")
	}
	resp := <-ch
	assert.JSONEq(t, `{"n":1}`, string(resp.Result))
}
