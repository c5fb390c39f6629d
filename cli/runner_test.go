package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/strand/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"STRAND_PROVIDER", "STRAND_MCP_CONFIG", "STRAND_VAULT_DIR", "OPENAI_MODEL", "ANTHROPIC_MODEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadSettings_ProviderPrecedence(t *testing.T) {
	clearEnv(t)

	s, err := LoadSettings(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultProvider, s.LLM.Provider)

	t.Setenv("STRAND_PROVIDER", "claude")
	s, err = LoadSettings(Options{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.LLM.Provider)

	s, err = LoadSettings(Options{Provider: "deepseek"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", s.LLM.Provider)

	_, err = LoadSettings(Options{Provider: "nope"})
	assert.Error(t, err)
}

func TestLoadSettings_FlagsOverrideFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "strand.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: gemini\nengine:\n  step_budget: 4\nmedia:\n  asset_dir: from-file\n"), 0o644))

	s, err := LoadSettings(Options{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "gemini", s.LLM.Provider)
	assert.Equal(t, 4, s.Engine.StepBudget)
	assert.Equal(t, "from-file", s.Media.AssetDir)

	s, err = LoadSettings(Options{ConfigPath: path, Provider: "openai", Budget: 9, AssetDir: "out", VaultDir: "notes"})
	require.NoError(t, err)
	assert.Equal(t, "openai", s.LLM.Provider)
	assert.Equal(t, "gpt-4o", s.LLM.Model)
	assert.Equal(t, 9, s.Engine.StepBudget)
	assert.Equal(t, "out", s.Media.AssetDir)
	assert.Equal(t, "notes", s.Tools.VaultDir)
}

func TestMCPServers_NamesCommands(t *testing.T) {
	cfg, err := mcpServers("", []string{
		"npx -y @modelcontextprotocol/server-filesystem /tmp",
		"npx -y @modelcontextprotocol/server-filesystem /var",
		"python weather.py",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "filesystem2", "weather"}, cfg.Names())
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/var"}, cfg.MCPServers["filesystem2"].Args)

	_, err = mcpServers("", []string{"   "})
	assert.Error(t, err)
}

func TestMCPServers_MergesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers":{"weather":{"command":"weather-server"}}}`), 0o644))

	cfg, err := mcpServers(path, []string{"python weather.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weather", "weather2"}, cfg.Names())

	_, err = mcpServers(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestMCPServers_ReservesLocal(t *testing.T) {
	cfg, err := mcpServers("", []string{"local"})
	require.NoError(t, err)
	assert.Equal(t, []string{"local2"}, cfg.Names(), "local is reserved for the built-in registry")
}

func TestListTools_LocalCatalogue(t *testing.T) {
	clearEnv(t)
	var out bytes.Buffer

	err := ListTools(context.Background(), Options{VaultDir: t.TempDir()}, &out, true)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "local:")
	assert.Contains(t, text, "fetch_url")
	assert.Contains(t, text, "search_notes")
	assert.Contains(t, text, "url*: string")
}

func TestPrintSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, PrintSchema(&out))
	assert.Contains(t, out.String(), `"outcome"`)
	assert.Contains(t, out.String(), `"goal_status"`)
}

func TestPrintProgress(t *testing.T) {
	var out bytes.Buffer
	sink := printProgress(&out, false)

	sink(model.ProgressEvent{Kind: model.EventStepStart, StepIndex: 1, Payload: map[string]any{"budget": 5}})
	sink(model.ProgressEvent{Kind: model.EventReasoningComplete, StepIndex: 1, Payload: map[string]any{
		"outcome": "continue", "provider": "web", "operation": "search", "rationale": "hidden",
	}})
	sink(model.ProgressEvent{Kind: model.EventActionComplete, StepIndex: 1, Payload: map[string]any{
		"success": false, "result": "Error: " + strings.Repeat("x", 300),
	}})
	sink(model.ProgressEvent{Kind: model.EventFinalResult, StepIndex: 1, Payload: map[string]any{"status": "completed"}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[step 1/5] reasoning...", lines[0])
	assert.Equal(t, "[step 1] continue web.search", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "    failed: Error: "))
	assert.True(t, strings.HasSuffix(lines[2], "..."))
	assert.Equal(t, "[done] completed", lines[3])
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "héllo...", truncateString("héllo wörld", 5))
}
