// MCP server configuration file support.
//
// Supports Anthropic-style MCP configuration format:
//
//	{
//	  "mcpServers": {
//	    "filesystem": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
//	    },
//	    "memory": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-memory"]
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents a single MCP server configuration.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for name, server := range config.MCPServers {
		if strings.TrimSpace(server.Command) == "" {
			return nil, fmt.Errorf("mcp server %q has no command", name)
		}
	}

	return &config, nil
}

// ParseCommand builds a server entry from a command line such as
// "npx -y @modelcontextprotocol/server-memory". Fields are split on spaces.
func ParseCommand(line string) (ServerConfig, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ServerConfig{}, fmt.Errorf("empty MCP server command")
	}
	return ServerConfig{Command: fields[0], Args: fields[1:]}, nil
}

// Names returns the configured server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddCommand parses line with ParseCommand and adds the server under a name
// derived from its package or script, e.g. "npx -y
// @modelcontextprotocol/server-filesystem /tmp" becomes "filesystem". A
// numeric suffix keeps the name unique and clear of reserved names.
func (c *Config) AddCommand(line string, reserved ...string) (string, error) {
	server, err := ParseCommand(line)
	if err != nil {
		return "", err
	}
	if c.MCPServers == nil {
		c.MCPServers = make(map[string]ServerConfig)
	}

	base := commandName(server)
	name := base
	for i := 2; c.taken(name, reserved); i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	c.MCPServers[name] = server
	return name, nil
}

func (c *Config) taken(name string, reserved []string) bool {
	if _, ok := c.MCPServers[name]; ok {
		return true
	}
	for _, r := range reserved {
		if r == name {
			return true
		}
	}
	return false
}

// commandName uses the first non-flag argument, falling back to the command.
func commandName(server ServerConfig) string {
	candidate := server.Command
	for _, arg := range server.Args {
		if !strings.HasPrefix(arg, "-") {
			candidate = arg
			break
		}
	}
	name := filepath.Base(candidate)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.TrimPrefix(name, "mcp-server-")
	name = strings.TrimPrefix(name, "server-")
	if name == "" || name == "." || name == "/" {
		return "mcp"
	}
	return name
}
