// Package mcp connects to Model Context Protocol (MCP) servers and exposes
// their tools as a tools.Provider.
//
// Servers are child processes speaking JSON-RPC 2.0 over stdin/stdout, one
// JSON message per line.
//
// Information Hiding:
// - Process management hidden
// - JSON-RPC protocol details hidden
// - Request ID tracking and response demultiplexing hidden

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// ProtocolVersion is the MCP revision announced during initialization.
const ProtocolVersion = "2024-11-05"

// ErrClosed is returned for calls on a client whose server has gone away.
var ErrClosed = errors.New("mcp client closed")

// Client communicates with an MCP server via JSON-RPC over stdin/stdout.
type Client struct {
	stdin   io.WriteCloser
	stop    func() error
	logger  *slog.Logger
	writeMu sync.Mutex

	mu        sync.Mutex
	requestID uint64
	pending   map[uint64]chan mcpResponse
	closed    bool
	readErr   error
	done      chan struct{}
}

// mcpRequest is a JSON-RPC request to an MCP server.
type mcpRequest struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string  `json:"method"`
	Params  any     `json:"params,omitempty"`
}

// mcpResponse is a JSON-RPC response from an MCP server.
type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

// mcpError is a JSON-RPC error.
type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *mcpError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// ToolInfo describes a tool available on the MCP server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// toolsListResult is the result of tools/list method.
type toolsListResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// Content is one item of a tools/call result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Start launches an MCP server process and performs the initialize handshake.
// The process lives until Close; ctx only bounds the handshake.
func Start(ctx context.Context, server ServerConfig, logger *slog.Logger) (*Client, error) {
	cmd := exec.Command(server.Command, server.Args...)
	if len(server.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range server.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server %q: %w", server.Command, err)
	}

	stop := func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill() // Intentionally ignore - cleanup
		}
		_ = cmd.Wait() // Intentionally ignore - cleanup
		return nil
	}

	return NewClient(ctx, stdin, stdout, stop, logger)
}

// NewClient runs the initialize handshake over an established transport.
// stop, if non-nil, is called by Close after stdin is closed.
func NewClient(ctx context.Context, stdin io.WriteCloser, stdout io.Reader, stop func() error, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		stdin:   stdin,
		stop:    stop,
		logger:  logger,
		pending: make(map[uint64]chan mcpResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop(stdout)

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	return c, nil
}

// initialize sends the initialize request and the initialized notification.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "strand",
			"version": "0.1.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized", nil)
}

// ListTools returns all tools available on the MCP server, following
// pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var all []ToolInfo
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		result, err := c.call(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}

		var page toolsListResult
		if err := json.Unmarshal(result, &page); err != nil {
			return nil, fmt.Errorf("failed to parse tools list: %w", err)
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool calls a tool on the MCP server with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (CallResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	raw, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return CallResult{}, err
	}

	var result CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallResult{}, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return result, nil
}

// call sends a JSON-RPC request and waits for its response or ctx.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		err := c.closedErrLocked()
		c.mu.Unlock()
		return nil, err
	}
	c.requestID++
	id := c.requestID
	ch := make(chan mcpResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(mcpRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-c.done:
		c.mu.Lock()
		err := c.closedErrLocked()
		c.mu.Unlock()
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) notify(method string, params any) error {
	return c.write(mcpRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) write(req mcpRequest) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(reqJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// readLoop delivers responses to waiting callers until stdout closes.
// Server notifications and unknown ids are dropped.
func (c *Client) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.readErr = err
				c.closed = true
			}
			c.mu.Unlock()
			close(c.done)
			return
		}
	}
}

func (c *Client) dispatch(line []byte) {
	var resp mcpResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		c.logger.Debug("ignoring non-JSON line from MCP server", "error", err)
		return
	}
	if resp.ID == nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[*resp.ID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
		c.logger.Debug("dropping duplicate MCP response", "id", *resp.ID)
	}
}

func (c *Client) closedErrLocked() error {
	if c.readErr != nil && !errors.Is(c.readErr, io.EOF) {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

// Close stops the MCP server process and releases resources.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	_ = c.stdin.Close()
	if c.stop != nil {
		return c.stop()
	}
	return nil
}
