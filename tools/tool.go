// Package tools provides the tool providers the engine acts through.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Parameter schemas compiled and checked inside the registry
// - Routing between providers hidden behind Multi
package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/richinex/strand/model"
)

var (
	// ErrUnknownProvider is returned when no provider has the requested name.
	ErrUnknownProvider = errors.New("unknown tool provider")
	// ErrUnknownOperation is returned when a provider has no such operation.
	ErrUnknownOperation = errors.New("unknown tool operation")
)

// ErrorPrefix marks a tool result that reports a failure.
const ErrorPrefix = "Error: "

// Provider lists and invokes operations by (provider, operation) name.
//
// Invoke returns an error only when the call could not be made; a tool
// that ran and failed reports it in the returned text (see IsErrorResult).
type Provider interface {
	Capabilities(ctx context.Context) (model.Catalogue, error)
	Invoke(ctx context.Context, provider, operation string, params map[string]any) (string, error)
}

// IsErrorResult reports whether a tool result signals failure: it is blank,
// or it starts with an error marker such as "Error:" or "[error]".
func IsErrorResult(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	lower := strings.ToLower(t)
	return strings.HasPrefix(lower, "error:") || strings.HasPrefix(lower, "[error]")
}

// ToolResult represents the result of a tool execution.
// Success is determined by whether Error is nil.
type ToolResult struct {
	Output string
	Error  error
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// Text renders the result the way providers return it.
func (t ToolResult) Text() string {
	if t.Error != nil {
		return ErrorPrefix + t.Error.Error()
	}
	return t.Output
}

// SuccessResult creates a successful tool result.
func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// FailureResultf creates a failed tool result with a formatted error message.
func FailureResultf(format string, args ...any) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// Tool is the interface that all local tools implement.
//
// Execute reports tool-level failures through ToolResult. A non-nil error
// means the tool could not run at all and the call may be retried.
type Tool interface {
	Descriptor() model.ToolDescriptor
	Execute(ctx context.Context, params map[string]any) (ToolResult, error)
}

// stringParam reads an optional string parameter.
func stringParam(params map[string]any, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

// intParam reads an optional integer parameter; JSON numbers arrive as float64.
func intParam(params map[string]any, name string, def int) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// resolveInRoot joins rel onto root and rejects results that escape root.
func resolveInRoot(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path cannot be empty")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(absRoot, filepath.FromSlash(rel))
	if filepath.IsAbs(rel) {
		full = filepath.Clean(rel)
	}
	r, err := filepath.Rel(absRoot, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("access to path '%s' is not allowed", rel)
	}
	return full, nil
}
