// Fetch Tool.
//
// Information Hiding:
// - HTTP client implementation details hidden
// - Domain allowlist enforcement hidden
// - Body size limiting abstracted

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/richinex/strand/model"
)

// DefaultMaxFetchBytes bounds how much of a response body is returned.
const DefaultMaxFetchBytes = 256 * 1024

// FetchTool retrieves the body of a URL with a GET request.
type FetchTool struct {
	client         *http.Client
	timeout        time.Duration
	maxBytes       int64
	allowedDomains []string
}

// NewFetchTool creates a fetch tool with the given per-request timeout.
func NewFetchTool(timeout time.Duration) *FetchTool {
	return &FetchTool{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		maxBytes: DefaultMaxFetchBytes,
	}
}

// WithAllowedDomains restricts requests to the given domains and their subdomains.
func (t *FetchTool) WithAllowedDomains(domains []string) *FetchTool {
	t.allowedDomains = domains
	return t
}

// WithMaxBytes sets the response truncation limit.
func (t *FetchTool) WithMaxBytes(n int64) *FetchTool {
	if n > 0 {
		t.maxBytes = n
	}
	return t
}

// Descriptor returns the tool metadata.
func (t *FetchTool) Descriptor() model.ToolDescriptor {
	return model.ToolDescriptor{
		Name:        "fetch_url",
		Description: "Fetch the contents of a web page or text resource with an HTTP GET request",
		Parameters: []model.ToolParameter{
			{Name: "url", Type: "string", Description: "The http or https URL to fetch", Required: true},
		},
	}
}

// Execute fetches the URL.
func (t *FetchTool) Execute(ctx context.Context, params map[string]any) (ToolResult, error) {
	raw := strings.TrimSpace(stringParam(params, "url"))
	if raw == "" {
		return FailureResultf("URL cannot be empty"), nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return FailureResultf("invalid URL '%s'", raw), nil
	}
	if !t.isDomainAllowed(u) {
		return FailureResultf("access to domain in '%s' is not allowed", raw), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to create request: %w", err)), nil
	}
	req.Header.Set("User-Agent", "strand/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return FailureResultf("request timed out after %s", t.timeout), nil
		}
		// Connection failures surface as errors so the call is retried.
		return ToolResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read response body: %w", err)), nil
	}
	truncated := int64(len(body)) > t.maxBytes
	if truncated {
		body = body[:t.maxBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureResultf("HTTP error: %s\n\n%s", resp.Status, string(body)), nil
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		return SuccessResult(fmt.Sprintf("Status: %s\n\n(empty body)", resp.Status)), nil
	}
	if truncated {
		text += fmt.Sprintf("\n\n[truncated at %d bytes]", t.maxBytes)
	}
	return SuccessResult(fmt.Sprintf("Status: %s\n\n%s", resp.Status, text)), nil
}

// isDomainAllowed checks if the URL's host is in the allowlist.
func (t *FetchTool) isDomainAllowed(u *url.URL) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range t.allowedDomains {
		domain = strings.ToLower(domain)
		// Exact match or subdomain match
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
