package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/richinex/strand/model"
)

// Multi fans several providers into one. Each member owns the provider
// names that appear in its catalogue; Invoke is routed by that name.
type Multi struct {
	members []Provider
	logger  *slog.Logger

	mu     sync.RWMutex
	routes map[string]Provider
}

// NewMulti combines providers. Earlier members win name collisions.
func NewMulti(logger *slog.Logger, members ...Provider) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{
		members: members,
		logger:  logger,
		routes:  make(map[string]Provider),
	}
}

// Capabilities merges the members' catalogues. A member that fails to list
// its capabilities is skipped and logged; the call fails only if every
// member fails.
func (m *Multi) Capabilities(ctx context.Context) (model.Catalogue, error) {
	merged := model.Catalogue{}
	routes := make(map[string]Provider)
	var lastErr error
	ok := 0

	for _, p := range m.members {
		cat, err := p.Capabilities(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warn("tool provider unavailable", "error", err)
			lastErr = err
			continue
		}
		ok++
		for name, descriptors := range cat {
			if _, taken := routes[name]; taken {
				m.logger.Warn("duplicate tool provider name ignored", "provider", name)
				continue
			}
			routes[name] = p
			merged[name] = descriptors
		}
	}
	if ok == 0 && lastErr != nil {
		return nil, fmt.Errorf("no tool provider available: %w", lastErr)
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()
	return merged, nil
}

// Invoke routes the call to the member that owns provider.
func (m *Multi) Invoke(ctx context.Context, provider, operation string, params map[string]any) (string, error) {
	m.mu.RLock()
	p, ok := m.routes[provider]
	m.mu.RUnlock()

	if !ok {
		// Routes are learned from Capabilities; refresh once if it has not run.
		if _, err := m.Capabilities(ctx); err != nil {
			return "", err
		}
		m.mu.RLock()
		p, ok = m.routes[provider]
		m.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
	}
	return p.Invoke(ctx, provider, operation, params)
}

var _ Provider = (*Multi)(nil)
