package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blueberrycongee/aihub/internal/store"
)

func defaultRules() FamilyRules {
	return FamilyRules{
		"gpt-":    "openai",
		"o1-":     "openai",
		"claude-": "anthropic",
		"local":   "local",
	}
}

func defaultFallbacks() FallbackRules {
	return FallbackRules{
		"openai":    "local",
		"anthropic": "local",
	}
}

func conn(id, family string, enabled bool, opts ...func(*store.Connection)) *store.Connection {
	c := &store.Connection{ID: id, ServiceKey: family, Enabled: enabled, UpdatedAt: time.Unix(0, 0)}
	for _, o := range opts {
		o(c)
	}
	return c
}

func withDefault() func(*store.Connection) { return func(c *store.Connection) { c.IsDefault = true } }
func withUpdatedAt(t time.Time) func(*store.Connection) {
	return func(c *store.Connection) { c.UpdatedAt = t }
}

func TestRoutePicksPrimaryAndFallback(t *testing.T) {
	conns := []*store.Connection{
		conn("c-openai", "openai", true),
		conn("c-local", "local", true),
	}
	chain := Route("gpt-4o", conns, defaultRules(), defaultFallbacks())
	if assert.Len(t, chain, 2) {
		assert.Equal(t, "openai", chain[0].Family)
		assert.Equal(t, "local", chain[1].Family)
	}
}

func TestRouteReturnsNilWhenNoConnectionConfigured(t *testing.T) {
	chain := Route("gpt-4o", nil, defaultRules(), defaultFallbacks())
	assert.Nil(t, chain)
}

func TestRouteSendsUnknownModelPrefixToLocal(t *testing.T) {
	conns := []*store.Connection{conn("c1", "openai", true), conn("c-local", "local", true)}
	chain := Route("qwen2.5:32b", conns, defaultRules(), defaultFallbacks())
	if assert.Len(t, chain, 1) {
		assert.Equal(t, "local", chain[0].Family)
		assert.Equal(t, "c-local", chain[0].Connection.ID)
	}
}

func TestRouteReturnsNilForUnknownModelPrefixWithoutLocalConnection(t *testing.T) {
	conns := []*store.Connection{conn("c1", "openai", true)}
	chain := Route("some-unknown-model", conns, defaultRules(), defaultFallbacks())
	assert.Nil(t, chain)
}

func TestRouteSkipsDisabledConnections(t *testing.T) {
	conns := []*store.Connection{
		conn("c-disabled", "openai", false),
		conn("c-enabled", "openai", true),
	}
	chain := Route("gpt-4o", conns, defaultRules(), defaultFallbacks())
	if assert.Len(t, chain, 1) {
		assert.Equal(t, "c-enabled", chain[0].Connection.ID)
	}
}

func TestRoutePrefersDefaultFlagOverRecency(t *testing.T) {
	conns := []*store.Connection{
		conn("c-recent", "openai", true, withUpdatedAt(time.Unix(100, 0))),
		conn("c-default", "openai", true, withDefault(), withUpdatedAt(time.Unix(1, 0))),
	}
	chain := Route("gpt-4o", conns, defaultRules(), defaultFallbacks())
	if assert.NotEmpty(t, chain) {
		assert.Equal(t, "c-default", chain[0].Connection.ID)
	}
}

func TestRouteBreaksTiesByIDAscending(t *testing.T) {
	same := time.Unix(50, 0)
	conns := []*store.Connection{
		conn("c-b", "openai", true, withUpdatedAt(same)),
		conn("c-a", "openai", true, withUpdatedAt(same)),
	}
	chain := Route("gpt-4o", conns, defaultRules(), defaultFallbacks())
	if assert.NotEmpty(t, chain) {
		assert.Equal(t, "c-a", chain[0].Connection.ID)
	}
}

func TestRouteLongestPrefixWins(t *testing.T) {
	rules := FamilyRules{"gpt-": "openai", "gpt-4-turbo": "openai-turbo-tier"}
	conns := []*store.Connection{conn("c1", "openai-turbo-tier", true)}
	chain := Route("gpt-4-turbo-preview", conns, rules, nil)
	if assert.NotEmpty(t, chain) {
		assert.Equal(t, "openai-turbo-tier", chain[0].Family)
	}
}

func TestRouteOmitsFallbackWhenNoneConfigured(t *testing.T) {
	conns := []*store.Connection{conn("c1", "openai", true)}
	chain := Route("gpt-4o", conns, defaultRules(), nil)
	assert.Len(t, chain, 1)
}

func TestRouteOmitsFallbackLinkWhenTargetHasNoEnabledConnection(t *testing.T) {
	conns := []*store.Connection{conn("c1", "openai", true)}
	chain := Route("gpt-4o", conns, defaultRules(), defaultFallbacks())
	assert.Len(t, chain, 1)
}
