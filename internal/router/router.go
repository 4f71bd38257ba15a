// Package router selects, for a chat model name, the ordered chain of
// configured connections that should serve the request: a primary plus
// zero or more fallbacks. Route is a pure function — it reads no
// global state and is safe to call concurrently from every request
// goroutine.
package router

import (
	"sort"
	"strings"

	"github.com/blueberrycongee/aihub/internal/store"
)

// FamilyRules maps a model name prefix to the provider family that
// serves it (e.g. "gpt-" -> "openai", "claude-" -> "anthropic").
// Longer prefixes are tried first so "gpt-4-turbo" style overrides
// still resolve correctly against a plain "gpt-" catch-all.
type FamilyRules map[string]string

// FallbackRules maps a primary family to the family that should be
// tried next when the primary has no enabled connection or every
// attempt against it exhausts retries (e.g. "openai" -> "local").
type FallbackRules map[string]string

// Entry is one link in the routing chain returned by Route.
type Entry struct {
	Family     string
	Connection *store.Connection
}

// localFamily is the catch-all family for "local" and any model name
// no configured prefix rule claims: a local OpenAI-compatible server.
const localFamily = "local"

// Route resolves the model name to a provider family via rules, picks
// the best enabled connection for that family, then walks fallbackRules
// to append further links. A model matching no rule falls back to
// localFamily. It returns nil if no enabled connection exists for the
// resolved primary family — callers translate that into a "provider
// not configured" client error.
func Route(model string, connections []*store.Connection, rules FamilyRules, fallbacks FallbackRules) []Entry {
	family, ok := resolveFamily(model, rules)
	if !ok {
		family = localFamily
	}

	primary, ok := bestConnection(connections, family)
	if !ok {
		return nil
	}

	chain := []Entry{{Family: family, Connection: primary}}

	visited := map[string]bool{family: true}
	current := family
	for {
		next, ok := fallbacks[current]
		if !ok || next == "" || visited[next] {
			break
		}
		visited[next] = true
		if conn, ok := bestConnection(connections, next); ok {
			chain = append(chain, Entry{Family: next, Connection: conn})
		}
		current = next
	}

	return chain
}

// resolveFamily finds the longest matching prefix rule for model.
func resolveFamily(model string, rules FamilyRules) (string, bool) {
	var bestPrefix, bestFamily string
	for prefix, family := range rules {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestFamily = prefix, family
		}
	}
	return bestFamily, bestPrefix != ""
}

// bestConnection picks the highest-priority enabled connection for a
// family: explicit default flag wins first, then most-recently-updated,
// then lowest id ascending as the final, fully deterministic tiebreak.
func bestConnection(connections []*store.Connection, family string) (*store.Connection, bool) {
	var candidates []*store.Connection
	for _, c := range connections {
		if c.Enabled && c.ServiceKey == family {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return candidates[0], true
}
