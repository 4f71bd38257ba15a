package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertConnectionInsertsThenUpdates(t *testing.T) {
	s := newTestStore(t)

	c := &Connection{Name: "primary openai", ServiceKey: "openai", Enabled: true, IsDefault: true}
	saved, err := s.UpsertConnection(c)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	saved.Name = "renamed"
	updated, err := s.UpsertConnection(saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)

	fetched, err := s.GetConnection(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", fetched.Name)
	assert.Equal(t, saved.CreatedAt, fetched.CreatedAt)
}

func TestUpsertConnectionUnknownIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertConnection(&Connection{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleConnectionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "local ollama", ServiceKey: "local", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, s.ToggleConnection(c.ID, false))
	fetched, err := s.GetConnection(c.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Enabled)

	require.NoError(t, s.ToggleConnection(c.ID, true))
	fetched, err = s.GetConnection(c.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Enabled)
	assert.Equal(t, c.Name, fetched.Name)
	assert.Equal(t, c.ServiceKey, fetched.ServiceKey)
}

func TestDeleteConnectionCascadeRemovesCostConfigs(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "anthropic main", ServiceKey: "anthropic", Enabled: true})
	require.NoError(t, err)

	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "claude-*", InputUSDPerMillion: 3, OutputUSDPerMillion: 15})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConnectionCascade(c.ID))

	_, err = s.GetConnection(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	configs, err := s.ListCostConfigs(c.ID)
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestListConnectionsOrdersByID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertConnection(&Connection{Name: "a", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)
	_, err = s.UpsertConnection(&Connection{Name: "b", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	conns, err := s.ListConnections()
	require.NoError(t, err)
	assert.Len(t, conns, 2)
}
