package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCostConfigExactBeatsWildcard(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4*", InputUSDPerMillion: 30, OutputUSDPerMillion: 60})
	require.NoError(t, err)
	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4o", InputUSDPerMillion: 5, OutputUSDPerMillion: 15})
	require.NoError(t, err)

	found, err := s.FindCostConfig(c.ID, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", found.ModelPattern)
}

func TestFindCostConfigLongestWildcardWins(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4*", InputUSDPerMillion: 30, OutputUSDPerMillion: 60})
	require.NoError(t, err)
	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4-turbo*", InputUSDPerMillion: 10, OutputUSDPerMillion: 30})
	require.NoError(t, err)

	found, err := s.FindCostConfig(c.ID, "gpt-4-turbo-preview")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-turbo*", found.ModelPattern)
}

func TestFindCostConfigNoMatch(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	_, err = s.FindCostConfig(c.ID, "o1-preview")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertCostConfigReplacesOnConflict(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4o", InputUSDPerMillion: 5, OutputUSDPerMillion: 15})
	require.NoError(t, err)
	_, err = s.UpsertCostConfig(&CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4o", InputUSDPerMillion: 2.5, OutputUSDPerMillion: 10})
	require.NoError(t, err)

	configs, err := s.ListCostConfigs(c.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 2.5, configs[0].InputUSDPerMillion)
}
