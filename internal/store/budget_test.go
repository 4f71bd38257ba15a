package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBudgetLimitsDefaultsOnBootstrap(t *testing.T) {
	s := newTestStore(t)
	b, err := s.GetBudgetLimits()
	require.NoError(t, err)
	assert.Equal(t, 5.0, b.DailyLimitUSD)
	assert.Equal(t, 25.0, b.WeeklyLimitUSD)
	assert.Equal(t, 80.0, b.MonthlyLimitUSD)
}

func TestPutBudgetLimitsOverwritesSingleton(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutBudgetLimits(&BudgetLimit{DailyLimitUSD: 10, WeeklyLimitUSD: 50, MonthlyLimitUSD: 150})
	require.NoError(t, err)

	b, err := s.GetBudgetLimits()
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.DailyLimitUSD)
	assert.Equal(t, 150.0, b.MonthlyLimitUSD)
}

func TestAggregateSpendFiltersByConnectionAndWindow(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", ConnectionID: c.ID, CostUSD: 1.5, Success: true}))
	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", ConnectionID: "other", CostUSD: 9, Success: true}))

	spend, err := s.AggregateSpend(c.ID, Window24h)
	require.NoError(t, err)
	assert.Equal(t, 1.5, spend)

	total, err := s.AggregateSpend("", Window24h)
	require.NoError(t, err)
	assert.Equal(t, 10.5, total)
}
