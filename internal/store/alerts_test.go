package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertUpsertActiveDeduplicatesByConnectionAndKind(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	a1, created1, err := s.AlertUpsertActive(&Alert{ConnectionID: c.ID, Kind: AlertConsecutiveErrors, Severity: "warning", Message: "3 consecutive errors"})
	require.NoError(t, err)
	assert.True(t, created1)

	a2, created2, err := s.AlertUpsertActive(&Alert{ConnectionID: c.ID, Kind: AlertConsecutiveErrors, Severity: "critical", Message: "5 consecutive errors"})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, a1.ID, a2.ID)

	active, err := s.AlertListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "5 consecutive errors", active[0].Message)
	assert.Equal(t, "critical", active[0].Severity)
}

func TestAlertResolveRemovesFromActiveList(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	a, _, err := s.AlertUpsertActive(&Alert{ConnectionID: c.ID, Kind: AlertLatencySpike, Severity: "warning", Message: "p95 above threshold"})
	require.NoError(t, err)

	require.NoError(t, s.AlertResolve(a.ID))

	active, err := s.AlertListActive()
	require.NoError(t, err)
	assert.Empty(t, active)

	// A new alert of the same kind should be created fresh since the
	// prior one resolved, not merged into the resolved row.
	a2, created, err := s.AlertUpsertActive(&Alert{ConnectionID: c.ID, Kind: AlertLatencySpike, Severity: "warning", Message: "p95 above threshold again"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, a2.ID)
}

func TestAlertDismissRemovesFromActiveList(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&Connection{Name: "openai", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)

	a, _, err := s.AlertUpsertActive(&Alert{ConnectionID: c.ID, Kind: AlertBudgetThreshold, Severity: "warning", Message: "80% of daily budget consumed"})
	require.NoError(t, err)

	require.NoError(t, s.AlertDismiss(a.ID))

	active, err := s.AlertListActive()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAlertResolveUnknownIDNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.AlertResolve("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
