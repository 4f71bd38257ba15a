package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachineDegradesAfterThreshold(t *testing.T) {
	h := newProviderHealth(Thresholds{DegradeAfterFailures: 3, ErrorAfterFailures: 6, RecoverAfterSuccesses: 3})

	assert.Equal(t, StateHealthy, h.State())
	h.RecordFailure()
	h.RecordFailure()
	assert.Equal(t, StateHealthy, h.State())
	assert.Equal(t, StateDegraded, h.RecordFailure())
}

func TestStateMachineEscalatesToError(t *testing.T) {
	h := newProviderHealth(Thresholds{DegradeAfterFailures: 3, ErrorAfterFailures: 6, RecoverAfterSuccesses: 3})

	for i := 0; i < 5; i++ {
		h.RecordFailure()
	}
	assert.Equal(t, StateDegraded, h.State())
	assert.Equal(t, StateError, h.RecordFailure())
}

func TestStateMachineRecoversAfterConsecutiveSuccesses(t *testing.T) {
	h := newProviderHealth(Thresholds{DegradeAfterFailures: 3, ErrorAfterFailures: 6, RecoverAfterSuccesses: 3})
	for i := 0; i < 6; i++ {
		h.RecordFailure()
	}
	require := assert.New(t)
	require.Equal(StateError, h.State())

	h.RecordSuccess()
	h.RecordSuccess()
	require.Equal(StateError, h.State())
	require.Equal(StateHealthy, h.RecordSuccess())
}

func TestStateMachineFailureResetsSuccessStreak(t *testing.T) {
	h := newProviderHealth(Thresholds{DegradeAfterFailures: 3, ErrorAfterFailures: 6, RecoverAfterSuccesses: 3})
	for i := 0; i < 4; i++ {
		h.RecordFailure()
	}
	h.RecordSuccess()
	h.RecordSuccess()
	h.RecordFailure()
	// success streak reset to 0, so two more successes should not yet recover
	h.RecordSuccess()
	h.RecordSuccess()
	assert.Equal(t, StateDegraded, h.State())
}

func TestStateMachineHealthyIgnoresStraySuccess(t *testing.T) {
	h := newProviderHealth(DefaultThresholds())
	assert.Equal(t, StateHealthy, h.RecordSuccess())
}
