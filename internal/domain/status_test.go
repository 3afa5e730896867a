package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	all := []OrderStatus{
		StatusPending, StatusAccepted, StatusCooking,
		StatusReady, StatusGiven, StatusCancelled,
	}

	legal := map[[2]OrderStatus]bool{
		{StatusPending, StatusAccepted}:  true,
		{StatusPending, StatusCancelled}: true,
		{StatusAccepted, StatusCooking}:  true,
		{StatusCooking, StatusReady}:     true,
		{StatusReady, StatusGiven}:       true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]OrderStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusGiven.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusReady.Terminal())
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("cooking")
	require.NoError(t, err)
	assert.Equal(t, StatusCooking, status)

	_, err = ParseOrderStatus("fried")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
