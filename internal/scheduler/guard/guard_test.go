package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureJobKnown(t *testing.T) {
	known := []string{"invoice.close", "usage.drain"}

	require.NoError(t, EnsureJobKnown("invoice.close", known))
	require.NoError(t, EnsureJobKnown(" Invoice.Close ", known), "case and whitespace must not matter")
	require.ErrorIs(t, EnsureJobKnown("invoice.shred", known), ErrUnknownJob)
}

func TestEnsureDailyHour(t *testing.T) {
	for _, hour := range []int{0, 12, 23} {
		require.NoError(t, EnsureDailyHour(hour), "hour %d", hour)
	}
	for _, hour := range []int{-1, 24} {
		require.ErrorIs(t, EnsureDailyHour(hour), ErrInvalidDailyHour, "hour %d", hour)
	}
}

func TestEnsureIntervals(t *testing.T) {
	require.NoError(t, EnsureTick(time.Second))
	require.ErrorIs(t, EnsureTick(0), ErrInvalidTick)
	require.ErrorIs(t, EnsureJobTimeout(-time.Second), ErrInvalidJobTimeout)
}

func TestEnsureLookahead(t *testing.T) {
	require.NoError(t, EnsureLookahead(7))
	require.ErrorIs(t, EnsureLookahead(-1), ErrInvalidLookahead)
	require.ErrorIs(t, EnsureLookahead(45), ErrInvalidLookahead)
}
