package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTC(t *testing.T) {
	t.Parallel()

	c := New()
	now := c.Now()
	require.Equal(t, time.UTC, now.Location())
	require.WithinDuration(t, time.Now().UTC(), now, time.Second)
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	c.Sleep(ctx, time.Minute)
	require.Less(t, time.Since(start), time.Second)
}
