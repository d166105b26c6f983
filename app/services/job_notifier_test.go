package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopJobNotifier(t *testing.T) {
	var n JobNotifier = NoopJobNotifier{}
	require.NoError(t, n.NotifyJobReady(context.Background(), JobReadyMessage{JobID: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.NoError(t, n.Close())
}
