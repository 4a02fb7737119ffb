package toolkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_AwaitConfirmationTimesOut(t *testing.T) {
	b := NewMemoryBroker()
	_, err := b.AwaitConfirmation(context.Background(), "call-1", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrBrokerTimeout)
}

func TestMemoryBroker_ResolveConfirmationBeforeAwaitStillDelivers(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.ResolveConfirmation("call-1", true))

	approved, err := b.AwaitConfirmation(context.Background(), "call-1", time.Second)
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestMemoryBroker_AwaitResultDeliveredConcurrently(t *testing.T) {
	b := NewMemoryBroker()
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = b.ResolveResult("call-2", ClientResult{Success: true})
	}()

	result, err := b.AwaitResult(context.Background(), "call-2", time.Second)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestMemoryBroker_AwaitRespectsContextCancellation(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.AwaitConfirmation(ctx, "call-3", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
