package inmemorygateway_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	inmemorygateway "github.com/pco-network/pco/internal/infrastructure/payment/inmemory"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	ctx := context.Background()
	gateway := inmemorygateway.NewGateway()

	require.True(t, gateway.BalanceOf("alice").IsZero())

	require.NoError(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(10)))
	require.NoError(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(5)))
	require.Equal(t, uint64(15), gateway.BalanceOf("alice").Uint64())

	gateway.Reject("alice")
	require.Error(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(1)))
	require.Equal(t, uint64(15), gateway.BalanceOf("alice").Uint64())

	gateway.Accept("alice")
	require.NoError(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(1)))
	require.Equal(t, uint64(16), gateway.BalanceOf("alice").Uint64())

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(
		t, gateway.Send(canceledCtx, uuid.NewString(), "bob", uint256.NewInt(1)), context.Canceled,
	)
	require.True(t, gateway.BalanceOf("bob").IsZero())

	gateway.Close()
	require.Error(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(1)))
}

func TestSendSameId(t *testing.T) {
	ctx := context.Background()
	gateway := inmemorygateway.NewGateway()
	id := uuid.NewString()

	require.NoError(t, gateway.Send(ctx, id, "alice", uint256.NewInt(10)))
	require.NoError(t, gateway.Send(ctx, id, "alice", uint256.NewInt(10)))
	require.Equal(t, uint64(10), gateway.BalanceOf("alice").Uint64())

	// a failed payment can be sent again under the same id
	failedId := uuid.NewString()
	gateway.Reject("alice")
	require.Error(t, gateway.Send(ctx, failedId, "alice", uint256.NewInt(3)))
	gateway.Accept("alice")
	require.NoError(t, gateway.Send(ctx, failedId, "alice", uint256.NewInt(3)))
	require.Equal(t, uint64(13), gateway.BalanceOf("alice").Uint64())
}

func TestOnReceive(t *testing.T) {
	ctx := context.Background()
	gateway := inmemorygateway.NewGateway()

	var received *uint256.Int
	gateway.OnReceive("alice", func(_ context.Context, amount *uint256.Int) error {
		received = amount
		return nil
	})
	require.NoError(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(7)))
	require.Equal(t, uint64(7), received.Uint64())

	gateway.OnReceive("alice", func(_ context.Context, _ *uint256.Int) error {
		return fmt.Errorf("no thanks")
	})
	require.Error(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(7)))
	require.Equal(t, uint64(7), gateway.BalanceOf("alice").Uint64())

	gateway.OnReceive("alice", nil)
	require.NoError(t, gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(3)))
	require.Equal(t, uint64(10), gateway.BalanceOf("alice").Uint64())
}

func TestOnReceiveStalling(t *testing.T) {
	gateway := inmemorygateway.NewGateway()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	gateway.OnReceive("alice", func(_ context.Context, _ *uint256.Int) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := gateway.Send(ctx, uuid.NewString(), "alice", uint256.NewInt(7))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
	require.True(t, gateway.BalanceOf("alice").IsZero())
}
