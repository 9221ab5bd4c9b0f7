package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestInvalidatorDeliversMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := New(ctx, mr.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	inv := NewInvalidator(client, nil)
	got := make(chan string, 1)
	require.NoError(t, inv.Subscribe(ctx, ChannelAdministrators, func(reason string) { got <- reason }))
	require.NoError(t, inv.Publish(ctx, ChannelAdministrators, "rights-migrated"))

	select {
	case reason := <-got:
		require.Equal(t, "rights-migrated", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not delivered")
	}
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr, 0)
	require.Error(t, err)
}
