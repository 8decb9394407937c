package redisclient

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(Options{Addr: mr.Addr(), PoolSize: 4, MinIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 4, client.Options().PoolSize)
	assert.Equal(t, 2, client.Options().MinIdleConns)
	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClientDefaultsPool(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 10, client.Options().PoolSize)
	assert.Equal(t, 1, client.Options().MinIdleConns)
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
