//go:build linux
// +build linux

package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
)

func TestDefault_Lifecycle(t *testing.T) {
	require.NoError(t, CloseDefault())
	cfg := DefaultConfig()
	cfg.ReadChunkSize = 512
	require.NoError(t, Configure(cfg))

	n, err := Default()
	require.NoError(t, err)
	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, n, again)
	assert.Equal(t, 512, n.Config().ReadChunkSize)

	assert.ErrorIs(t, Configure(DefaultConfig()), api.ErrAlreadyExists)

	require.NoError(t, CloseDefault())
	assert.True(t, n.Closed())

	fresh, err := Default()
	require.NoError(t, err)
	assert.NotSame(t, n, fresh)
	require.NoError(t, CloseDefault())
	require.NoError(t, Configure(DefaultConfig()))
}
