package netdev_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/netdev"
)

func TestConfig_validate(t *testing.T) {
	t.Parallel()

	var nilConf *netdev.Config
	assert.Error(t, nilConf.Validate())

	assert.Error(t, (&netdev.Config{}).Validate())
	assert.NoError(t, (&netdev.Config{Name: "eth0"}).Validate())
}

func TestEmptyManager_open(t *testing.T) {
	t.Parallel()

	m := netdev.EmptyManager{}
	dev, err := m.Open(t.Context(), &netdev.Config{Name: "eth0"})
	require.NoError(t, err)

	assert.Nil(t, dev.HardwareAddr())
	assert.Empty(t, dev.Addresses())
	assert.True(t, dev.LinkUp())
	assert.NoError(t, dev.WriteFrame([]byte{1, 2, 3}))
	assert.NoError(t, dev.Close())
}

func TestEmptyDevice_readFrameBlocksUntilCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	dev := netdev.EmptyDevice{}
	frame, err := dev.ReadFrame(ctx)
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, context.Canceled)
}
