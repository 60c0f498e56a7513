package reachability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/reachd/connectivity"
)

func TestLaneOrder(t *testing.T) {
	var l lane

	assert.True(t, l.push(connectivity.NotReachable))
	assert.False(t, l.push(connectivity.ViaCellular))

	status, ok := l.pop()
	require.True(t, ok)
	assert.Equal(t, connectivity.NotReachable, status)

	status, ok = l.pop()
	require.True(t, ok)
	assert.Equal(t, connectivity.ViaCellular, status)

	_, ok = l.pop()
	require.False(t, ok)

	// drained lanes need a new drain
	assert.True(t, l.push(connectivity.ViaLocalWireless))
}
