package reachability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/reachd/connectivity"
)

func TestDispatchDropsUnknownToken(t *testing.T) {
	token := registerContext(nil)
	require.True(t, releaseContext(token))
	require.False(t, releaseContext(token))

	_, ok := lookupContext(token)
	assert.False(t, ok)

	// must not reach the nil monitor
	dispatch(token, connectivity.Reachable)
}
