package reachability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPrune(t *testing.T) {
	var r registry

	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = &Subscription{}
		r.add(subs[i])
	}
	require.Equal(t, 5, r.len())

	r.prune([]uint64{subs[1].id, subs[3].id})
	require.Equal(t, 3, r.len())

	var ids []uint64
	for _, e := range r.snapshot() {
		ids = append(ids, e.id)
	}
	assert.Equal(t, []uint64{subs[0].id, subs[2].id, subs[4].id}, ids)

	assert.True(t, r.remove(subs[2].id))
	assert.False(t, r.remove(subs[2].id))
	assert.Equal(t, 2, r.len())
}
