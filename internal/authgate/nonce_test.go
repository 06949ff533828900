package authgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonceCacheRejectsReuse(t *testing.T) {
	nc := NewNonceCache()

	assert.True(t, nc.CheckAndAdd("client:nonce-1"), "first use must be fresh")
	assert.False(t, nc.CheckAndAdd("client:nonce-1"), "second use must be rejected")
	assert.True(t, nc.CheckAndAdd("client:nonce-2"), "a distinct nonce is independent")
	assert.Equal(t, 2, nc.Len())
}
