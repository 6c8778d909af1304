package coordinator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingTableResolve(t *testing.T) {
	p := newPendingTable[string]()
	ch := p.register("alice", "req-1")

	assert.True(t, p.resolve("req-1", "ok", nil))
	assert.False(t, p.resolve("req-1", "again", nil))
	assert.False(t, p.resolve("unknown", "x", nil))

	res := <-ch
	assert.Equal(t, "ok", res.value)
	assert.NoError(t, res.err)
	assert.Equal(t, 0, p.len())
}

func TestPendingTableFailOwner(t *testing.T) {
	p := newPendingTable[string]()
	a1 := p.register("alice", "a1")
	a2 := p.register("alice", "a2")
	p.register("bob", "b1")

	boom := errors.New("boom")
	assert.Equal(t, 2, p.failOwner("alice", boom))
	assert.ErrorIs(t, (<-a1).err, boom)
	assert.ErrorIs(t, (<-a2).err, boom)
	assert.Equal(t, 1, p.len())

	p.remove("b1")
	assert.Equal(t, 0, p.len())
	assert.Equal(t, 0, p.failOwner("bob", boom))
}
