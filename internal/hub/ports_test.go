package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
)

func TestPortRegistryAddIsIdempotent(t *testing.T) {
	reg := NewPortRegistry()
	p := &fakePort{id: "42"}

	reg.Add(p)
	reg.Add(p)
	reg.Add(&fakePort{id: "42"})

	assert.Equal(t, 1, reg.Len())
}

func TestPortRegistryAssignsID(t *testing.T) {
	reg := NewPortRegistry()
	id := reg.Add(&fakePort{})

	require.NotEmpty(t, id)
	_, ok := reg.Get(id)
	assert.True(t, ok)
}

func TestPortRegistryRemove(t *testing.T) {
	reg := NewPortRegistry()
	p := &fakePort{id: "42"}
	reg.Add(p)

	reg.Remove("42")
	assert.Equal(t, 0, reg.Len())
	assert.True(t, p.closed)

	// removing again is a no-op
	reg.Remove("42")
	reg.Remove("unknown")
}

func TestPortRegistryPostBroadcasts(t *testing.T) {
	reg := NewPortRegistry()
	a := &fakePort{id: "a"}
	b := &fakePort{id: "b"}
	reg.Add(a)
	reg.Add(b)

	reg.Post(core.TopicUserJoined, "bob")

	require.Len(t, a.posts, 1)
	require.Len(t, b.posts, 1)
	assert.Equal(t, core.TopicUserJoined, a.posts[0].topic)
}

func TestPortRegistryPostToUnknownIsNoop(t *testing.T) {
	reg := NewPortRegistry()
	a := &fakePort{id: "a"}
	reg.Add(a)

	reg.PostTo("nope", core.TopicUserJoined, "bob")
	assert.Empty(t, a.posts)
}

func TestPortRegistryHooks(t *testing.T) {
	reg := NewPortRegistry()
	var added []core.PortID
	var removed []core.PortID
	reg.SetHooks(
		func(p core.Port) { added = append(added, p.ID()) },
		func(id core.PortID) { removed = append(removed, id) },
	)

	reg.Add(&fakePort{id: "a"})
	reg.Add(&fakePort{id: "a"}) // duplicate: no second hook call
	reg.Remove("a")
	reg.Remove("a")

	assert.Equal(t, []core.PortID{"a"}, added)
	assert.Equal(t, []core.PortID{"a"}, removed)
}
