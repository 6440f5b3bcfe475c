package engine_test

import (
	"testing"

	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	info := engine.Normalize(engine.Info{Start: 0x400000, Length: 255, Repr: "<elf /bin/ls>"})
	assert.Equal(t, "0x400000", info.StartHex)
	assert.Equal(t, "0xff", info.LengthHex)
	assert.Equal(t, "<elf /bin/ls>", info.Filename)

	info = engine.Normalize(engine.Info{Filename: "/bin/ls", Repr: "x"})
	assert.Equal(t, "/bin/ls", info.Filename)
}

func TestDedupe(t *testing.T) {
	a := enginetest.NewHandle("a", engine.Info{Filename: "/bin/a"})
	b := enginetest.NewHandle("b", engine.Info{})

	out := engine.Dedupe([]engine.Discovered{
		{Handle: a, Filename: "/bin/a", Repr: "/bin/a", Source: "pinned"},
		{Handle: b, Filename: "", Repr: "<b>", Source: "watch"},
		{Handle: a, Filename: "/bin/a", Repr: "/bin/a", Source: "watch"},
		{Handle: b, Filename: "/tmp/b", Repr: "/tmp/b", Source: "pinned"},
		{Handle: a, Filename: "/bin/a", Repr: "/bin/a", Source: "pinned"},
		{Handle: nil, Source: "ghost"},
	})

	require.Len(t, out, 2)
	assert.Same(t, a, out[0].Handle)
	assert.Equal(t, "pinned,watch", out[0].Source)
	assert.Equal(t, "/tmp/b", out[1].Filename)
	assert.Equal(t, "/tmp/b", out[1].Repr)
	assert.Equal(t, "watch,pinned", out[1].Source)
}

func TestNamedAndMatch(t *testing.T) {
	entries := []engine.Discovered{
		{Filename: "/bin/LS", Repr: "/bin/LS"},
		{Filename: "", Repr: "<unnamed>"},
		{Filename: "/usr/bin/lsof", Repr: "/usr/bin/lsof"},
	}

	assert.Len(t, engine.Named(entries), 2)
	assert.Equal(t, []int{0, 2}, engine.Match(entries, "ls"))
	assert.Equal(t, []int{1}, engine.Match(entries, "UNNAMED"))
	assert.Empty(t, engine.Match(entries, "nothing"))
}
