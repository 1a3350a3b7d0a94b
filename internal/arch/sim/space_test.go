package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/event"
)

func TestMapUnmapRoundTrip(t *testing.T) {
	space := NewSpace()
	frames := NewFrames(4)
	um, err := space.NewUserSpace()
	require.NoError(t, err)

	data := space.UserData()
	phys, ok := frames.Allocate()
	require.True(t, ok)

	require.NoError(t, data.Map(um, 0x2000, phys))

	got, ok := um.(*Mapper).Translate(0x2ABC)
	require.True(t, ok, "unaligned addresses resolve through their page")
	assert.Equal(t, phys, got)

	assert.ErrorIs(t, data.Map(um, 0x2000, phys), arch.MapExists)
	assert.ErrorIs(t, data.Map(um, 0x2001, phys), arch.MapVirtNotAligned)
	assert.ErrorIs(t, data.Map(um, 0x0000, phys), arch.MapVirtOutOfRange)

	back, err := data.Unmap(um, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, phys, back)

	_, err = data.Unmap(um, 0x2000)
	assert.ErrorIs(t, err, arch.UnmapNotMapped)
}

func TestShareIntoOverlaysByReference(t *testing.T) {
	space := NewSpace()
	frames := NewFrames(4)

	master, err := space.NewUserSpace()
	require.NoError(t, err)
	code := space.UserCode()

	phys, _ := frames.Allocate()
	require.NoError(t, code.Map(master, 0x8000_0000, phys))

	inst, err := space.NewUserSpace()
	require.NoError(t, err)
	require.NoError(t, code.ShareInto(inst, master))

	got, ok := inst.(*Mapper).Translate(0x8000_0000)
	require.True(t, ok)
	assert.Equal(t, phys, got)

	// New mappings in the master surface through existing views.
	phys2, _ := frames.Allocate()
	require.NoError(t, code.Map(master, 0x8000_1000, phys2))
	got, ok = inst.(*Mapper).Translate(0x8000_1000)
	require.True(t, ok)
	assert.Equal(t, phys2, got)
}

func TestShallowDuplicateKeepsPrivateAdditionsPrivate(t *testing.T) {
	space := NewSpace()
	frames := NewFrames(4)

	base, err := space.NewUserSpace()
	require.NoError(t, err)
	dup, err := space.DuplicateUserSpaceShallow(base)
	require.NoError(t, err)

	stack := space.UserThreadStack()
	phys, _ := frames.Allocate()
	require.NoError(t, stack.Map(dup, 0xA000_0000, phys))

	_, ok := base.(*Mapper).Translate(0xA000_0000)
	assert.False(t, ok, "private additions must not leak into the source")

	_, ok = dup.(*Mapper).Translate(0xA000_0000)
	assert.True(t, ok)
}

func TestFreeDeepReclaimsOnlyOwnedFrames(t *testing.T) {
	space := NewSpace()
	frames := NewFrames(8)

	master, _ := space.NewUserSpace()
	code := space.UserCode()
	masterPhys, _ := frames.Allocate()
	require.NoError(t, code.Map(master, 0x8000_0000, masterPhys))

	dup, _ := space.DuplicateUserSpaceShallow(master)
	stack := space.UserThreadStack()
	dupPhys, _ := frames.Allocate()
	require.NoError(t, stack.Map(dup, 0xA000_0000, dupPhys))
	require.Equal(t, 2, frames.Allocated())

	space.FreeUserSpaceDeep(dup, frames)
	assert.Equal(t, 1, frames.Allocated(), "only the duplicate's own frame returns")

	_, ok := master.(*Mapper).Translate(0x8000_0000)
	assert.True(t, ok, "the master mapping survives the duplicate's teardown")
}

func TestUnmapAllAndReclaimScopedToSegment(t *testing.T) {
	space := NewSpace()
	frames := NewFrames(8)

	um, _ := space.NewUserSpace()
	data := space.UserData()
	stack := space.UserThreadStack()

	p1, _ := frames.Allocate()
	p2, _ := frames.Allocate()
	require.NoError(t, data.Map(um, 0x2000, p1))
	require.NoError(t, stack.Map(um, 0xA000_0000, p2))

	stack.UnmapAllAndReclaim(um, frames)
	assert.Equal(t, 1, frames.Allocated())

	_, ok := um.(*Mapper).Translate(0x2000)
	assert.True(t, ok, "data mapping untouched")
	_, ok = um.(*Mapper).Translate(0xA000_0000)
	assert.False(t, ok)
}

func TestCoreScriptReplay(t *testing.T) {
	core := NewCore(1)
	assert.Equal(t, uint32(1), core.ID())

	core.Push(event.Yield{}, event.PageFault{Address: 0x2000})

	ev := core.RunContext(nil, 10, nil)
	assert.IsType(t, event.Yield{}, ev)
	assert.Equal(t, 1, core.Halts())

	ev = core.RunContext(nil, 10, nil)
	assert.IsType(t, event.PageFault{}, ev)

	// Drained script reports timer expiries so an idle loop stays live.
	ev = core.RunContext(nil, 10, nil)
	assert.IsType(t, event.Timer{}, ev)
}

func TestFrameRecordsResponse(t *testing.T) {
	f := NewFrame(uint64(event.OpGet), 7, 1, 2, 3)
	req := arch.DecodeSystemCall(f)
	assert.Equal(t, event.OpGet, req.Opcode)
	assert.Equal(t, uint64(7), req.InterfaceID)

	f.SetReturnValue(99)
	f.SetError(event.OK)
	f.ReturnToCaller()

	code, ret, returned := f.Result()
	assert.Equal(t, event.OK, code)
	assert.Equal(t, uint64(99), ret)
	assert.True(t, returned)
}

func TestMapperSatisfiesUserMapper(t *testing.T) {
	um, err := NewSpace().NewUserSpace()
	require.NoError(t, err)

	// The opaque handle downcasts back to the simulator's concrete type.
	m, ok := um.(*Mapper)
	assert.True(t, ok)
	assert.NotNil(t, m)
}
