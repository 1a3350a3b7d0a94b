package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/arch/sim"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/shared/id"
)

// testEnv builds a simulated environment with the given frame budget.
func testEnv(framePool int) (*Env, *sim.Frames) {
	frames := sim.NewFrames(framePool)
	return &Env{
		Arch:   sim.NewMachine(),
		Frames: frames,
		Reg:    registry.New(id.NewGenerator()),
	}, frames
}

// testModule loads a one-page module image at the bottom of the code
// segment.
func testModule(t *testing.T, env *Env) *registry.Handle[Module] {
	t.Helper()
	phys, ok := env.Frames.Allocate()
	require.True(t, ok)
	h, err := NewModule(env, id.NewTagger().Tag(), []SegmentImage{
		{Base: 0x8000_0000, Frames: []arch.PhysAddr{phys}},
	})
	require.NoError(t, err)
	return h
}

// testInstance mounts a fresh module instance on the root ring.
func testInstance(t *testing.T, env *Env) (*registry.Handle[Instance], *registry.Handle[Ring]) {
	t.Helper()
	root := NewRootRing(env)
	module := testModule(t, env)
	inst, err := NewInstance(env, module, root)
	require.NoError(t, err)
	// Drop the loader's module reference; the instance keeps its own.
	ReleaseModule(env, module)
	return inst, root
}
