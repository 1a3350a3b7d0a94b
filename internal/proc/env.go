package proc

import (
	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// Env is the shared environment the resource model operates in: the
// architecture capability set, the external page-frame source, and the
// identity registry. One Env exists per booted kernel state and is threaded
// explicitly through constructors; there is no ambient singleton.
type Env struct {
	Arch   arch.Arch
	Frames arch.FrameAllocator
	Reg    *registry.Registry
}
