package iface

import (
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/token"
)

// maxTokenPages bounds a single allocation request. Nothing is committed at
// allocation time, but an absurd page count would still bloat the slot
// bookkeeping.
const maxTokenPages = 1 << 20

// TokenAlloc is the built-in token-allocation interface. Writing "pages"
// mints a token of that many uncommitted pages owned by the calling
// instance; the new token's ID comes back as the return value.
type TokenAlloc struct {
	env *proc.Env
}

// NewTokenAlloc builds the interface over env.
func NewTokenAlloc(env *proc.Env) *TokenAlloc {
	return &TokenAlloc{env: env}
}

// TypeID implements Interface.
func (ta *TokenAlloc) TypeID() uint64 { return BuiltinTokenAlloc }

// Get implements Interface.
func (ta *TokenAlloc) Get(_ *registry.Handle[proc.Thread], _, key uint64) Response {
	switch key {
	case KeyType:
		return OK(BuiltinTokenAlloc)
	case KeyPages:
		return Fail(event.WriteOnly)
	default:
		return Fail(event.BadKey)
	}
}

// Set implements Interface.
func (ta *TokenAlloc) Set(caller *registry.Handle[proc.Thread], _, key, value uint64) Response {
	switch key {
	case KeyPages:
		if value == 0 || value > maxTokenPages {
			return Fail(event.InterfaceError)
		}
		th := registry.Add(ta.env.Reg, token.New(int(value)))
		inst := callerInstance(caller)
		var id uint64
		inst.With(func(i *proc.Instance) { id = i.InsertToken(th) })
		return OK(id)
	case KeyType:
		return Fail(event.ReadOnly)
	default:
		return Fail(event.BadKey)
	}
}
