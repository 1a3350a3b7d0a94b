package iface

import (
	"errors"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/token"
)

// MemToken is the built-in memory-token interface.
//
// Index is a token resource ID owned by the calling instance. Geometry keys
// read the token's shape; writing "base" reserves the token's page run at a
// virtual address without backing any page (pages commit lazily on first
// fault), and writing "forget" drops the instance's ownership, reclaiming
// whatever frames were committed.
type MemToken struct {
	env *proc.Env
}

// NewMemToken builds the interface over env.
func NewMemToken(env *proc.Env) *MemToken {
	return &MemToken{env: env}
}

// TypeID implements Interface.
func (mt *MemToken) TypeID() uint64 { return BuiltinMemToken }

// Get implements Interface.
func (mt *MemToken) Get(caller *registry.Handle[proc.Thread], index, key uint64) Response {
	th, ok := mt.token(caller, index)
	if !ok {
		return Fail(event.BadIndex)
	}
	var pageSize, pageCount, committed, size int
	th.With(func(t *token.Token) {
		pageSize = t.PageSize()
		pageCount = t.PageCount()
		committed = t.Committed()
		size = t.Size()
	})
	switch key {
	case KeyID:
		return OK(th.ID())
	case KeyType:
		return OK(BuiltinMemToken)
	case KeyPageSize:
		return OK(uint64(pageSize))
	case KeyPages:
		return OK(uint64(pageCount))
	case KeySize:
		return OK(uint64(size))
	case KeyCommitted:
		return OK(uint64(committed))
	case KeyBase, KeyForget:
		return Fail(event.WriteOnly)
	default:
		return Fail(event.BadKey)
	}
}

// Set implements Interface.
func (mt *MemToken) Set(caller *registry.Handle[proc.Thread], index, key, value uint64) Response {
	inst := callerInstance(caller)
	switch key {
	case KeyBase:
		th, ok := mt.token(caller, index)
		if !ok {
			return Fail(event.BadIndex)
		}
		var err error
		inst.With(func(i *proc.Instance) {
			err = i.TryMapTokenAt(th, arch.VirtAddr(value))
		})
		var mapErr proc.TokenMapError
		switch {
		case err == nil:
			return OK(0)
		case errors.As(err, &mapErr):
			return Immediate(event.InterfaceError, uint64(mapErr))
		default:
			return Fail(event.InterfaceError)
		}
	case KeyForget:
		var (
			th *registry.Handle[token.Token]
			ok bool
		)
		inst.With(func(i *proc.Instance) { th, ok = i.ForgetToken(index) })
		if !ok {
			return Fail(event.BadIndex)
		}
		th.With(func(t *token.Token) { t.ReleaseAll(mt.env.Frames) })
		mt.env.Reg.Remove(th.ID())
		return OK(0)
	case KeyID, KeyType, KeyPageSize, KeyPages, KeySize, KeyCommitted:
		return Fail(event.ReadOnly)
	default:
		return Fail(event.BadKey)
	}
}

// token resolves index to a token owned by the caller's instance.
func (mt *MemToken) token(caller *registry.Handle[proc.Thread], index uint64) (*registry.Handle[token.Token], bool) {
	inst := callerInstance(caller)
	var (
		th *registry.Handle[token.Token]
		ok bool
	)
	inst.With(func(i *proc.Instance) { th, ok = i.Token(index) })
	return th, ok
}
