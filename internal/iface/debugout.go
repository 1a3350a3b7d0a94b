package iface

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// debugLineMax caps a single accumulated line; longer lines flush early.
const debugLineMax = 1024

// DebugOut is the built-in debug-output interface. Each write carries up to
// eight characters packed big-endian in the value; bytes accumulate per
// thread and flush to the kernel log on newline.
type DebugOut struct {
	log *zap.Logger

	mu    sync.Mutex
	lines map[uint64]*strings.Builder
}

// NewDebugOut builds the interface over the kernel log.
func NewDebugOut(log *zap.Logger) *DebugOut {
	return &DebugOut{
		log:   log,
		lines: make(map[uint64]*strings.Builder),
	}
}

// TypeID implements Interface.
func (do *DebugOut) TypeID() uint64 { return BuiltinDebugOut }

// Get implements Interface.
func (do *DebugOut) Get(_ *registry.Handle[proc.Thread], _, key uint64) Response {
	switch key {
	case KeyType:
		return OK(BuiltinDebugOut)
	case KeyWrite:
		return Fail(event.WriteOnly)
	default:
		return Fail(event.BadKey)
	}
}

// Set implements Interface.
func (do *DebugOut) Set(caller *registry.Handle[proc.Thread], _, key, value uint64) Response {
	switch key {
	case KeyWrite:
		do.write(caller.ID(), value)
		return OK(0)
	case KeyType:
		return Fail(event.ReadOnly)
	default:
		return Fail(event.BadKey)
	}
}

// write unpacks the value's characters into the thread's line, flushing on
// newline or overflow. NUL bytes pad short writes and are skipped.
func (do *DebugOut) write(threadID, value uint64) {
	do.mu.Lock()
	defer do.mu.Unlock()

	line := do.lines[threadID]
	if line == nil {
		line = &strings.Builder{}
		do.lines[threadID] = line
	}
	for i := 7; i >= 0; i-- {
		c := byte(value >> (uint(i) * 8))
		switch {
		case c == 0:
			continue
		case c == '\n':
			do.flush(threadID, line)
		default:
			line.WriteByte(c)
			if line.Len() >= debugLineMax {
				do.flush(threadID, line)
			}
		}
	}
}

func (do *DebugOut) flush(threadID uint64, line *strings.Builder) {
	do.log.Info("debug output",
		zap.Uint64("thread", threadID),
		zap.String("line", line.String()),
	)
	line.Reset()
}
