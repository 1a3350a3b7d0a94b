package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nucleus-os/nucleus/internal/arch/sim"
	"github.com/nucleus-os/nucleus/internal/config"
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/iface"
	"github.com/nucleus-os/nucleus/internal/kernel"
	"github.com/nucleus-os/nucleus/internal/logging"
	"github.com/nucleus-os/nucleus/internal/monitoring"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/shared/id"
)

// bootSteps bounds the demo run; the simulated core reports timer expiries
// forever once its script is drained.
const bootSteps = 48

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	promReg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(promReg)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, promReg, logger)
	}

	machine := sim.NewMachine()
	frames := sim.NewFrames(cfg.Memory.FramePoolPages)
	env := &proc.Env{
		Arch:   machine,
		Frames: frames,
		Reg:    registry.New(id.NewGenerator()),
	}
	state := kernel.NewState(env, logger, metrics, cfg.Scheduler.TimeSliceTicks)

	logger.Info("kernel booting",
		zap.Int("cores", cfg.Cores.Count),
		zap.Uint32("time_slice_ticks", cfg.Scheduler.TimeSliceTicks),
		zap.Int("frame_pool_pages", cfg.Memory.FramePoolPages),
	)

	cores := make([]*sim.Core, cfg.Cores.Count)
	kernels := make([]*kernel.Kernel, cfg.Cores.Count)
	for i := range cores {
		cores[i] = sim.NewCore(uint32(i))
		kernels[i] = kernel.New(state, cores[i])
	}
	core, k := cores[0], kernels[0]

	// Secondary cores come online before any work exists; they idle on
	// their slice timers. The demo workload below claims core 0.
	for i, kc := range kernels[1:] {
		kc.Boot()
		logger.Info("secondary core online", zap.Int("core", i+1))
	}

	module, instance, err := loadDemoWorkload(state, frames)
	if err != nil {
		logger.Fatal("failed to load demo workload", zap.Error(err))
	}
	logger.Debug("demo module mounted", zap.Uint64("module", module.ID()))

	threadA, err := state.SpawnThread(instance, 0x8000_0000)
	if err != nil {
		logger.Fatal("failed to spawn thread", zap.Error(err))
	}
	threadB, err := state.SpawnThread(instance, 0x8000_0040)
	if err != nil {
		logger.Fatal("failed to spawn thread", zap.Error(err))
	}

	core.Push(demoScript(threadA.ID())...)

	d := k.Boot()
	for i := 0; i < bootSteps; i++ {
		d = k.RunOnce(d)
	}

	logger.Info("simulation complete",
		zap.Int("context_switches", core.Switches()),
		zap.Int("halts", core.Halts()),
		zap.Int("frames_allocated", frames.Allocated()),
		zap.Int("registered_resources", env.Reg.Len()),
		zap.String("thread_a", describeThread(threadA)),
		zap.String("thread_b", describeThread(threadB)),
	)
}

// loadDemoWorkload builds a two-page module image and mounts one instance
// of it on the root ring.
func loadDemoWorkload(state *kernel.State, frames *sim.Frames) (*registry.Handle[proc.Module], *registry.Handle[proc.Instance], error) {
	seg := proc.SegmentImage{Base: 0x8000_0000}
	for i := 0; i < 2; i++ {
		phys, ok := frames.Allocate()
		if !ok {
			return nil, nil, fmt.Errorf("frame pool exhausted loading module image")
		}
		seg.Frames = append(seg.Frames, phys)
	}

	module, err := state.LoadModule(id.NewTagger().Tag(), []proc.SegmentImage{seg})
	if err != nil {
		return nil, nil, err
	}
	instance, err := state.SpawnInstance(module, state.RootRing())
	if err != nil {
		return nil, nil, err
	}
	return module, instance, nil
}

// demoScript exercises the system-call surface end to end: token allocation
// and placement, lazy commits on fault, debug output, and a deferred
// self-stop that hands the core to the second thread, which then restarts
// the first.
func demoScript(threadAID uint64) []event.Preemption {
	// Resource IDs are deterministic: the token minted below is the next ID
	// after the spawned threads.
	tokenID := threadAID + 2

	return []event.Preemption{
		// Thread A: allocate a two-page token.
		event.SystemCall{Request: event.SystemCallRequest{
			Opcode: event.OpSet, InterfaceID: iface.BuiltinTokenAlloc,
			Key: iface.KeyPages, Value: 2,
		}},
		// Thread A: reserve it at 0x2000.
		event.SystemCall{Request: event.SystemCallRequest{
			Opcode: event.OpSet, InterfaceID: iface.BuiltinMemToken,
			Index: tokenID, Key: iface.KeyBase, Value: 0x2000,
		}},
		// Thread A: touch both pages; each fault commits one frame.
		event.PageFault{Address: 0x2008, Access: event.AccessWrite},
		event.PageFault{Address: 0x3010, Access: event.AccessWrite},
		// Thread A: say hello ("ok\n" packed big-endian).
		event.SystemCall{Request: event.SystemCallRequest{
			Opcode: event.OpSet, InterfaceID: iface.BuiltinDebugOut,
			Key: iface.KeyWrite, Value: 0x6F6B_0A,
		}},
		// Thread A: stop itself. The transition defers, the thread parks,
		// and the core falls to thread B.
		event.SystemCall{Request: event.SystemCallRequest{
			Opcode: event.OpSet, InterfaceID: iface.BuiltinThreadControl,
			Index: 0, Key: iface.KeyStatus, Value: uint64(proc.RunStateStopped),
		}},
		// Thread B: restart thread A.
		event.SystemCall{Request: event.SystemCallRequest{
			Opcode: event.OpSet, InterfaceID: iface.BuiltinThreadControl,
			Index: threadAID, Key: iface.KeyStatus, Value: uint64(proc.RunStateRunning),
		}},
		event.Timer{},
		event.Yield{},
		event.Timer{},
	}
}

func describeThread(th *registry.Handle[proc.Thread]) string {
	var s string
	th.With(func(t *proc.Thread) { s = t.RunState().String() })
	return s
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
