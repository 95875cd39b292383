package kernel

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rcc-msu/dimmon/pkg/log"
)

// Runtime is one process's kernel instance: the node table, the timer and
// socket-event subsystems, the wave counter, and the OS poller that
// drives them all. Exactly one Runtime exists per process in practice
// (cmd/dimmon constructs it once), but nothing in this package enforces
// that — tests construct isolated Runtimes freely. The process-global
// piece is the type Registry (see registry.go's GlobalRegistry), because
// node-type packages self-register from init(), before any Runtime can
// exist.
type Runtime struct {
	Registry *Registry
	Log      *log.Logger
	Clock    Clock
	Poller   Poller

	// WaveHook, if set, is called once per main loop iteration right
	// after WaveFinish, letting an external diagnostics consumer observe
	// every wave without the kernel importing anything about how that
	// consumer works.
	WaveHook func(wave ID, trace uuid.UUID)

	nodes       map[ID]*Node
	nodesByName map[string]*Node
	nextNode    ID

	timers       map[ID]*Timer
	triggerQueue []*Timer

	sockEvents map[int]*sockEvent

	waveFinishes map[ID]*waveFinish
	wave         ID
	waveTrace    uuid.UUID

	nextEvent ID

	running bool
}

// Options configures a new Runtime. Zero-value fields take sane
// defaults: the process-global type registry, the system clock, and (on
// Linux) an epoll-backed Poller.
type Options struct {
	Registry *Registry
	Clock    Clock
	Poller   Poller
	Log      *log.Logger
}

// New constructs a Runtime. It does not start the poller or create any
// node; call Initialize before the main loop, matching the original's
// split between dmm_initialize (resource setup) and dmm_startup (first
// node).
func New(opts Options) (*Runtime, error) {
	rt := &Runtime{
		Registry:     opts.Registry,
		Clock:        opts.Clock,
		Poller:       opts.Poller,
		Log:          opts.Log,
		nodes:        make(map[ID]*Node),
		nodesByName:  make(map[string]*Node),
		timers:       make(map[ID]*Timer),
		sockEvents:   make(map[int]*sockEvent),
		waveFinishes: make(map[ID]*waveFinish),
	}
	if rt.Registry == nil {
		rt.Registry = GlobalRegistry
	}
	if rt.Clock == nil {
		rt.Clock = SystemClock
	}
	if rt.Log == nil {
		rt.Log = log.ForService("kernel")
	}
	return rt, nil
}

// Initialize prepares OS resources the main loop needs: the poller (if
// Options didn't supply one) and a monotonic-clock sanity check. Matches
// dmm_initialize's epoll_create1 + clock_gettime probes; a failure here
// is always fatal (§7), since there is no way to run the event loop
// without either.
func (rt *Runtime) Initialize() error {
	if rt.Poller == nil {
		p, err := NewEpollPoller()
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		rt.Poller = p
	}
	now := rt.Clock.Now()
	if now.IsZero() {
		return fmt.Errorf("initialize: clock source is not functional: %w", EInvalid)
	}
	return nil
}

// Logger returns the runtime's logger, tagged with the in-flight wave's
// trace id once WaveStart has run at least once, so that every warning
// or debug line emitted while processing a wave — by the kernel or by a
// node type's own code — can be grepped back to the single stimulus
// that produced it.
func (rt *Runtime) Logger() *log.Logger {
	if rt.waveTrace == uuid.Nil {
		return rt.Log
	}
	return rt.Log.WithTrace(rt.waveTrace.String()[:8])
}

func (rt *Runtime) nextNodeID() ID {
	rt.nextNode++
	return rt.nextNode
}

func (rt *Runtime) nextEventID() ID {
	rt.nextEvent++
	return rt.nextEvent
}

// Startup creates the starter node of the given type and sends it a
// STARTUP message carrying fd and lineno, matching dmm_startup. Errors
// here are fatal: a runtime with no starter node can make no further
// progress.
func (rt *Runtime) Startup(starterType string, fd int, lineno int) error {
	starter, err := rt.CreateNode(starterType)
	if err != nil {
		return fmt.Errorf("startup: creating starter node of type %q: %w", starterType, err)
	}
	msg := NewMessage(0, CmdStartup, TypeGeneric, 0, 0, StartupPayload{FD: fd, LineNo: lineno})
	if err := rt.SendToID(starter.id, msg); err != nil {
		return fmt.Errorf("startup: delivering STARTUP: %w", err)
	}
	return nil
}
