// Package dummy implements a minimal sensor node type: on each
// TIMER_TRIGGER it is subscribed to, it emits one fixed data frame on its
// single out-hook. Grounded on modules/sensors/dummy/dummy.c; used as the
// "source" type in the fan-out scenario.
package dummy

import (
	"fmt"

	"github.com/rcc-msu/dimmon/pkg/kernel"
)

const TypeName = "sensor/dummy"

// Config carries the sensor id and payload dummy sends on every trigger.
// Defaults match the original's empty-payload trigger: sensor id 42,
// payload "hi".
type Config struct {
	SensorID kernel.SensorID
	Payload  []byte
}

func DefaultConfig() Config {
	return Config{SensorID: 42, Payload: []byte("hi")}
}

type private struct {
	cfg  Config
	hook *kernel.Hook
}

func init() {
	if err := kernel.GlobalRegistry.Register(&kernel.NodeType{
		Name:    TypeName,
		Ctor:    ctor,
		RcvMsg:  rcvMsg,
		NewHook: newHook,
		RmHook:  rmHook,
	}); err != nil {
		panic(fmt.Sprintf("registering %s: %v", TypeName, err))
	}
}

func ctor(n *kernel.Node) (kernel.Private, error) {
	return &private{cfg: DefaultConfig()}, nil
}

// Configure overrides the sensor id / payload sent by n, which must be a
// dummy node. Intended for starter node types that parse a declarative
// config blob before wiring the pipeline.
func Configure(n *kernel.Node, cfg Config) error {
	p, ok := n.Private().(*private)
	if !ok {
		return fmt.Errorf("configure %s: not a %s node", n, TypeName)
	}
	p.cfg = cfg
	return nil
}

func newHook(n *kernel.Node, name string, dir kernel.HookDir) error {
	if dir == kernel.HookIn {
		return fmt.Errorf("dummy newhook: %w", kernel.EInvalid)
	}
	p := n.Private().(*private)
	if p.outHook(n) != nil {
		return fmt.Errorf("dummy newhook: %w", kernel.EExists)
	}
	return nil
}

func rmHook(n *kernel.Node, h *kernel.Hook) {
	p := n.Private().(*private)
	if p.hook == h {
		p.hook = nil
	}
}

// outHook returns the node's "out" hook, or nil if it has none. newHook
// can't see the *kernel.Hook being created (it only validates the
// request), so the hook is looked up lazily in the node's own hook list
// and cached, both by newHook's duplicate check and by rcvMsg below.
func (p *private) outHook(n *kernel.Node) *kernel.Hook {
	if p.hook != nil && p.hook.IsValid() {
		return p.hook
	}
	if h, ok := n.FindHook("out", kernel.HookOut); ok {
		p.hook = h
		return h
	}
	return nil
}

func rcvMsg(n *kernel.Node, msg *kernel.Message) error {
	if msg.Type != kernel.TypeGeneric || msg.Cmd != kernel.CmdTimerTrigger {
		return fmt.Errorf("dummy rcvmsg: %w", kernel.ENotSupported)
	}
	p := n.Private().(*private)
	hook := p.outHook(n)
	if hook == nil {
		return nil
	}
	frame, err := kernel.NewFrame(kernel.Datanode{Sensor: p.cfg.SensorID, Payload: p.cfg.Payload})
	if err != nil {
		return fmt.Errorf("dummy: building frame: %w", err)
	}
	return n.Runtime().Send(hook, frame)
}
