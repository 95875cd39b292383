// Package aggregateall implements a fan-in aggregator: any number of
// in-hooks, created implicitly on first connection (see
// pkg/kernel.connectByName), each feeding one upstream sensor. On each
// TIMER_TRIGGER it is subscribed to, it emits one frame carrying the most
// recent datanode received on every in-hook that has seen traffic since
// the previous emission. Grounded on modules/aggregateall/aggregateall.cc,
// simplified from that file's numeric min/avg/max accumulation (SPEC_FULL
// §12.4) down to "latest value per hook", since the numeric accumulation
// is orthogonal to the fan-in wiring pattern this package exists to
// demonstrate.
package aggregateall

import (
	"fmt"

	"github.com/rcc-msu/dimmon/pkg/kernel"
)

const TypeName = "aggregate/aggregateall"

type private struct {
	out     *kernel.Hook
	latest  map[*kernel.Hook]kernel.Datanode
	touched map[*kernel.Hook]bool
}

func init() {
	if err := kernel.GlobalRegistry.Register(&kernel.NodeType{
		Name:    TypeName,
		Ctor:    ctor,
		RcvData: rcvData,
		RcvMsg:  rcvMsg,
		NewHook: newHook,
		RmHook:  rmHook,
	}); err != nil {
		panic(fmt.Sprintf("registering %s: %v", TypeName, err))
	}
}

func ctor(n *kernel.Node) (kernel.Private, error) {
	return &private{
		latest:  make(map[*kernel.Hook]kernel.Datanode),
		touched: make(map[*kernel.Hook]bool),
	}, nil
}

func newHook(n *kernel.Node, name string, dir kernel.HookDir) error {
	if dir != kernel.HookOut {
		return nil
	}
	p := n.Private().(*private)
	if p.outHook(n) != nil {
		return fmt.Errorf("aggregateall newhook: %w", kernel.EExists)
	}
	return nil
}

func rmHook(n *kernel.Node, h *kernel.Hook) {
	p := n.Private().(*private)
	if p.out == h {
		p.out = nil
	}
	delete(p.latest, h)
	delete(p.touched, h)
}

func (p *private) outHook(n *kernel.Node) *kernel.Hook {
	if p.out != nil && p.out.IsValid() {
		return p.out
	}
	if h, ok := n.FindHook("out", kernel.HookOut); ok {
		p.out = h
		return h
	}
	return nil
}

func rcvData(n *kernel.Node, h *kernel.Hook, f *kernel.Frame) error {
	if f.Len() == 0 {
		return nil
	}
	p := n.Private().(*private)
	last := f.Nodes[f.Len()-1]
	cp := make([]byte, len(last.Payload))
	copy(cp, last.Payload)
	p.latest[h] = kernel.Datanode{Sensor: last.Sensor, Payload: cp}
	p.touched[h] = true
	return nil
}

func rcvMsg(n *kernel.Node, msg *kernel.Message) error {
	if msg.Type != kernel.TypeGeneric || msg.Cmd != kernel.CmdTimerTrigger {
		return fmt.Errorf("aggregateall rcvmsg: %w", kernel.ENotSupported)
	}
	p := n.Private().(*private)
	out := p.outHook(n)
	if out == nil || len(p.touched) == 0 {
		p.touched = make(map[*kernel.Hook]bool)
		return nil
	}
	var nodes []kernel.Datanode
	for h := range p.touched {
		nodes = append(nodes, p.latest[h])
	}
	p.touched = make(map[*kernel.Hook]bool)
	frame, err := kernel.NewFrame(nodes...)
	if err != nil {
		return fmt.Errorf("aggregateall: building frame: %w", err)
	}
	return n.Runtime().Send(out, frame)
}
