// Package prepend implements a single in/out passthrough transform that
// prepends one extra datanode ahead of every forwarded frame. Grounded on
// modules/prepend/prepend.c. SPEC_FULL §13 Open Question 1 resolves the
// original's overlapping PREPEND_TIMESTAMP/PREPEND_ADDR bit values as two
// mutually exclusive Mode values instead of independent flags.
package prepend

import (
	"encoding/binary"
	"fmt"

	"github.com/rcc-msu/dimmon/pkg/kernel"
)

const TypeName = "transform/prepend"

// Mode selects what prepend puts in the extra datanode.
type Mode int

const (
	// ModeAddr prepends the id of the node that sent the frame, packed
	// as a big-endian u64 payload.
	ModeAddr Mode = iota
	// ModeTimestamp prepends the current wall-clock time as nanoseconds
	// since the Unix epoch, packed as a big-endian u64 payload.
	ModeTimestamp
)

type private struct {
	out  *kernel.Hook
	mode Mode
	sensor kernel.SensorID
}

func init() {
	if err := kernel.GlobalRegistry.Register(&kernel.NodeType{
		Name:    TypeName,
		Ctor:    ctor,
		RcvData: rcvData,
		NewHook: newHook,
		RmHook:  rmHook,
	}); err != nil {
		panic(fmt.Sprintf("registering %s: %v", TypeName, err))
	}
}

func ctor(n *kernel.Node) (kernel.Private, error) {
	return &private{mode: ModeAddr, sensor: 1}, nil
}

// Configure sets the mode and sensor id of the prepended datanode for n,
// which must be a prepend node.
func Configure(n *kernel.Node, mode Mode, sensor kernel.SensorID) error {
	p, ok := n.Private().(*private)
	if !ok {
		return fmt.Errorf("configure %s: not a %s node", n, TypeName)
	}
	p.mode = mode
	p.sensor = sensor
	return nil
}

func newHook(n *kernel.Node, name string, dir kernel.HookDir) error {
	switch dir {
	case kernel.HookIn:
		if name != "in" {
			return fmt.Errorf("prepend newhook: %w", kernel.EInvalid)
		}
	case kernel.HookOut:
		if name != "out" {
			return fmt.Errorf("prepend newhook: %w", kernel.EInvalid)
		}
	}
	return nil
}

func rmHook(n *kernel.Node, h *kernel.Hook) {
	p := n.Private().(*private)
	if p.out == h {
		p.out = nil
	}
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
	p := n.Private().(*private)
	out := p.outHook(n)
	if out == nil {
		return nil
	}

	var payload [8]byte
	switch p.mode {
	case ModeAddr:
		var addr kernel.ID
		if peers := h.Peers(); len(peers) > 0 {
			addr = peers[0].Node().ID()
		}
		binary.BigEndian.PutUint64(payload[:], uint64(addr))
	case ModeTimestamp:
		binary.BigEndian.PutUint64(payload[:], uint64(n.Runtime().Clock.Now().UnixNano()))
	}

	nodes := make([]kernel.Datanode, 0, f.Len()+1)
	nodes = append(nodes, kernel.Datanode{Sensor: p.sensor, Payload: payload[:]})
	for i := 0; i < f.Len(); i++ {
		nodes = append(nodes, f.Nodes[i])
	}
	newFrame, err := kernel.NewFrame(nodes...)
	if err != nil {
		return fmt.Errorf("prepend: building frame: %w", err)
	}
	return n.Runtime().Send(out, newFrame)
}
