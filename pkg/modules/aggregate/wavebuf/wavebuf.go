// Package wavebuf implements a wave-coalescing aggregator: it buffers
// every frame received during a wave on its single in-hook and, when the
// wave finishes, concatenates the buffered frames' datanodes into one
// outgoing frame on its out-hook. Grounded on modules/wavebuf/wavebuf.c.
package wavebuf

import (
	"fmt"

	"github.com/rcc-msu/dimmon/pkg/kernel"
)

const TypeName = "aggregate/wavebuf"

type private struct {
	out *kernel.Hook
	buf []*kernel.Frame
}

func init() {
	if err := kernel.GlobalRegistry.Register(&kernel.NodeType{
		Name:    TypeName,
		Ctor:    ctor,
		Dtor:    dtor,
		RcvData: rcvData,
		RcvMsg:  rcvMsg,
		NewHook: newHook,
		RmHook:  rmHook,
	}); err != nil {
		panic(fmt.Sprintf("registering %s: %v", TypeName, err))
	}
}

func ctor(n *kernel.Node) (kernel.Private, error) {
	return &private{}, nil
}

func dtor(n *kernel.Node) {
	p := n.Private().(*private)
	for _, f := range p.buf {
		f.Unref()
	}
	p.buf = nil
}

func newHook(n *kernel.Node, name string, dir kernel.HookDir) error {
	if dir == kernel.HookIn {
		return nil
	}
	if name != "out" {
		return fmt.Errorf("wavebuf newhook: %w", kernel.EInvalid)
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
	f.Ref()
	if len(p.buf) == 0 {
		msg := kernel.NewMessage(n.ID(), kernel.CmdWaveFinishSubscribe, kernel.TypeGeneric, 0, 0, nil)
		if err := n.Runtime().SendToID(n.ID(), msg); err != nil {
			f.Unref()
			return fmt.Errorf("wavebuf: subscribing to wave finish: %w", err)
		}
	}
	p.buf = append(p.buf, f)
	return nil
}

func rcvMsg(n *kernel.Node, msg *kernel.Message) error {
	if msg.Flags&kernel.MsgResp != 0 {
		if msg.Flags&kernel.MsgErr != 0 {
			n.Runtime().Logger().Errorf("%s: received error response", n)
		}
		return nil
	}
	if msg.Type != kernel.TypeGeneric || msg.Cmd != kernel.CmdWaveFinish {
		return fmt.Errorf("wavebuf rcvmsg: %w", kernel.ENotSupported)
	}

	p := n.Private().(*private)
	var merged []kernel.Datanode
	for _, f := range p.buf {
		for _, dn := range f.Nodes {
			if dn.Sensor == 0 {
				break
			}
			merged = append(merged, dn)
		}
		f.Unref()
	}
	p.buf = nil

	out := p.outHook(n)
	if out == nil {
		return nil
	}
	frame, err := kernel.NewFrame(merged...)
	if err != nil {
		return fmt.Errorf("wavebuf: building merged frame: %w", err)
	}
	return n.Runtime().Send(out, frame)
}
