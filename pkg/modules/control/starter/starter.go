// Package starter implements the config file's "starter node type"
// contract (§6): it receives STARTUP with a file descriptor and line
// number, reads the remainder of the config file, parses it as a
// pkg/config.StarterSpec TOML document, and drives pipeline construction
// via NODE_CREATE / NODE_CONNECT / TIMER_CREATE / TIMER_SET /
// TIMER_SUBSCRIBE control messages. Grounded on modules/starter/starter.c,
// whose pending-continuation pattern — resuming an action when the
// response to its request arrives — is preserved here as the pending
// table, keyed on the request token alone (the response's type and
// command are not compared), even though the embedded Lua
// control node that pattern originally served
// (modules/luacontrol/luacontrol.cc) is out of scope (SPEC_FULL §12.6).
package starter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rcc-msu/dimmon/pkg/config"
	"github.com/rcc-msu/dimmon/pkg/kernel"
)

func durationMillis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

const TypeName = "control/starter"

type continuation func(n *kernel.Node, resp *kernel.Message) error

type private struct {
	nodeByName map[string]kernel.ID
	pending    map[uint32]continuation
	nextToken  uint32
	spec       *config.StarterSpec
}

func init() {
	if err := kernel.GlobalRegistry.Register(&kernel.NodeType{
		Name:    TypeName,
		Ctor:    ctor,
		RcvMsg:  rcvMsg,
		NewHook: newHook,
	}); err != nil {
		panic(fmt.Sprintf("registering %s: %v", TypeName, err))
	}
}

func ctor(n *kernel.Node) (kernel.Private, error) {
	return &private{
		nodeByName: make(map[string]kernel.ID),
		pending:    make(map[uint32]continuation),
	}, nil
}

func newHook(n *kernel.Node, name string, dir kernel.HookDir) error {
	return fmt.Errorf("starter newhook: %w", kernel.EInvalid)
}

func (p *private) token() uint32 {
	p.nextToken++
	return p.nextToken
}

func rcvMsg(n *kernel.Node, msg *kernel.Message) error {
	p := n.Private().(*private)

	if msg.Flags&kernel.MsgResp != 0 {
		cont, ok := p.pending[msg.Token]
		if !ok {
			n.Runtime().Logger().Warnf("%s: unexpected response token %d", n, msg.Token)
			return nil
		}
		delete(p.pending, msg.Token)
		if msg.Flags&kernel.MsgErr != 0 {
			n.Runtime().Logger().Errorf("%s: command failed: %v", n, msg.Data)
			return nil
		}
		return cont(n, msg)
	}

	if msg.Type != kernel.TypeGeneric || msg.Cmd != kernel.CmdStartup {
		return fmt.Errorf("starter rcvmsg: %w", kernel.ENotSupported)
	}
	startup, ok := msg.Data.(kernel.StartupPayload)
	if !ok {
		return fmt.Errorf("starter: malformed startup payload: %w", kernel.EInvalid)
	}
	return processStartup(n, startup)
}

func processStartup(n *kernel.Node, startup kernel.StartupPayload) error {
	f := os.NewFile(uintptr(startup.FD), "dimmon-config-remainder")
	if f == nil {
		return fmt.Errorf("starter: invalid remainder fd %d: %w", startup.FD, kernel.EInvalid)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("starter: reading remainder: %w", err)
	}
	spec, err := config.ParseStarterSpec(raw)
	if err != nil {
		n.Runtime().Logger().Errorf("%s: remainder is not a starter spec, no pipeline built: %v", n, err)
		return nil
	}

	p := n.Private().(*private)
	p.spec = spec
	rt := n.Runtime()

	for _, decl := range spec.Nodes {
		decl := decl
		tok := p.token()
		p.pending[tok] = func(n *kernel.Node, resp *kernel.Message) error {
			created, ok := resp.Data.(kernel.NodeCreateResp)
			if !ok {
				return fmt.Errorf("starter: malformed nodecreate response: %w", kernel.EInvalid)
			}
			p.nodeByName[decl.Name] = created.ID
			return nil
		}
		req := kernel.NewMessage(n.ID(), kernel.CmdNodeCreate, kernel.TypeGeneric, tok, 0,
			kernel.NodeCreatePayload{TypeName: decl.Type})
		if err := rt.SendToID(n.ID(), req); err != nil {
			return fmt.Errorf("starter: creating node %s: %w", decl.Name, err)
		}
	}

	for _, hook := range spec.Hooks {
		srcID, ok := p.nodeByName[hook.SrcNode]
		if !ok {
			n.Runtime().Logger().Errorf("%s: hook refers to unknown node %q", n, hook.SrcNode)
			continue
		}
		dstID, ok := p.nodeByName[hook.DstNode]
		if !ok {
			n.Runtime().Logger().Errorf("%s: hook refers to unknown node %q", n, hook.DstNode)
			continue
		}
		tok := p.token()
		p.pending[tok] = func(n *kernel.Node, resp *kernel.Message) error { return nil }
		req := kernel.NewMessage(n.ID(), kernel.CmdNodeConnect, kernel.TypeGeneric, tok, 0,
			kernel.NodeConnectPayload{SrcHook: hook.SrcHook, DstNode: fmt.Sprintf("[%d]", dstID), DstHook: hook.DstHook})
		if err := rt.SendToID(srcID, req); err != nil {
			return fmt.Errorf("starter: connecting %s.%s to %s.%s: %w", hook.SrcNode, hook.SrcHook, hook.DstNode, hook.DstHook, err)
		}
	}

	for _, timer := range spec.Timers {
		nodeID, ok := p.nodeByName[timer.Node]
		if !ok {
			n.Runtime().Logger().Errorf("%s: timer refers to unknown node %q", n, timer.Node)
			continue
		}
		if err := wireTimer(n, nodeID, timer); err != nil {
			return err
		}
	}

	return nil
}

// wireTimer sends TIMER_CREATE to the starter itself, on that response
// sends TIMER_SET (also to the starter), and on the TIMER_SET response
// sends TIMER_SUBSCRIBE to the declared node, chaining through the
// pending-continuation table the
// way the original's process_commands serializes one outstanding command
// at a time.
func wireTimer(n *kernel.Node, nodeID kernel.ID, decl config.StarterTimer) error {
	p := n.Private().(*private)
	rt := n.Runtime()
	interval := durationMillis(decl.IntervalMS)

	createTok := p.token()
	p.pending[createTok] = func(n *kernel.Node, resp *kernel.Message) error {
		created, ok := resp.Data.(kernel.TimerCreateResp)
		if !ok {
			return fmt.Errorf("starter: malformed timercreate response: %w", kernel.EInvalid)
		}
		setTok := p.token()
		p.pending[setTok] = func(n *kernel.Node, resp *kernel.Message) error {
			subTok := p.token()
			p.pending[subTok] = func(n *kernel.Node, resp *kernel.Message) error { return nil }
			subReq := kernel.NewMessage(n.ID(), kernel.CmdTimerSubscribe, kernel.TypeGeneric, subTok, 0,
				kernel.TimerSubscribePayload{ID: created.ID})
			return rt.SendToID(nodeID, subReq)
		}
		setReq := kernel.NewMessage(n.ID(), kernel.CmdTimerSet, kernel.TypeGeneric, setTok, 0,
			kernel.TimerSetPayload{ID: created.ID, Next: interval, Interval: interval})
		return rt.SendToID(n.ID(), setReq)
	}
	createReq := kernel.NewMessage(n.ID(), kernel.CmdTimerCreate, kernel.TypeGeneric, createTok, 0, nil)
	return rt.SendToID(n.ID(), createReq)
}
