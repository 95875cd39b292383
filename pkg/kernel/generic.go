package kernel

import (
	"fmt"
	"time"
)

// Generic command payloads. These replace the original's packed C structs
// (struct dmm_msg_nodecreate, dmm_msg_nodeconnect, ...) with plain Go
// values carried in Message.Data; the wire codec in wire.go knows how to
// flatten/parse these to and from the §6 network form when a message
// needs to cross a process boundary.

type NodeCreatePayload struct{ TypeName string }
type NodeCreateResp struct{ ID ID }

type NodeConnectPayload struct {
	SrcHook string
	DstNode string
	DstHook string
}

type NodeDisconnectPayload struct {
	SrcHook string
	DstNode string
	DstHook string
}

type NodeSetNamePayload struct{ Name string }

type TimerCreateResp struct{ ID ID }

type TimerSetPayload struct {
	ID       ID
	Next     time.Duration
	Interval time.Duration
	Flags    TimerFlag
}

type TimerSubscribePayload struct{ ID ID }
type TimerUnsubscribePayload struct{ ID ID }
type TimerRemovePayload struct{ ID ID }
type TimerTriggerPayload struct{ ID ID }

type SockEventSubscribePayload struct {
	FD     int
	Events SockEventMask
}
type SockEventUnsubscribePayload struct{ FD int }
type SockEventTriggerPayload struct {
	FD     int
	Events SockEventMask
}

type StartupPayload struct {
	FD     int
	LineNo int
}

// dispatchGeneric implements the central command table of §4.4, matching
// dmm_msg_process_generic. Every branch that calls Respond sends an
// automatic response (success or error) back to msg.Src; branches that
// forward a notification to the node's own RcvMsg do not, matching the
// original's PASS_MSG_TO_NODE macro.
func (rt *Runtime) dispatchGeneric(n *Node, msg *Message) error {
	respond := func(data any, err error) error {
		var resp *Message
		if err != nil {
			resp = msg.NewErrorResponse(n.id, err)
		} else {
			resp = msg.NewResponse(n.id, data)
		}
		if sendErr := rt.SendToID(msg.Src, resp); sendErr != nil {
			rt.Logger().Warnf("dispatch %d: responding to node %d: %v", msg.Cmd, msg.Src, sendErr)
		}
		return nil
	}

	switch msg.Cmd {
	case CmdNodeCreate:
		p, ok := msg.Data.(NodeCreatePayload)
		if !ok {
			return respond(nil, fmt.Errorf("node create: %w", EInvalid))
		}
		newNode, err := rt.CreateNode(p.TypeName)
		if err != nil {
			return respond(nil, err)
		}
		return respond(NodeCreateResp{ID: newNode.id}, nil)

	case CmdNodeRemove:
		err := rt.RemoveNode(n)
		return respond(nil, err)

	case CmdNodeConnect:
		p, ok := msg.Data.(NodeConnectPayload)
		if !ok {
			return respond(nil, fmt.Errorf("node connect: %w", EInvalid))
		}
		dst, err := rt.NodeByAddr(p.DstNode)
		if err != nil {
			return respond(nil, fmt.Errorf("node connect: %w", EInvalid))
		}
		err = rt.connectByName(n, p.SrcHook, dst, p.DstHook)
		return respond(nil, err)

	case CmdNodeDisconnect:
		p, ok := msg.Data.(NodeDisconnectPayload)
		if !ok {
			return respond(nil, fmt.Errorf("node disconnect: %w", EInvalid))
		}
		dst, err := rt.NodeByAddr(p.DstNode)
		if err != nil {
			return respond(nil, fmt.Errorf("node disconnect: %w", EInvalid))
		}
		err = rt.disconnectByName(n, p.SrcHook, dst, p.DstHook)
		return respond(nil, err)

	case CmdNodeSetName:
		p, ok := msg.Data.(NodeSetNamePayload)
		if !ok {
			return respond(nil, fmt.Errorf("node set name: %w", EInvalid))
		}
		err := rt.SetName(n, p.Name)
		return respond(nil, err)

	case CmdStartup:
		return passToNode(n, msg)

	case CmdTimerCreate:
		t, err := rt.CreateTimer()
		if err != nil {
			return respond(TimerCreateResp{}, err)
		}
		return respond(TimerCreateResp{ID: t.id()}, nil)

	case CmdTimerSet:
		p, ok := msg.Data.(TimerSetPayload)
		if !ok {
			return respond(nil, fmt.Errorf("timer set: %w", EInvalid))
		}
		t, err := rt.TimerByID(p.ID)
		if err != nil {
			return respond(nil, err)
		}
		err = rt.SetTimer(t, p.Next, p.Interval, p.Flags)
		return respond(nil, err)

	case CmdTimerSubscribe:
		p, ok := msg.Data.(TimerSubscribePayload)
		if !ok {
			return respond(nil, fmt.Errorf("timer subscribe: %w", EInvalid))
		}
		t, err := rt.TimerByID(p.ID)
		if err != nil {
			return respond(nil, err)
		}
		err = rt.SubscribeEvent(&t.event, n)
		return respond(nil, err)

	case CmdTimerUnsubscribe:
		p, ok := msg.Data.(TimerUnsubscribePayload)
		if !ok {
			return respond(nil, fmt.Errorf("timer unsubscribe: %w", EInvalid))
		}
		t, err := rt.TimerByID(p.ID)
		if err != nil {
			return respond(nil, err)
		}
		err = rt.UnsubscribeEvent(&t.event, n)
		return respond(nil, err)

	case CmdTimerTrigger:
		return passToNode(n, msg)

	case CmdTimerRemove:
		p, ok := msg.Data.(TimerRemovePayload)
		if !ok {
			return respond(nil, fmt.Errorf("timer remove: %w", EInvalid))
		}
		err := rt.RemoveTimer(p.ID)
		return respond(nil, err)

	case CmdSockEventSubscribe:
		p, ok := msg.Data.(SockEventSubscribePayload)
		if !ok {
			return respond(nil, fmt.Errorf("sockevent subscribe: %w", EInvalid))
		}
		err := rt.SubscribeSockEvent(p.FD, p.Events, n)
		return respond(nil, err)

	case CmdSockEventUnsubscribe:
		p, ok := msg.Data.(SockEventUnsubscribePayload)
		if !ok {
			return respond(nil, fmt.Errorf("sockevent unsubscribe: %w", EInvalid))
		}
		err := rt.UnsubscribeSockEvent(p.FD, n)
		return respond(nil, err)

	case CmdSockEventTrigger:
		return passToNode(n, msg)

	case CmdWaveFinishSubscribe:
		err := rt.WaveFinishSubscribe(n)
		return respond(nil, err)

	case CmdWaveFinish:
		return passToNode(n, msg)

	default:
		rt.Logger().Errorf("unknown generic message %d", msg.Cmd)
		return respond(nil, fmt.Errorf("dispatch generic: cmd %d: %w", msg.Cmd, EInvalid))
	}
}

func passToNode(n *Node, msg *Message) error {
	if n.typ.RcvMsg == nil {
		return fmt.Errorf("%s has no rcvmsg: %w", n, EInvalid)
	}
	return n.typ.RcvMsg(n, msg)
}

// connectByName resolves hook names on each side, creating an out-hook or
// in-hook implicitly (via CreateHook, which itself consults NewHook) when
// the named hook does not already exist — the §4.2 fan-in/fan-out pattern
// aggregateall relies on.
func (rt *Runtime) connectByName(src *Node, srcHook string, dst *Node, dstHook string) error {
	out, ok := src.FindHook(srcHook, HookOut)
	if !ok {
		var err error
		out, err = rt.CreateHook(src, srcHook, HookOut)
		if err != nil {
			return err
		}
	}
	in, ok := dst.FindHook(dstHook, HookIn)
	if !ok {
		var err error
		in, err = rt.CreateHook(dst, dstHook, HookIn)
		if err != nil {
			return err
		}
	}
	return rt.Connect(out, in)
}

func (rt *Runtime) disconnectByName(src *Node, srcHook string, dst *Node, dstHook string) error {
	out, ok := src.FindHook(srcHook, HookOut)
	if !ok {
		return fmt.Errorf("disconnect: %w", ENotFound)
	}
	in, ok := dst.FindHook(dstHook, HookIn)
	if !ok {
		return fmt.Errorf("disconnect: %w", ENotFound)
	}
	return rt.Disconnect(out, in)
}
