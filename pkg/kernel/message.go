package kernel

import "fmt"

// MsgFlag mirrors the cm_flags bitfield of struct dmm_msg.
type MsgFlag uint32

const (
	// MsgResp marks a message as a response to an earlier request.
	MsgResp MsgFlag = 1 << iota
	// MsgErr marks a response as carrying an error (only valid with
	// MsgResp set).
	MsgErr
)

// TypeGeneric is the reserved cm_type value the runtime itself dispatches
// (see generic.go); node types must not register callbacks against it and
// must pick their own cm_type constant for their private message
// vocabulary, exactly as the original's comment instructs integrators to
// "uuidgen | tail -c 9" a type id.
const TypeGeneric uint32 = 0x0ddfe6d5

// Generic command identifiers, matching the DMM_MSG_* enum.
const (
	CmdStartup = 1

	CmdNodeCreate     = 10
	CmdNodeRemove     = 11
	CmdNodeConnect    = 12
	CmdNodeDisconnect = 13
	CmdNodeSetName    = 14

	CmdTimerCreate      = 30
	CmdTimerSet         = 31
	CmdTimerRemove      = 32
	CmdTimerSubscribe   = 33
	CmdTimerUnsubscribe = 34
	CmdTimerTrigger     = 35

	CmdSockEventSubscribe   = 40
	CmdSockEventUnsubscribe = 41
	CmdSockEventTrigger     = 42

	CmdWaveFinish          = 100
	CmdWaveFinishSubscribe = 101
)

// Message is a control message: addressed, typed, tokenized, and carrying
// an arbitrary payload the receiver's RcvMsg (or the runtime's generic
// dispatcher) interprets according to Type and Cmd. Matches struct
// dmm_msg.
type Message struct {
	Src   ID
	Cmd   uint32
	Type  uint32
	Token uint32
	Flags MsgFlag
	Data  any
}

// NewMessage builds a request message, matching dmm_msg_create.
func NewMessage(src ID, cmd, typ, token uint32, flags MsgFlag, data any) *Message {
	return &Message{Src: src, Cmd: cmd, Type: typ, Token: token, Flags: flags, Data: data}
}

// NewResponse builds a response to msg carrying the given payload,
// matching dmm_msg_create_resp: same Cmd and Type, same Token so the
// original requester can correlate it, MsgResp set, and Src identifies
// the responder.
func (msg *Message) NewResponse(src ID, data any) *Message {
	return &Message{Src: src, Cmd: msg.Cmd, Type: msg.Type, Token: msg.Token, Flags: MsgResp, Data: data}
}

// NewErrorResponse is NewResponse with MsgErr also set; Data is typically
// the error value itself.
func (msg *Message) NewErrorResponse(src ID, err error) *Message {
	return &Message{Src: src, Cmd: msg.Cmd, Type: msg.Type, Token: msg.Token, Flags: MsgResp | MsgErr, Data: err}
}

// Copy returns a shallow duplicate of msg, matching dmm_msg_copy; used by
// the event subsystem to hand each subscriber its own message while
// consuming the original (see event.go's sendSubscribed).
func (msg *Message) Copy() *Message {
	cp := *msg
	return &cp
}

// SendToNode delivers msg to n, matching dmm_msg_apply. A non-response
// generic message (Type == TypeGeneric and the MsgResp flag clear) is
// intercepted and handled centrally by the runtime's generic dispatcher;
// every other message — including generic *notifications* such as
// TIMERTRIGGER/SOCKEVENTTRIGGER/WAVEFINISH/STARTUP, and every response,
// generic or not — goes straight to the node's own RcvMsg.
func (rt *Runtime) SendToNode(n *Node, msg *Message) error {
	if !n.valid {
		return fmt.Errorf("send to %s: %w", n, ENotFound)
	}
	if msg.Type == TypeGeneric && msg.Flags&MsgResp == 0 {
		return rt.dispatchGeneric(n, msg)
	}
	if n.typ.RcvMsg == nil {
		return fmt.Errorf("send to %s: %w", n, ENotSupported)
	}
	return n.typ.RcvMsg(n, msg)
}

// SendToID resolves dst to a node and sends msg to it, matching
// dmm_msg_send_id.
func (rt *Runtime) SendToID(dst ID, msg *Message) error {
	n, err := rt.NodeByID(dst)
	if err != nil {
		return err
	}
	return rt.SendToNode(n, msg)
}

// SendToAddr resolves addr (see NodeByAddr) and sends msg to it, matching
// dmm_msg_send_addr.
func (rt *Runtime) SendToAddr(addr string, msg *Message) error {
	n, err := rt.NodeByAddr(addr)
	if err != nil {
		return err
	}
	return rt.SendToNode(n, msg)
}
