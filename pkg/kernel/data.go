package kernel

import "fmt"

// Datanode is one sensor reading inside a Frame: an opaquely-typed payload
// tagged with a SensorID. A Datanode with SensorID zero and an empty
// Payload is the frame terminator (DMM_DN_ISEND) and must never appear
// anywhere but as the last element of Frame.Nodes.
type Datanode struct {
	Sensor  SensorID
	Payload []byte
}

func (d Datanode) isEnd() bool { return d.Sensor == 0 && len(d.Payload) == 0 }

// Frame is an immutable, reference-counted data frame: a sequence of
// Datanodes always ending in a terminator, matching struct dmm_data's
// "sequence of dmm_datanode objects" with DMM_DN_MKEND appended. Frames
// are shared by reference between every hook they are sent to; nothing
// about a Frame may be mutated after NewFrame returns it.
type Frame struct {
	Nodes []Datanode
	refs  int32
}

// NewFrame builds a Frame from the given datanodes, appending the
// terminator and validating that no caller-supplied node is itself a
// bogus terminator (sensor id 0 is reserved). Matches dmm_data_create_raw
// plus the DMM_DN_MKEND the original always appends, and the overflow
// check promised by SPEC_FULL.md's Open Question 3: the total payload
// size is computed in a 64-bit accumulator and rejected if it would not
// fit in an int before any allocation is attempted.
func NewFrame(nodes ...Datanode) (*Frame, error) {
	var total int64
	for _, n := range nodes {
		if n.Sensor == 0 {
			return nil, fmt.Errorf("new frame: sensor id 0 is reserved for the terminator: %w", EInvalid)
		}
		total += int64(len(n.Payload))
	}
	const maxFrameBytes = int64(^uint(0) >> 1) // math.MaxInt, without importing math for one constant
	if total > maxFrameBytes {
		return nil, fmt.Errorf("new frame: payload size overflow: %w", ENoMemory)
	}
	out := make([]Datanode, 0, len(nodes)+1)
	for _, n := range nodes {
		cp := make([]byte, len(n.Payload))
		copy(cp, n.Payload)
		out = append(out, Datanode{Sensor: n.Sensor, Payload: cp})
	}
	out = append(out, Datanode{})
	return &Frame{Nodes: out, refs: 1}, nil
}

// Ref increments the frame's refcount. Matches DMM_DATA_REF.
func (f *Frame) Ref() { f.refs++ }

// Unref decrements the frame's refcount, releasing the frame's backing
// storage once it reaches zero. Matches DMM_DATA_UNREF.
func (f *Frame) Unref() {
	f.refs--
	if f.refs < 0 {
		panic("frame refcount underflow")
	}
	if f.refs == 0 {
		f.Nodes = nil
	}
}

// Len returns the number of real datanodes in the frame (excluding the
// terminator), matching DMM_DATA_SIZE's node-count analogue.
func (f *Frame) Len() int {
	if len(f.Nodes) == 0 {
		return 0
	}
	return len(f.Nodes) - 1
}

// Send delivers the frame to every peer currently connected to out,
// taking one additional reference around each delivery and releasing it
// once the receiver's RcvData returns (a receiver that keeps the frame
// past the call takes its own reference with Ref), matching dmm_data_send's
// loop over hk_peers. A frame sent to a hook with no peers is simply
// dropped after the call (ENotConnected is returned so callers can tell
// the difference from a successful fan-out, but it is not usually fatal
// for a node type to ignore).
func (rt *Runtime) Send(out *Hook, f *Frame) error {
	if out.dir != HookOut {
		return fmt.Errorf("send on %s: %w", out, EInvalid)
	}
	if len(out.peers) == 0 {
		return fmt.Errorf("send on %s: %w", out, ENotConnected)
	}
	for _, p := range out.peers {
		in := p.peer
		node := in.node
		if node.typ.RcvData == nil {
			rt.Logger().Warnf("%s rcvdata on %s: %v", node, in, ENotSupported)
			continue
		}
		f.Ref()
		if err := node.typ.RcvData(node, in, f); err != nil {
			rt.Logger().Warnf("%s rcvdata on %s: %v", node, in, err)
		}
		f.Unref()
	}
	return nil
}
