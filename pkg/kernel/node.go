package kernel

import (
	"fmt"
)

// HookDir is the direction of a Hook: data flows out of an out-hook and
// into an in-hook. Direction is fixed at creation time.
type HookDir int

const (
	HookOut HookDir = iota
	HookIn
)

func (d HookDir) String() string {
	if d == HookIn {
		return "IN"
	}
	return "OUT"
}

// Node is one vertex of the pipeline graph. Nodes are reference counted:
// every Hook holds one strong reference to its owner node (mirroring
// dmm_hook.hk_node / DMM_NODE_REF in dmm_base.h), and the Runtime's node
// table holds the reference that keeps a freshly created node alive before
// any hook exists. When the refcount reaches zero the node's in-hook and
// out-hook lists must already be empty (invariant carried over unchanged
// from dmm_node_unref's assertions).
type Node struct {
	id   ID
	name string
	typ  *NodeType
	priv Private
	refs int32

	inHooks  map[string]*Hook
	outHooks map[string]*Hook

	subscriptions []*Event

	rt *Runtime

	// valid is cleared the instant refs reaches zero so that a reference
	// held elsewhere (e.g. a control message still in flight) can detect
	// a node mid-teardown without dereferencing freed state.
	valid bool
}

// ID returns the node's runtime-assigned identifier.
func (n *Node) ID() ID { return n.id }

// Name returns the node's instance name, or "" if it was never named.
func (n *Node) Name() string { return n.name }

// Type returns the node's registered type vtable.
func (n *Node) Type() *NodeType { return n.typ }

// Private returns the value Ctor returned for this node.
func (n *Node) Private() Private { return n.priv }

// IsValid reports whether the node has not yet been torn down.
func (n *Node) IsValid() bool { return n.valid }

// Runtime returns the Runtime that owns n, letting a node type's
// callbacks reach kernel operations (Send, CreateTimer, SubscribeEvent,
// ...) without having to thread a Runtime through every vtable
// signature.
func (n *Node) Runtime() *Runtime { return n.rt }

func (n *Node) String() string {
	if n.name != "" {
		return fmt.Sprintf("<node %s type %s id %d>", n.name, n.typ.Name, n.id)
	}
	return fmt.Sprintf("<node type %s id %d>", n.typ.Name, n.id)
}

// ref increments the node's refcount. Matches DMM_NODE_REF.
func (n *Node) ref() { n.refs++ }

// unref decrements the node's refcount, tearing the node down when it
// reaches zero. Matches DMM_NODE_UNREF / dmm_node_unref.
func (n *Node) unref() {
	n.refs--
	if n.refs > 0 {
		return
	}
	if n.refs < 0 {
		panic(fmt.Sprintf("%s: refcount underflow", n))
	}
	if len(n.inHooks) != 0 || len(n.outHooks) != 0 {
		panic(fmt.Sprintf("%s: refcount reached zero with hooks still attached", n))
	}
	n.valid = false
	if n.typ.Dtor != nil {
		n.typ.Dtor(n)
	}
	delete(n.rt.nodes, n.id)
	if n.name != "" {
		delete(n.rt.nodesByName, n.name)
	}
}

// Hook is one directional endpoint of a Node, identified by name within
// its direction (an in-hook and an out-hook on the same node may share a
// name, matching the original's separate hk_nodehooks lists keyed by
// direction-qualified lookup).
type Hook struct {
	name string
	dir  HookDir
	node *Node
	priv Private

	peers []*peerLink
	refs  int32

	valid bool
}

// peerLink is the strong reference one hook holds to a connected peer
// hook, mirroring struct dmm_hookpeer. Connecting two hooks creates one
// peerLink on each side; each peerLink owns a ref on the hook it points
// at, so disconnecting is symmetric and a hook cannot be freed while any
// peer still references it (DMM_HOOK_UNREF's `assert(LIST_EMPTY(hk_peers))`).
type peerLink struct {
	peer *Hook
}

// Name returns the hook's name.
func (h *Hook) Name() string { return h.name }

// Dir returns the hook's direction.
func (h *Hook) Dir() HookDir { return h.dir }

// Node returns the hook's owner node.
func (h *Hook) Node() *Node { return h.node }

// Private returns the value set by NewHook/SetHookPrivate, if any.
func (h *Hook) Private() Private { return h.priv }

// SetPrivate stores per-hook state, mirroring DMM_HOOK_SETPRIVATE.
func (h *Hook) SetPrivate(p Private) { h.priv = p }

// IsValid reports whether the hook has not yet been torn down.
func (h *Hook) IsValid() bool { return h.valid }

// IsConnected reports whether the hook has at least one peer.
func (h *Hook) IsConnected() bool { return len(h.peers) > 0 }

// Peers returns the hooks currently connected to h. The returned slice is
// a snapshot; callers must not mutate it.
func (h *Hook) Peers() []*Hook {
	out := make([]*Hook, len(h.peers))
	for i, p := range h.peers {
		out[i] = p.peer
	}
	return out
}

func (h *Hook) String() string {
	return fmt.Sprintf("<hook %s direction %s of %s>", h.name, h.dir, h.node)
}

func (h *Hook) ref() { h.refs++ }

func (h *Hook) unref() {
	h.refs--
	if h.refs > 0 {
		return
	}
	if h.refs < 0 {
		panic(fmt.Sprintf("%s: refcount underflow", h))
	}
	if len(h.peers) != 0 {
		panic(fmt.Sprintf("%s: refcount reached zero with peers still attached", h))
	}
	h.valid = false
	if h.node.typ.RmHook != nil {
		h.node.typ.RmHook(h.node, h)
	}
	node := h.node
	if h.dir == HookIn {
		delete(node.inHooks, h.name)
	} else {
		delete(node.outHooks, h.name)
	}
	node.unref()
}

// CreateNode creates a node of the named type, assigns it a fresh id, and
// invokes the type's Ctor. The node starts with a refcount of one, owned
// by the runtime's node table (mirroring dmm_node_create, which links the
// freshly allocated node into the global nd_nodes list before returning
// it with one implicit reference).
func (rt *Runtime) CreateNode(typeName string) (*Node, error) {
	t, err := rt.Registry.Lookup(typeName)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	n := &Node{
		id:       rt.nextNodeID(),
		typ:      t,
		inHooks:  make(map[string]*Hook),
		outHooks: make(map[string]*Hook),
		rt:       rt,
		refs:     1,
		valid:    true,
	}
	if t.Ctor != nil {
		priv, err := t.Ctor(n)
		if err != nil {
			return nil, fmt.Errorf("create node of type %q: %w", typeName, err)
		}
		n.priv = priv
	}
	rt.nodes[n.id] = n
	return n, nil
}

// RemoveNode drops the runtime's own reference to the node and disconnects
// every hook the node owns, which in turn drops each hook's reference to
// its peer and to the node itself. This is the only path by which a node
// with hooks still attached gets torn down (NODE_RM in the generic
// message table), matching dmm_node_rm's "disconnect everything then
// unref" sequence.
func (rt *Runtime) RemoveNode(n *Node) error {
	if !n.valid {
		return fmt.Errorf("remove node %s: %w", n, ENotFound)
	}
	for _, h := range n.allHooks() {
		rt.disconnectHook(h)
	}
	for _, h := range n.allHooks() {
		h.unref()
	}
	rt.unsubscribeAllEvents(n)
	n.unref()
	return nil
}

func (n *Node) allHooks() []*Hook {
	out := make([]*Hook, 0, len(n.inHooks)+len(n.outHooks))
	for _, h := range n.inHooks {
		out = append(out, h)
	}
	for _, h := range n.outHooks {
		out = append(out, h)
	}
	return out
}

// NodeByID looks up a node by its runtime id, matching dmm_node_id2ref.
func (rt *Runtime) NodeByID(id ID) (*Node, error) {
	n, ok := rt.nodes[id]
	if !ok || !n.valid {
		return nil, fmt.Errorf("node id %d: %w", id, ENotFound)
	}
	return n, nil
}

// NodeByName looks up a node by its instance name, matching
// dmm_node_name2ref.
func (rt *Runtime) NodeByName(name string) (*Node, error) {
	n, ok := rt.nodesByName[name]
	if !ok || !n.valid {
		return nil, fmt.Errorf("node name %q: %w", name, ENotFound)
	}
	return n, nil
}

// NodeByAddr resolves either a "[<id>]" numeric address or a plain
// instance name, matching dmm_node_addr2ref's dual syntax.
func (rt *Runtime) NodeByAddr(addr string) (*Node, error) {
	if len(addr) >= 2 && addr[0] == '[' && addr[len(addr)-1] == ']' {
		var id uint64
		if _, err := fmt.Sscanf(addr[1:len(addr)-1], "%d", &id); err != nil {
			return nil, fmt.Errorf("address %q: %w", addr, EInvalid)
		}
		return rt.NodeByID(ID(id))
	}
	return rt.NodeByName(addr)
}

// SetName assigns or changes a node's instance name. Matches
// dmm_node_setname's uniqueness check.
func (rt *Runtime) SetName(n *Node, name string) error {
	if len(name) > MaxNodeName {
		return fmt.Errorf("set name %q: %w", name, EInvalid)
	}
	if name == "" {
		return fmt.Errorf("set name: %w", EInvalid)
	}
	if existing, ok := rt.nodesByName[name]; ok && existing != n {
		return fmt.Errorf("set name %q: %w", name, EExists)
	}
	if n.name != "" {
		delete(rt.nodesByName, n.name)
	}
	n.name = name
	rt.nodesByName[name] = n
	return nil
}

// CreateHook creates a hook of the given direction on n, consulting the
// type's NewHook callback first. Matches dmm_hook_create's
// validate-then-link sequence; the hook starts with a refcount of one,
// owned by the node's hook list, and takes one reference on its owner
// node (DMM_NODE_REF in dmm_hook_create).
func (rt *Runtime) CreateHook(n *Node, name string, dir HookDir) (*Hook, error) {
	if name == "" || len(name) > MaxHookName {
		return nil, fmt.Errorf("create hook %q: %w", name, EInvalid)
	}
	list := n.outHooks
	if dir == HookIn {
		list = n.inHooks
	}
	if _, ok := list[name]; ok {
		return nil, fmt.Errorf("create hook %q on %s: %w", name, n, EExists)
	}
	if n.typ.NewHook != nil {
		if err := n.typ.NewHook(n, name, dir); err != nil {
			return nil, fmt.Errorf("create hook %q on %s: %w", name, n, err)
		}
	}
	h := &Hook{name: name, dir: dir, node: n, refs: 1, valid: true}
	list[name] = h
	n.ref()
	return h, nil
}

// FindHook looks up an existing hook by name and direction, creating one
// via CreateHook is the caller's job if Find fails and implicit creation
// is desired (the §4.2 "hooks created implicitly on first connection"
// path used by fan-in node types such as aggregateall).
func (n *Node) FindHook(name string, dir HookDir) (*Hook, bool) {
	list := n.outHooks
	if dir == HookIn {
		list = n.inHooks
	}
	h, ok := list[name]
	return h, ok
}

// Connect links an out-hook to an in-hook, creating a peerLink on each
// side. Matches dmm_hook_addpeer's symmetric linking; either hook may
// already have other peers (fan-out / fan-in are both legal).
func (rt *Runtime) Connect(out *Hook, in *Hook) error {
	if out.dir != HookOut || in.dir != HookIn {
		return fmt.Errorf("connect %s to %s: %w", out, in, EInvalid)
	}
	for _, p := range out.peers {
		if p.peer == in {
			return fmt.Errorf("connect %s to %s: %w", out, in, EExists)
		}
	}
	out.peers = append(out.peers, &peerLink{peer: in})
	in.peers = append(in.peers, &peerLink{peer: out})
	out.ref()
	in.ref()
	return nil
}

// Disconnect removes the peer link between out and in; it returns
// ENotFound when the two are not connected.
func (rt *Runtime) Disconnect(out *Hook, in *Hook) error {
	if !removePeer(out, in) {
		return fmt.Errorf("disconnect %s from %s: %w", out, in, ENotFound)
	}
	removePeer(in, out)
	out.unref()
	in.unref()
	return nil
}

// disconnectHook removes every peer link h participates in, used when the
// owning node is being removed.
func (rt *Runtime) disconnectHook(h *Hook) {
	for _, p := range append([]*peerLink(nil), h.peers...) {
		peer := p.peer
		removePeer(h, peer)
		removePeer(peer, h)
		h.unref()
		peer.unref()
	}
}

func removePeer(h *Hook, target *Hook) bool {
	for i, p := range h.peers {
		if p.peer == target {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return true
		}
	}
	return false
}
