package kernel

import (
	"fmt"
	"sync"
)

// NodeType is the vtable a node-type package registers into the type
// registry. Every callback is optional (nil means "not supported"); this
// mirrors the original runtime's dmm_base_type struct, whose bt_ctor,
// bt_dtor, bt_rcvdata, bt_rcvmsg, bt_newhook and bt_rmhook members were all
// independently nilable.
//
// Node-type packages call kernel.GlobalRegistry.Register from an init()
// function, so importing a node-type package for side effect is enough
// to make it available to a config file by name.
type NodeType struct {
	// Name is the type's registered name, looked up verbatim from
	// NODE_CREATE requests and configuration-file starter lines. Must be
	// non-empty and at most MaxTypeName bytes.
	Name string

	// Ctor is called once when a node of this type is created, before the
	// node is reachable from the registry. Returning an error aborts
	// creation; no Dtor call follows a failed Ctor.
	Ctor func(n *Node) (Private, error)

	// Dtor is called once when a node's refcount drops to zero, after it
	// has been unlinked from every hook and event list. It must not touch
	// the hook graph.
	Dtor func(n *Node)

	// RcvData is called when a peer hook delivers a data frame to one of
	// this node's in-hooks. Nil means the type accepts no data at all
	// (ENotSupported if a frame arrives anyway, logged and dropped, never
	// a fatal condition for the runtime).
	RcvData func(n *Node, h *Hook, frame *Frame) error

	// RcvMsg handles control messages addressed to the node. Generic
	// requests (TypeGeneric) are dispatched centrally by the runtime (see
	// generic.go); what reaches this callback is every non-generic
	// message, every response, and the generic notifications the runtime
	// passes on (STARTUP, TIMER_TRIGGER, SOCKEVENT_TRIGGER, WAVEFINISH).
	RcvMsg func(n *Node, msg *Message) error

	// NewHook is consulted before a hook is created on this node,
	// allowing the type to reject a direction or name it does not
	// support. Nil means all hook names/directions are accepted.
	NewHook func(n *Node, name string, dir HookDir) error

	// RmHook is called just before a hook is unlinked from this node,
	// allowing cleanup of per-hook private state.
	RmHook func(n *Node, h *Hook)
}

// Private is per-node state a node type stashes on its Node via Ctor's
// return value; the runtime never inspects it.
type Private any

// Registry maps type names to vtables. One process-global instance exists
// (GlobalRegistry) because node types self-register from init(), which
// runs before any Runtime value can exist, keeping the type table in a
// package-level map rather than threaded through an explicit constructor
// argument.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*NodeType
}

// NewRegistry constructs an empty registry. Production code uses
// GlobalRegistry; tests that want isolation from other packages' init()
// registrations construct their own.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*NodeType)}
}

// GlobalRegistry is the process-wide type registry node-type packages
// register into from init().
var GlobalRegistry = NewRegistry()

// Register adds a node type. It rejects an empty or overlong name and a
// name already registered, matching the original's dmm_type_register
// validation (name length against DMM_TYPENAMESIZE, uniqueness check
// before the type is linked into the registry).
func (r *Registry) Register(t *NodeType) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("register type: %w", EInvalid)
	}
	if len(t.Name) > MaxTypeName {
		return fmt.Errorf("register type %q: name exceeds %d bytes: %w", t.Name, MaxTypeName, EInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("register type %q: %w", t.Name, EExists)
	}
	r.types[t.Name] = t
	return nil
}

// Lookup returns the vtable registered under name.
func (r *Registry) Lookup(name string) (*NodeType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("type %q: %w", name, ENotFound)
	}
	return t, nil
}

// Names returns every registered type name, used by `dimmon types` and
// dmmctl's config introspection.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}
