package kernel

import "fmt"

// Event is the base type underlying Timer, sockEvent and waveFinishEvent:
// anything nodes can subscribe to and that, when triggered, broadcasts a
// copy of one Message to every subscriber. Matches struct dmm_event.
//
// Subscription here is modeled with plain maps instead of the original's
// intrusive doubly-linked lists (struct dmm_eventnode / dmm_nodeevent):
// Go has no portable embedded-list idiom, and a map gives the same O(1)
// subscribe/unsubscribe/is-subscribed operations the original's lists
// gave it, while unsubscribeAll (driven off node removal) is a single
// range over the node's own subscription set.
type Event struct {
	id          ID
	subscribers map[ID]*Node
	refs        int32
	destructor  func(e *Event)
}

func newEvent(id ID) *Event {
	return &Event{id: id, subscribers: make(map[ID]*Node), refs: 1}
}

func (e *Event) ref() { e.refs++ }

func (e *Event) unref() {
	e.refs--
	if e.refs < 0 {
		panic("event refcount underflow")
	}
	if e.refs == 0 && e.destructor != nil {
		e.destructor(e)
	}
}

// IsSubscribed reports whether node is currently subscribed to e, matching
// dmm_event_issubscribed.
func (e *Event) IsSubscribed(n *Node) bool {
	_, ok := e.subscribers[n.id]
	return ok
}

// SubscribeEvent subscribes n to e. It is an error to subscribe twice;
// callers that want idempotent subscription should check IsSubscribed
// first (dmm_event_checkedsubscribe's behavior), which wave.go's
// WaveFinishSubscribe does when joining an existing wave-finish event.
func (rt *Runtime) SubscribeEvent(e *Event, n *Node) error {
	if e.IsSubscribed(n) {
		return fmt.Errorf("subscribe %s to event %d: %w", n, e.id, EExists)
	}
	e.subscribers[n.id] = n
	n.ref()
	e.ref()
	n.subscriptions = append(n.subscriptions, e)
	return nil
}

// CheckedSubscribeEvent subscribes n to e unless already subscribed,
// matching dmm_event_checkedsubscribe.
func (rt *Runtime) CheckedSubscribeEvent(e *Event, n *Node) error {
	if e.IsSubscribed(n) {
		return nil
	}
	return rt.SubscribeEvent(e, n)
}

// UnsubscribeEvent removes n's subscription to e.
func (rt *Runtime) UnsubscribeEvent(e *Event, n *Node) error {
	if !e.IsSubscribed(n) {
		return fmt.Errorf("unsubscribe %s from event %d: %w", n, e.id, ENotFound)
	}
	delete(e.subscribers, n.id)
	for i, se := range n.subscriptions {
		if se == e {
			n.subscriptions = append(n.subscriptions[:i], n.subscriptions[i+1:]...)
			break
		}
	}
	e.unref()
	n.unref()
	return nil
}

// unsubscribeAllEvents drops every subscription n holds, used when n is
// removed. Matches dmm_node_unsubscribeallevents.
func (rt *Runtime) unsubscribeAllEvents(n *Node) {
	for _, e := range append([]*Event(nil), n.subscriptions...) {
		_ = rt.UnsubscribeEvent(e, n)
	}
}

// unsubscribeAll drops every subscriber of e, used by timer/sockevent
// removal. Matches dmm_event_unsubscribeall.
func (rt *Runtime) unsubscribeAll(e *Event) {
	for _, n := range e.subscribersSnapshot() {
		_ = rt.UnsubscribeEvent(e, n)
	}
}

func (e *Event) subscribersSnapshot() []*Node {
	out := make([]*Node, 0, len(e.subscribers))
	for _, n := range e.subscribers {
		out = append(out, n)
	}
	return out
}

// sendSubscribed broadcasts a copy of msg to every valid subscriber of e,
// matching dmm_event_sendsubscribed.
func (rt *Runtime) sendSubscribed(e *Event, msg *Message) {
	for _, n := range e.subscribersSnapshot() {
		if !n.valid {
			continue
		}
		cp := msg.Copy()
		if err := rt.SendToNode(n, cp); err != nil {
			rt.Logger().Warnf("event %d: delivering to %s: %v", e.id, n, err)
		}
	}
}
