package kernel

import (
	"fmt"
	"time"
)

// SockEventMask is the bitfield of readiness conditions a node can
// subscribe to or that a trigger reports, matching DMM_SOCKEVENT_{IN,OUT,ERR}.
type SockEventMask uint32

const (
	SockEventIn SockEventMask = 1 << iota
	SockEventOut
	SockEventErr
)

// Poller is the OS multiplexer the socket-event subsystem drives. The
// production implementation (epoll_linux.go) wraps
// golang.org/x/sys/unix's epoll_create1/epoll_ctl/epoll_wait, the direct
// analogue of dmm_sockevent.c's <sys/epoll.h> usage; tests substitute a
// fake so kernel tests need no real descriptors.
type Poller interface {
	Add(fd int, events SockEventMask) error
	Modify(fd int, events SockEventMask) error
	Remove(fd int) error
	// Wait blocks for at most timeout (or indefinitely if timeout < 0)
	// and returns ready descriptors, mirroring epoll_wait's single-event
	// return used by the original main loop (maxevents=1).
	Wait(timeout time.Duration) ([]ReadyFD, error)
	Close() error
}

// ReadyFD is one descriptor epoll_wait reported ready, with its events
// already translated from the raw epoll bitmask.
type ReadyFD struct {
	FD     int
	Events SockEventMask
}

// ErrInterrupted is returned by Poller.Wait when the underlying wait call
// was interrupted by a signal (EINTR); the main loop retries in that case
// and only that case, matching dmm_main_loop's handling of EINTR.
var ErrInterrupted error = EInterrupted

// sockEvent is one fd's subscription object, matching struct dmm_sockevent.
type sockEvent struct {
	event  Event
	fd     int
	events SockEventMask
}

// SubscribeSockEvent subscribes node to readiness events on fd, creating
// the fd's sockEvent object if this is the first subscription, or
// modifying its event mask if an existing subscription requests a
// different mask. Matches dmm_sockevent_subscribe's ADD/EEXIST/MOD
// sequence.
func (rt *Runtime) SubscribeSockEvent(fd int, events SockEventMask, n *Node) error {
	se, ok := rt.sockEvents[fd]
	if !ok {
		if err := rt.Poller.Add(fd, events); err != nil {
			return fmt.Errorf("sockevent subscribe fd %d: %w", fd, err)
		}
		e := newEvent(rt.nextEventID())
		se = &sockEvent{event: *e, fd: fd, events: events}
		se.event.destructor = func(_ *Event) {
			delete(rt.sockEvents, fd)
			rt.teardownSockEvent(fd)
		}
		rt.sockEvents[fd] = se
		if err := rt.SubscribeEvent(&se.event, n); err != nil {
			return err
		}
		// The creation-time reference is not meant to keep se alive on
		// its own — only subscribers should. Drop it now that the first
		// subscriber holds its own.
		se.event.unref()
		return nil
	}
	if se.events != events {
		if err := rt.Poller.Modify(fd, events); err != nil {
			return fmt.Errorf("sockevent subscribe fd %d: %w", fd, err)
		}
		se.events = events
	}
	return rt.CheckedSubscribeEvent(&se.event, n)
}

// UnsubscribeSockEvent removes node's subscription to fd, matching
// dmm_sockevent_unsubscribe. Only subscribers hold references to the
// sockEvent (its creation reference is dropped at the first subscribe),
// so the last unsubscribe tears it down and issues EPOLL_CTL_DEL.
func (rt *Runtime) UnsubscribeSockEvent(fd int, n *Node) error {
	se, ok := rt.sockEvents[fd]
	if !ok {
		return fmt.Errorf("sockevent unsubscribe fd %d: %w", fd, ENotFound)
	}
	return rt.UnsubscribeEvent(&se.event, n)
}

// teardownSockEvent issues EPOLL_CTL_DEL, tolerating "already gone",
// matching sockevent_destructor.
func (rt *Runtime) teardownSockEvent(fd int) {
	if err := rt.Poller.Remove(fd); err != nil {
		rt.Log.Debugf("fd %d is gone from epoll before last unsubscribe: %v", fd, err)
	}
}

// ProcessReady triggers the sockEvent for each descriptor the poller
// reported ready, matching dmm_sockevent_process driven from the main
// loop's epoll_wait result.
func (rt *Runtime) ProcessReady(ready []ReadyFD) {
	for _, r := range ready {
		se, ok := rt.sockEvents[r.FD]
		if !ok {
			continue
		}
		rt.triggerSockEvent(se, r.Events)
	}
}

func (rt *Runtime) triggerSockEvent(se *sockEvent, events SockEventMask) {
	msg := NewMessage(0, CmdSockEventTrigger, TypeGeneric, 0, 0, SockEventTriggerPayload{FD: se.fd, Events: events})
	rt.sendSubscribed(&se.event, msg)
}
