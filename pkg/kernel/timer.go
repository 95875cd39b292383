package kernel

import (
	"fmt"
	"sort"
	"time"
)

// TimerFlag mirrors the DMM_TIMERSET_* bits accepted by SetTimer.
type TimerFlag uint32

const (
	// TimerAbsolute means Next is wall-clock time rather than relative to
	// now, matching DMM_TIMERSET_ABS.
	TimerAbsolute TimerFlag = 1 << iota
	// TimerChangeIntervalOnly means a Next of the zero Time should not
	// rearm the timer at now+interval; only the interval itself is
	// updated, matching DMM_TIMERSET_CHANGEINTERVALONLY.
	TimerChangeIntervalOnly
)

// coalesceInterval is added to "now" before scanning the trigger queue, so
// a timer due a hair after now still fires in the same wave as timers
// already due — matching dmm_timer.c's coalesce_interval of 1ms.
const coalesceInterval = time.Millisecond

// Timer is a one-shot or repeating alarm, matching struct dmm_timer: an
// embedded Event (subscribers receive a TIMERTRIGGER copy each time the
// timer fires) plus the trigger-queue bookkeeping.
type Timer struct {
	event Event

	next       time.Time
	interval   time.Duration
	registered bool
	valid      bool
}

func (t *Timer) id() ID { return t.event.id }

// CreateTimer allocates a new, unarmed timer, matching dmm_timer_create.
func (rt *Runtime) CreateTimer() (*Timer, error) {
	e := newEvent(rt.nextEventID())
	t := &Timer{event: *e, valid: true}
	t.event.destructor = func(_ *Event) { delete(rt.timers, t.id()) }
	rt.timers[t.id()] = t
	return t, nil
}

// TimerByID looks up a timer by id, matching dmm_timer_id2ref.
func (rt *Runtime) TimerByID(id ID) (*Timer, error) {
	t, ok := rt.timers[id]
	if !ok || !t.valid {
		return nil, fmt.Errorf("timer %d: %w", id, ENotFound)
	}
	return t, nil
}

// register inserts t into the sorted trigger queue, taking one event ref
// for the duration it stays registered. Matches dmm_timer_register's
// insertion-sort-by-tm_next.
func (rt *Runtime) register(t *Timer) {
	if t.registered {
		return
	}
	i := sort.Search(len(rt.triggerQueue), func(i int) bool {
		return rt.triggerQueue[i].next.After(t.next)
	})
	rt.triggerQueue = append(rt.triggerQueue, nil)
	copy(rt.triggerQueue[i+1:], rt.triggerQueue[i:])
	rt.triggerQueue[i] = t
	t.registered = true
	t.event.ref()
}

// deregister removes t from the trigger queue, matching
// dmm_timer_deregister.
func (rt *Runtime) deregister(t *Timer) {
	if !t.registered {
		return
	}
	for i, q := range rt.triggerQueue {
		if q == t {
			rt.triggerQueue = append(rt.triggerQueue[:i], rt.triggerQueue[i+1:]...)
			break
		}
	}
	t.registered = false
	t.event.unref()
}

// SetTimer arms t, matching dmm_timer_set's case analysis. next and
// interval play the same dual role struct timespec played in the
// original: next == 0 with interval == 0 is invalid; next == 0 with a
// positive interval arms the timer for now+interval (unless
// TimerChangeIntervalOnly is set, in which case only the interval changes
// and the existing next-trigger time is left alone); a non-zero next is
// either an absolute Unix-epoch offset (TimerAbsolute set) or a duration
// relative to now.
func (rt *Runtime) SetTimer(t *Timer, next time.Duration, interval time.Duration, flags TimerFlag) error {
	now := rt.Clock.Now()
	if next == 0 {
		if interval == 0 {
			return fmt.Errorf("set timer %d: %w", t.id(), EInvalid)
		}
		if flags&TimerChangeIntervalOnly == 0 {
			t.next = now.Add(interval)
		}
		t.interval = interval
	} else {
		if flags&TimerAbsolute != 0 {
			t.next = time.Unix(0, int64(next))
		} else {
			t.next = now.Add(next)
		}
		t.interval = interval
	}
	rt.deregister(t)
	rt.register(t)
	return nil
}

// UnsetTimer stops t from triggering without removing it, matching
// dmm_timer_unset.
func (rt *Runtime) UnsetTimer(t *Timer) {
	rt.deregister(t)
}

// RemoveTimer tears a timer down entirely: deregisters it, unsubscribes
// every subscriber, and releases the creation-time reference, matching
// dmm_timer_rm.
func (rt *Runtime) RemoveTimer(id ID) error {
	t, err := rt.TimerByID(id)
	if err != nil {
		return err
	}
	t.valid = false
	rt.deregister(t)
	rt.unsubscribeAll(&t.event)
	t.event.unref()
	return nil
}

// trigger sends one TIMERTRIGGER copy to every subscriber of t, matching
// dmm_timer_trigger.
func (rt *Runtime) trigger(t *Timer) {
	if !t.valid {
		return
	}
	msg := NewMessage(0, CmdTimerTrigger, TypeGeneric, 0, 0, TimerTriggerPayload{ID: t.id()})
	rt.sendSubscribed(&t.event, msg)
}

// TriggersDue fires every timer whose next trigger time has arrived
// (honoring coalesceInterval), or — if force is true and nothing was
// otherwise due — the single timer at the head of the queue. Matches
// dmm_timers_trigger(force_trigger); the main loop (loop.go) calls this
// with force = true exactly when epoll_wait returned no ready descriptors,
// so the wave clock always advances even on an idle timer queue.
func (rt *Runtime) TriggersDue(force bool) error {
	now := rt.Clock.Now().Add(coalesceInterval)
	for len(rt.triggerQueue) > 0 {
		t := rt.triggerQueue[0]
		if !force && t.next.After(now) {
			break
		}
		rt.trigger(t)
		if t.valid {
			rt.deregister(t)
			if t.interval > 0 {
				t.next = t.next.Add(t.interval)
				rt.register(t)
			}
		}
		force = false
	}
	return nil
}

// NextDeadline returns the time the head-of-queue timer is due, and false
// if no timer is armed — used by the main loop to compute the epoll_wait
// timeout. Matches dmm_timers_next.
func (rt *Runtime) NextDeadline() (time.Time, bool) {
	if len(rt.triggerQueue) == 0 {
		return time.Time{}, false
	}
	return rt.triggerQueue[0].next, true
}
