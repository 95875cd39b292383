package kernel

import (
	"errors"
	"time"
)

// Run drives the main loop until a non-interrupted poll error occurs or
// ctx-like external Stop is requested. Matches dmm_main_loop exactly in
// shape: compute the timeout from the nearest timer deadline, poll,
// advance the wave, process any ready socket, fire due timers (forcing
// one if the poll returned on timeout with nothing ready), finish the
// wave, repeat.
func (rt *Runtime) Run() error {
	rt.running = true
	for rt.running {
		timeout := rt.pollTimeout()

		ready, err := rt.Poller.Wait(timeout)
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				rt.Log.Debugf("poll interrupted by signal, continuing")
				continue
			}
			return err
		}

		rt.WaveStart()

		if len(ready) > 0 {
			rt.ProcessReady(ready)
		}

		// len(ready) == 0 means the poll returned on timeout: force at
		// least one timer to trigger, matching dmm_timers_trigger(ret==0).
		if err := rt.TriggersDue(len(ready) == 0); err != nil {
			return err
		}

		if err := rt.WaveFinish(); err != nil {
			return err
		}
		if rt.WaveHook != nil {
			rt.WaveHook(rt.wave, rt.waveTrace)
		}
	}
	return nil
}

// Stop requests the main loop to exit after its current iteration.
func (rt *Runtime) Stop() { rt.running = false }

// pollTimeout computes the epoll_wait timeout from the nearest timer
// deadline, matching dmm_main_loop's next/now subtraction (clamped to
// zero, and -1/"wait indefinitely" when no timer is armed).
func (rt *Runtime) pollTimeout() time.Duration {
	next, ok := rt.NextDeadline()
	if !ok {
		return -1
	}
	d := next.Sub(rt.Clock.Now())
	if d < 0 {
		return 0
	}
	return d
}
