package kernel

import "github.com/google/uuid"

// waveFinish is a single-shot event keyed by wave id, matching struct
// dmm_wavefinish: the first node to call WaveFinishSubscribe during a
// wave creates it, later subscribers in the same wave join it, and
// WaveFinish (called once per wave by the main loop) fires it exactly
// once and discards it.
type waveFinish struct {
	event  Event
	waveID ID
}

// WaveStart advances the wave counter, matching dmm_wave_start, and mints
// a fresh trace id for the wave. The trace id has no bearing on any
// kernel invariant — it exists so a diagnostics consumer (pkg/diagnostics)
// can correlate every log line and event emitted while one wave is in
// progress back to the single stimulus that caused it.
func (rt *Runtime) WaveStart() {
	rt.wave++
	rt.waveTrace = uuid.New()
}

// CurrentWave returns the id of the wave in progress, matching
// dmm_current_wave.
func (rt *Runtime) CurrentWave() ID { return rt.wave }

// CurrentWaveTraceID returns the current wave's correlation id.
func (rt *Runtime) CurrentWaveTraceID() uuid.UUID { return rt.waveTrace }

// WaveFinishSubscribe joins node to the current wave's wave-finish event,
// creating it if this is the first subscriber this wave. Matches
// dmm_wavefinish_subscribe.
func (rt *Runtime) WaveFinishSubscribe(n *Node) error {
	cur := rt.wave
	if wf, ok := rt.waveFinishes[cur]; ok {
		return rt.CheckedSubscribeEvent(&wf.event, n)
	}
	e := newEvent(rt.nextEventID())
	wf := &waveFinish{event: *e, waveID: cur}
	wf.event.destructor = func(_ *Event) { delete(rt.waveFinishes, cur) }
	rt.waveFinishes[cur] = wf
	if err := rt.SubscribeEvent(&wf.event, n); err != nil {
		return err
	}
	// As with sockEvent, the creation-time reference should not keep wf
	// alive on its own; only subscribers should.
	wf.event.unref()
	return nil
}

// WaveFinish fires and discards the current wave's wave-finish event, if
// one was ever subscribed to, matching dmm_wave_finish. Called once per
// main loop iteration, after socket events and due timers have been
// processed.
func (rt *Runtime) WaveFinish() error {
	wf, ok := rt.waveFinishes[rt.wave]
	if !ok {
		return nil
	}
	msg := NewMessage(0, CmdWaveFinish, TypeGeneric, 0, 0, nil)
	rt.sendSubscribed(&wf.event, msg)
	rt.unsubscribeAll(&wf.event)
	delete(rt.waveFinishes, rt.wave)
	return nil
}
