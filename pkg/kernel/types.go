package kernel

import "time"

// ID addresses a node, timer or event. Zero is never a valid id; the
// runtime returns it only to mean "no such object" or "system response"
// depending on context (control message cm_src == 0 means a system
// response, matching the original dmm_msg.cm_src convention).
type ID uint64

// SensorID tags a single datanode within a data frame. Sensor id zero is
// reserved for the frame terminator and must never be used by a real
// datanode.
type SensorID uint32

const (
	// MaxTypeName is the maximum byte length of a registered type name,
	// mirroring DMM_TYPENAMESIZE.
	MaxTypeName = 32
	// MaxNodeName is the maximum byte length of a node's instance name,
	// mirroring DMM_NODENAMESIZE.
	MaxNodeName = 32
	// MaxHookName is the maximum byte length of a hook name, mirroring
	// DMM_HOOKNAMESIZE.
	MaxHookName = 32
	// MaxAddr is the maximum byte length of a "[id]" or "name" address
	// string, mirroring DMM_ADDRSIZE.
	MaxAddr = 64
)

// Clock is the monotonic time source the runtime uses for timers and wave
// bookkeeping. It exists so tests can substitute a deterministic fake
// instead of wall-clock time, the same seam pkg/log's Timestamp var gives
// callers for log lines.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, backed by time.Now (itself backed by
// CLOCK_MONOTONIC on Linux via the Go runtime).
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock implementation.
var SystemClock Clock = systemClock{}
