package log

// Package log provides a small, opinionated wrapper around the standard
// library's *log.Logger*, scoped to one node type or subsystem at a time
// and, during a wave, tagged with that wave's trace id.
//
// Key Features
//
//   - Per node-type/subsystem loggers via ForService(name)
//   - Automatic prefix: `[name>]`, or `[name #trace>]` once WithTrace(id)
//     has attached a wave's correlation id (example:
//     `[sensor/dummy #a1b2c3d4>] timer fired`)
//   - Level helpers: Infof, Warnf, Errorf, Debugf, Fatalf
//   - Debug logging toggled globally (SetGlobalDebug) or per service
//     (EnableDebugFor / DisableDebugFor)
//   - Central output writer (SetOutput) that updates existing loggers
//
// Non-goals
//
//   - Structured / JSON logging
//   - Log sampling, rotation, or asynchronous buffering
//
// Basic usage
//
//	kern := log.ForService("kernel")
//	kern.Infof("starting main loop")
//	kern.Warnf("socket event queue near capacity")
//
// Tagging a wave's lines with its trace id
//
//	traced := kern.WithTrace(rt.CurrentWaveTraceID().String()[:8])
//	traced.Debugf("dispatching message: %v", msg)
//
// Selective debug
//
//	log.EnableDebugFor("kernel")
//	log.ForService("kernel").Debugf("visible")
//	log.ForService("diagnostics").Debugf("not visible")
//
// Output routing
//
//	f, _ := os.Create("dimmon.log")
//	log.SetOutput(f)
//
// Thread safety
//
// All exported functions are safe for concurrent use; the package relies
// on sync.Map and atomic primitives rather than a single shared mutex.
//
// Testing
//
// Tests redirect output with SetOutput(&bytes.Buffer{}) and assert on
// the buffer's contents.
