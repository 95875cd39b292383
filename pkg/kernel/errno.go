package kernel

import "errors"

// Errno is the closed taxonomy of recoverable kernel errors. It mirrors the
// errno values the original runtime returned from its C API (EINVAL, ENOENT,
// EEXIST, ENOMEM, ENOTSUP, ENOTCONN, EINTR) rather than inventing a new
// vocabulary: callers that shelled out to POSIX before can keep matching on
// the same small set of conditions.
type Errno int

const (
	// EInvalid marks a malformed argument (bad name length, nil pointer
	// where a value was required, contradictory timer flags, ...).
	EInvalid Errno = iota + 1
	// ENotFound marks a lookup miss (unknown node id/name, unknown hook
	// name, unknown timer id, unknown type name).
	ENotFound
	// EExists marks a naming collision (duplicate type name, hook already
	// connected, node name already taken).
	EExists
	// ENoMemory marks a failed allocation or an overflowing size
	// computation that would have to allocate an impossible amount.
	ENoMemory
	// ENotSupported marks a vtable callback the node type does not
	// implement for a requested operation (e.g. NEWHOOK rejecting an
	// unsupported hook direction).
	ENotSupported
	// EConflict marks a structurally valid request that conflicts with
	// existing state in a way EExists does not quite capture (e.g.
	// reconnecting an already-connected hook pair with different peers).
	EConflict
	// ENotConnected marks an operation performed against a hook with no
	// peer (sending on a disconnected out-hook).
	ENotConnected
	// EInterrupted marks a poll/wait call interrupted by a signal; the
	// main loop retries on this one and only this one.
	EInterrupted
)

func (e Errno) Error() string {
	switch e {
	case EInvalid:
		return "invalid argument"
	case ENotFound:
		return "not found"
	case EExists:
		return "already exists"
	case ENoMemory:
		return "out of memory"
	case ENotSupported:
		return "not supported"
	case EConflict:
		return "exists with conflict"
	case ENotConnected:
		return "not connected"
	case EInterrupted:
		return "interrupted"
	default:
		return "unknown kernel error"
	}
}

// Is allows errors.Is(err, kernel.ENotFound) to match errors wrapped with
// fmt.Errorf("...: %w", kernel.ENotFound).
func (e Errno) Is(target error) bool {
	var other Errno
	if errors.As(target, &other) {
		return e == other
	}
	return false
}
