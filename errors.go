package bufmgr

import (
	"fmt"

	"github.com/pkg/errors"
)

// RestartError is the abort-and-retry signal described in spec.md §7: any
// reader whose optimistic snapshot was invalidated, any writer who lost a
// CAS, and any CIO conflict raises it. The caller catches it at the top of
// its operation, releases whatever it is holding, and re-executes.
//
// It is the Go stand-in for the original LeanStore's RestartException /
// jumpmuCatch() unwinding (original_source/backend/leanstore/sync-primitives/OptimisticLock.hpp).
type RestartError struct {
	Reason string
}

func (e *RestartError) Error() string {
	if e.Reason == "" {
		return "bufmgr: restart"
	}
	return fmt.Sprintf("bufmgr: restart: %s", e.Reason)
}

// ErrRestart is the errors.Is target that matches any RestartError.
var ErrRestart = &RestartError{}

func (e *RestartError) Is(target error) bool {
	_, ok := target.(*RestartError)
	return ok
}

// Restart builds a RestartError carrying a short, human-readable reason for
// logs and restart-rate diagnostics; it never allocates a stack trace since
// restarts are expected to be frequent on contended workloads.
func Restart(reason string) error {
	return &RestartError{Reason: reason}
}

// IsRestart reports whether err is (or wraps) a RestartError.
func IsRestart(err error) bool {
	return errors.Is(err, ErrRestart)
}

// fatalf aborts the process on a violated invariant — the Go analog of the
// original's assert()/UNREACHABLE(). Unlike RestartError these are bugs,
// never expected in correct operation, so there is no recovery path. No
// pack library provides a language-level abort primitive; panic is the
// idiomatic Go substitute for the original's assert()/UNREACHABLE().
func fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf("bufmgr: invariant violated: "+format, args...))
}

// wrapIOErr annotates a device I/O failure with the operation that caused
// it; these propagate out of ResolveSwip as the one terminal user-visible
// error spec.md §7 allows.
func wrapIOErr(op string, pageID PageID, err error) error {
	return errors.Wrapf(err, "bufmgr: device %s failed for page %d", op, pageID)
}
