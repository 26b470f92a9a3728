// Package dberrors defines the error taxonomy shared by the connection
// pool, the routing pool, and the durable task queue / lock manager.
//
// Every error here is a concrete type so callers can discriminate with
// errors.As; no sentinel values are declared.
package dberrors

import "fmt"

// PoolConnectionFailure is raised whenever a session cannot be opened or
// fails liveness classification. It always carries the connection key
// that produced it, so callers can log or retry against a specific
// destination.
type PoolConnectionFailure struct {
	Errno   int
	Message string
	Key     fmt.Stringer
}

func (e *PoolConnectionFailure) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("pool connection failure [%d] %s (key=%s)", e.Errno, e.Message, e.Key)
	}
	return fmt.Sprintf("pool connection failure [%d] %s", e.Errno, e.Message)
}

// TaskDoesNotExist is raised when a guarded task UPDATE affects zero rows:
// the execution id no longer matches, the TTL has expired, or the id is
// unknown.
type TaskDoesNotExist struct {
	TaskID      int64
	ExecutionID string
}

func (e *TaskDoesNotExist) Error() string {
	return fmt.Sprintf("task %d does not exist for execution %q", e.TaskID, e.ExecutionID)
}

// AlreadyFinished is raised by any mutating operation against a task row
// whose handler already knows it reached a terminal state.
type AlreadyFinished struct {
	TaskID int64
}

func (e *AlreadyFinished) Error() string {
	return fmt.Sprintf("task %d is already finished", e.TaskID)
}

// StepAlreadyStarted is raised by StartStep when an unstopped step of the
// same name is already open.
type StepAlreadyStarted struct {
	Name string
}

func (e *StepAlreadyStarted) Error() string {
	return fmt.Sprintf("step %q is already started", e.Name)
}

// StepAlreadyFinished is raised by StartStep/StopStep when the named step
// has already been stopped.
type StepAlreadyFinished struct {
	Name string
}

func (e *StepAlreadyFinished) Error() string {
	return fmt.Sprintf("step %q is already finished", e.Name)
}

// StepNotStarted is raised by StopStep when no open step of that name
// exists.
type StepNotStarted struct {
	Name string
}

func (e *StepNotStarted) Error() string {
	return fmt.Sprintf("step %q was not started", e.Name)
}

// StepRunning is raised by Finish/Requeue while any step remains unstopped.
type StepRunning struct {
	Name string
}

func (e *StepRunning) Error() string {
	return fmt.Sprintf("step %q is still running", e.Name)
}

// RequiresDatabase is raised when a utility is used before Connect.
type RequiresDatabase struct {
	Operation string
}

func (e *RequiresDatabase) Error() string {
	return fmt.Sprintf("%s requires a connected database", e.Operation)
}

// NotConnected is raised when an operation needs a live handle that was
// never established or was explicitly disconnected.
type NotConnected struct {
	Operation string
}

func (e *NotConnected) Error() string {
	return fmt.Sprintf("%s: not connected", e.Operation)
}

// FormatException is raised when a query string mixes positional and
// named parameter styles, or supplies the wrong arity of either.
type FormatException struct {
	Reason string
}

func (e *FormatException) Error() string {
	return fmt.Sprintf("query format error: %s", e.Reason)
}

// LockHeld describes a lock held by another owner. lock.Manager.Acquire
// does not return it: a held lock yields a nil *Lock and a nil error.
type LockHeld struct {
	LockID string
	Owner  string
}

func (e *LockHeld) Error() string {
	return fmt.Sprintf("lock %q is held by %q", e.LockID, e.Owner)
}

// LockDoesNotExist is raised when a guarded lock heartbeat (Lock.Ping)
// updates zero rows: the lock was released or GC'd out from under the
// caller. Lock.Release does not check the number of deleted rows.
type LockDoesNotExist struct {
	LockID string
}

func (e *LockDoesNotExist) Error() string {
	return fmt.Sprintf("lock %q does not exist", e.LockID)
}

// LockAlreadyReleased is raised by Lock.Ping against a Lock the caller
// already released; a second Release is a no-op instead.
type LockAlreadyReleased struct {
	LockID string
}

func (e *LockAlreadyReleased) Error() string {
	return fmt.Sprintf("lock %q is already released", e.LockID)
}
