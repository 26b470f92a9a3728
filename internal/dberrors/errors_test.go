package dberrors

import (
	"strings"
	"testing"
)

func TestPoolConnectionFailure_Error_WithKey(t *testing.T) {
	err := &PoolConnectionFailure{Errno: 2013, Message: "lost connection", Key: stubStringer("db1:3306")}
	got := err.Error()
	if !strings.Contains(got, "2013") || !strings.Contains(got, "lost connection") || !strings.Contains(got, "db1:3306") {
		t.Fatalf("unexpected error string: %q", got)
	}
}

func TestPoolConnectionFailure_Error_NilKey(t *testing.T) {
	err := &PoolConnectionFailure{Errno: 1105, Message: "unknown error"}
	got := err.Error()
	if strings.Contains(got, "key=") {
		t.Fatalf("expected no key= suffix for a nil key, got %q", got)
	}
}

func TestTaskDoesNotExist_Error(t *testing.T) {
	err := &TaskDoesNotExist{TaskID: 7, ExecutionID: "abc"}
	got := err.Error()
	if !strings.Contains(got, "7") || !strings.Contains(got, "abc") {
		t.Fatalf("unexpected error string: %q", got)
	}
}

func TestAlreadyFinished_Error(t *testing.T) {
	err := &AlreadyFinished{TaskID: 3}
	if !strings.Contains(err.Error(), "3") {
		t.Fatalf("expected task id in error string, got %q", err.Error())
	}
}

func TestStepErrors_IncludeName(t *testing.T) {
	for _, err := range []error{
		&StepAlreadyStarted{Name: "fetch"},
		&StepAlreadyFinished{Name: "fetch"},
		&StepNotStarted{Name: "fetch"},
		&StepRunning{Name: "fetch"},
	} {
		if !strings.Contains(err.Error(), "fetch") {
			t.Fatalf("expected step name in error string, got %q", err.Error())
		}
	}
}

func TestFormatException_Error(t *testing.T) {
	err := &FormatException{Reason: "mixed styles"}
	if !strings.Contains(err.Error(), "mixed styles") {
		t.Fatalf("expected reason in error string, got %q", err.Error())
	}
}

func TestLockErrors_IncludeLockID(t *testing.T) {
	for _, err := range []error{
		&LockHeld{LockID: "leader", Owner: "worker-a"},
		&LockDoesNotExist{LockID: "leader"},
		&LockAlreadyReleased{LockID: "leader"},
	} {
		if !strings.Contains(err.Error(), "leader") {
			t.Fatalf("expected lock id in error string, got %q", err.Error())
		}
	}
}

type stubStringer string

func (s stubStringer) String() string { return string(s) }
