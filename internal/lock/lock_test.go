package lock

import (
	"bytes"
	"testing"
)

func TestManager_TableName_Backticked(t *testing.T) {
	m := New(nil, "leader")
	if m.TableName() != "`leader`" {
		t.Fatalf("expected backticked table name, got %q", m.TableName())
	}
}

func TestNewLockHash_Unique(t *testing.T) {
	a := newLockHash()
	b := newLockHash()
	if bytes.Equal(a, b) {
		t.Fatal("expected two generated lock hashes to differ, even for the same (id, owner)")
	}
	if len(a) != 32 {
		t.Fatalf("expected a 32-char hex token, got %q (len %d)", a, len(a))
	}
}

func TestLock_GuardedWhere(t *testing.T) {
	l := &Lock{id: "job-1", hash: newLockHash()}
	where, args := l.guardedWhere()

	if where == "" {
		t.Fatal("expected a non-empty guard predicate")
	}
	if len(args) != 2 || args[0] != "job-1" {
		t.Fatalf("unexpected guard args: %v", args)
	}
}

func TestLock_Release_IdempotentOnceReleased(t *testing.T) {
	l := &Lock{id: "job-1", released: true}
	if err := l.Release(nil); err != nil {
		t.Fatalf("expected releasing an already-released lock to be a no-op, got %v", err)
	}
}

func TestManager_Acquire_RequiresNetworkAccess(t *testing.T) {
	t.Skip("requires a real MySQL-wire-protocol server to exercise the GC-then-INSERT acquire path")
}
