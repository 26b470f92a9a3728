package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/clusterkit/clusterkit/internal/dberrors"
)

func TestQueue_TableName_Backticked(t *testing.T) {
	q := New(nil, "jobs", 60*time.Second)
	if q.TableName() != "`jobs`" {
		t.Fatalf("expected backticked table name, got %q", q.TableName())
	}
	if q.Name() != "jobs" {
		t.Fatalf("expected Name() to return the raw name, got %q", q.Name())
	}
}

func TestQueue_TTLSeconds(t *testing.T) {
	q := New(nil, "jobs", 90*time.Second)
	if q.ttlSeconds() != 90 {
		t.Fatalf("expected 90 ttl seconds, got %d", q.ttlSeconds())
	}
}

func TestQueue_ClaimablePredicate(t *testing.T) {
	q := New(nil, "jobs", 60*time.Second)
	where, args := q.claimablePredicate()

	if !strings.Contains(where, "finished IS NULL") || !strings.Contains(where, "INTERVAL %s SECOND") {
		t.Fatalf("unexpected predicate shape: %q", where)
	}
	if len(args) != 1 || args[0] != int64(60) {
		t.Fatalf("expected single ttl arg of 60, got %v", args)
	}
}

func TestWithExtra_NilPassesThrough(t *testing.T) {
	where, args := withExtra("a = 1", []interface{}{1}, nil)
	if where != "a = 1" || len(args) != 1 {
		t.Fatalf("expected nil extra to pass through unchanged, got %q %v", where, args)
	}
}

func TestNewExtraPredicate_AcceptsBareExpression(t *testing.T) {
	extra, err := NewExtraPredicate("priority > %s", 5)
	if err != nil {
		t.Fatal(err)
	}
	if extra.Fragment != "priority > %s" || len(extra.Args) != 1 || extra.Args[0] != 5 {
		t.Fatalf("unexpected predicate: %+v", extra)
	}
}

func TestNewExtraPredicate_RejectsFullStatement(t *testing.T) {
	_, err := NewExtraPredicate("1=1; DROP TABLE jobs")
	if err == nil {
		t.Fatal("expected a FormatException for a full statement passed as an extra_predicate fragment")
	}
	if _, ok := err.(*dberrors.FormatException); !ok {
		t.Fatalf("expected a *dberrors.FormatException, got %T", err)
	}
}

func TestWithExtra_AppendsFragmentAndArgs(t *testing.T) {
	extra := &ExtraPredicate{Fragment: "priority > %s", Args: []interface{}{5}}
	where, args := withExtra("a = 1", []interface{}{1}, extra)

	wantWhere := "a = 1 AND (priority > %s)"
	if where != wantWhere {
		t.Fatalf("got %q, want %q", where, wantWhere)
	}
	if len(args) != 2 || args[0] != 1 || args[1] != 5 {
		t.Fatalf("unexpected combined args: %v", args)
	}
}

func TestNewExecutionID_LengthAndUniqueness(t *testing.T) {
	a := newExecutionID()
	b := newExecutionID()

	if len(a) != 32 {
		t.Fatalf("expected a 32-char hex id, got %q (len %d)", a, len(a))
	}
	if a == b {
		t.Fatal("expected two generated execution ids to differ")
	}
}

func TestDecodeData_Empty(t *testing.T) {
	out, err := decodeData("")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map for empty input, got %v", out)
	}
}

func TestDecodeData_Roundtrip(t *testing.T) {
	out, err := decodeData(`{"a":1,"b":"x"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("unexpected decode: %v", out)
	}
}

func TestDecodeData_InvalidJSON(t *testing.T) {
	if _, err := decodeData("not json"); err == nil {
		t.Fatal("expected an error decoding invalid json")
	}
}

func TestDecodeSteps_EmptyIsNil(t *testing.T) {
	out, err := decodeSteps("")
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("expected nil steps for empty input, got %v", out)
	}
}

func TestDecodeSteps_Roundtrip(t *testing.T) {
	out, err := decodeSteps(`[{"name":"fetch","start":"2026-01-01T00:00:00Z"}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Name != "fetch" {
		t.Fatalf("unexpected decoded steps: %+v", out)
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{int64(9), 9},
		{int(4), 4},
		{"15", 15},
		{nil, 0},
	}
	for _, c := range cases {
		if got := toInt64(c.in); got != c.want {
			t.Fatalf("toInt64(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestQueue_Setup_RequiresNetworkAccess(t *testing.T) {
	t.Skip("requires a real MySQL-wire-protocol server to create and verify the backing table")
}

func TestQueue_Start_RequiresNetworkAccess(t *testing.T) {
	t.Skip("requires a real MySQL-wire-protocol server to claim a row")
}

func TestQueue_BulkFinish_RequiresNetworkAccess(t *testing.T) {
	t.Skip("requires a real MySQL-wire-protocol server to sweep claimed rows")
}
