package routing

import (
	"testing"

	"github.com/clusterkit/clusterkit/internal/pool"
)

func TestAggregator_Key(t *testing.T) {
	a := Aggregator{Host: "db1", Port: 3306}
	k := a.key("root", "secret", "app", 42, map[string]string{"charset": "utf8mb4"})

	want := pool.Key{Host: "db1", Port: 3306, User: "root", Password: "secret", Database: "app", Options: map[string]string{"charset": "utf8mb4"}, PID: 42}
	if !k.Equal(want) {
		t.Fatalf("got %+v, want %+v", k, want)
	}
}

func TestToInt(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
	}{
		{int64(7), 7},
		{int(3), 3},
		{"12", 12},
		{nil, 0},
		{3.14, 0},
	}
	for _, c := range cases {
		if got := toInt(c.in); got != c.want {
			t.Fatalf("toInt(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestRouter_Stats_FreshRouter(t *testing.T) {
	primary := Aggregator{Host: "db1", Port: 3306}
	r := New(primary, "root", "", "app", 1, nil, pool.New())

	s := r.Stats()
	if s.Primary != "db1:3306" {
		t.Fatalf("expected primary db1:3306, got %q", s.Primary)
	}
	if s.Sticky != "" || s.Master != "" {
		t.Fatalf("expected no sticky/master before any discovery, got sticky=%q master=%q", s.Sticky, s.Master)
	}
	if len(s.Aggregators) != 0 {
		t.Fatalf("expected no discovered aggregators yet, got %v", s.Aggregators)
	}
	if !s.LastRefresh.IsZero() {
		t.Fatal("expected zero LastRefresh before any discovery")
	}
}

func TestRouter_Connect_RequiresNetworkAccess(t *testing.T) {
	t.Skip("requires a real MySQL-wire-protocol server to run SHOW AGGREGATORS against")
}

func TestRouter_ConnectMaster_RequiresNetworkAccess(t *testing.T) {
	t.Skip("requires a real MySQL-wire-protocol server to resolve the master aggregator")
}
