package pool

import "testing"

func TestKey_Equal(t *testing.T) {
	a := Key{Host: "db1", Port: 3306, User: "root", Password: "x", Database: "app", Options: map[string]string{"charset": "utf8mb4"}, PID: 100}
	b := Key{Host: "db1", Port: 3306, User: "root", Password: "x", Database: "app", Options: map[string]string{"charset": "utf8mb4"}, PID: 100}

	if !a.Equal(b) {
		t.Fatal("expected identical keys to be equal")
	}
}

func TestKey_Equal_DifferentPID(t *testing.T) {
	a := Key{Host: "db1", Port: 3306, User: "root", Database: "app", PID: 100}
	b := a
	b.PID = 200

	if a.Equal(b) {
		t.Fatal("keys with different pid must not be equal")
	}
}

func TestKey_Equal_DifferentOptions(t *testing.T) {
	a := Key{Host: "db1", Port: 3306, Options: map[string]string{"tls": "backend"}}
	b := Key{Host: "db1", Port: 3306, Options: map[string]string{"tls": "other"}}

	if a.Equal(b) {
		t.Fatal("keys with different options must not be equal")
	}
}

func TestKey_Equal_MissingOption(t *testing.T) {
	a := Key{Host: "db1", Options: map[string]string{"tls": "backend"}}
	b := Key{Host: "db1", Options: map[string]string{}}

	if a.Equal(b) {
		t.Fatal("keys with differing option set sizes must not be equal")
	}
}

func TestKey_Canonical_StableAcrossOptionOrder(t *testing.T) {
	a := Key{Host: "db1", Port: 3306, Options: map[string]string{"a": "1", "b": "2"}}
	b := Key{Host: "db1", Port: 3306, Options: map[string]string{"b": "2", "a": "1"}}

	if a.canonical() != b.canonical() {
		t.Fatalf("canonical key must not depend on map iteration order: %q vs %q", a.canonical(), b.canonical())
	}
}

func TestKey_String_OmitsPassword(t *testing.T) {
	k := Key{Host: "db1", Port: 3306, User: "root", Password: "super-secret", Database: "app", PID: 1}

	s := k.String()
	if containsSecret(s, "super-secret") {
		t.Fatalf("Key.String() must not leak the password, got %q", s)
	}
}

func containsSecret(s, secret string) bool {
	for i := 0; i+len(secret) <= len(s); i++ {
		if s[i:i+len(secret)] == secret {
			return true
		}
	}
	return false
}
