package pool

import (
	"fmt"
	"sort"
	"strings"
)

// Key is the tuple (host, port, user, password, database, options,
// owning-process-id). The owning-process id participates in the key so a
// forked child never reuses a parent's sockets; a library running in an
// environment without fork can use a single sentinel id for every key.
type Key struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Options  map[string]string
	PID      int
}

// Equal reports whether two keys address the same pooled queue: every
// scalar must match and the option maps must be element-wise equal.
func (k Key) Equal(other Key) bool {
	if k.Host != other.Host || k.Port != other.Port || k.User != other.User ||
		k.Password != other.Password || k.Database != other.Database || k.PID != other.PID {
		return false
	}
	if len(k.Options) != len(other.Options) {
		return false
	}
	for name, val := range k.Options {
		if otherVal, ok := other.Options[name]; !ok || otherVal != val {
			return false
		}
	}
	return true
}

// canonical renders the key as a stable string usable as a map key, since
// Go maps can't key on a struct containing a map field directly.
func (k Key) canonical() string {
	names := make([]string, 0, len(k.Options))
	for n := range k.Options {
		names = append(names, n)
	}
	sort.Strings(names)
	var opts strings.Builder
	for _, n := range names {
		fmt.Fprintf(&opts, "%s=%s;", n, k.Options[n])
	}
	return fmt.Sprintf("%s|%d|%s|%s|%s|%d|%s", k.Host, k.Port, k.User, k.Password, k.Database, k.PID, opts.String())
}

// String renders a key for logging/error messages without leaking the
// password.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d/%s (user=%s pid=%d)", k.Host, k.Port, k.Database, k.User, k.PID)
}
