package pool

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/go-sql-driver/mysql"

	"github.com/clusterkit/clusterkit/internal/dbconn"
)

// classify runs the classification policy the pool applies around every
// delegated call on a fairy: I/O errors with ECONNRESET/ECONNREFUSED/
// ETIMEDOUT, any *net.OpError, any net.Error timeout, and
// context.DeadlineExceeded are connection failures outright; a driver "operational"
// error (mysql.MySQLError) is ambiguous until probed with a SELECT 1
// sentinel — if the probe also fails, it's a connection failure, else the
// original error is an application error and is rethrown unchanged.
// Everything else is rethrown as-is.
func classify(ctx context.Context, conn *dbconn.Connection, err error) (connFailure bool) {
	if err == nil {
		return false
	}

	if isResetLikeError(err) {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if conn == nil {
			return true
		}
		if _, _, probeErr := conn.Query(ctx, "SELECT 1", nil, nil); probeErr != nil {
			return true
		}
		return false
	}

	return false
}

func isResetLikeError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
