// Package sqlutil is the thin internal base that the durable task queue
// and the lock manager share: it registers table DDL when Setup is called
// (Borrow fails until then) and forwards borrowed connections from the
// routing pool. It intentionally does not do anything a caller outside
// this module needs — the public-facing SQL-utility concern (a generic
// CRUD shell over the routing pool) is out of scope; this is just the
// plumbing C4 needs internally.
package sqlutil

import (
	"context"
	"sync"

	"github.com/clusterkit/clusterkit/internal/dberrors"
	"github.com/clusterkit/clusterkit/internal/pool"
	"github.com/clusterkit/clusterkit/internal/routing"
)

// Base borrows connections from a routing pool on behalf of a single
// table/namespace and tracks whether its DDL has been registered.
type Base struct {
	mu     sync.Mutex
	router *routing.Router
	ready  bool
}

// New builds a Base against router. The base is not Ready until Setup
// succeeds.
func New(router *routing.Router) *Base {
	return &Base{router: router}
}

// Ready reports whether Setup has completed successfully.
func (b *Base) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Setup registers ddl (expected to be a CREATE TABLE IF NOT EXISTS
// statement) against the cluster, marking the base ready on success.
func (b *Base) Setup(ctx context.Context, ddl string) error {
	if b.router == nil {
		return &dberrors.RequiresDatabase{Operation: "setup"}
	}
	f, err := b.router.Connect(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := f.Query(ctx, ddl, nil, nil); err != nil {
		return err
	}

	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	return nil
}

// Destroy drops the table/namespace backing this base and marks it not
// ready.
func (b *Base) Destroy(ctx context.Context, dropSQL string) error {
	if err := b.requireReady("destroy"); err != nil {
		return err
	}
	f, err := b.router.Connect(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := f.Query(ctx, dropSQL, nil, nil); err != nil {
		return err
	}

	b.mu.Lock()
	b.ready = false
	b.mu.Unlock()
	return nil
}

func (b *Base) requireReady(op string) error {
	if b.router == nil {
		return &dberrors.RequiresDatabase{Operation: op}
	}
	if !b.Ready() {
		return &dberrors.NotConnected{Operation: op}
	}
	return nil
}

// Borrow borrows a routing-pool fairy, failing with RequiresDatabase /
// NotConnected if Setup hasn't run. Callers must Close the fairy.
func (b *Base) Borrow(ctx context.Context, op string) (*pool.Fairy, error) {
	if err := b.requireReady(op); err != nil {
		return nil, err
	}
	return b.router.Connect(ctx)
}
