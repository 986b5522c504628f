package gtid

import (
	"context"
	"sync"

	jerrors "github.com/juju/errors"
)

// ExecContext is the outer execution context a Scope borrows for the
// duration it holds the ledger table open, mirroring the THD the
// original Gtid_table_access_context::init attaches to: it knows how
// to commit or roll back the caller's surrounding transaction and
// whether binlog writes are currently suppressed.
type ExecContext interface {
	CommitOuter() error
	RollbackOuter() error
	SetBinlogSuppressed(suppressed bool)
	BinlogSuppressed() bool
}

// ExecContextFactory lends out the ExecContext for the thread Scope is
// opened on, and takes it back when Scope closes. A factory may hand
// back an already-attached context (Current) rather than minting one
// (New), matching create_thd's "use the calling thread's THD if it
// already has one" behavior.
type ExecContextFactory interface {
	Current() (ExecContext, bool)
	New() (ExecContext, error)
	Destroy(ExecContext)
}

// standaloneExecContext is an ExecContext with no real surrounding
// transaction to defer to — CommitOuter and RollbackOuter are no-ops.
// It is what drop_thd tears down when create_thd had to mint a
// context rather than reuse one.
type standaloneExecContext struct {
	mu         sync.Mutex
	suppressed bool
}

func (c *standaloneExecContext) CommitOuter() error   { return nil }
func (c *standaloneExecContext) RollbackOuter() error { return nil }

func (c *standaloneExecContext) SetBinlogSuppressed(suppressed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressed = suppressed
}

func (c *standaloneExecContext) BinlogSuppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}

// StandaloneExecContextFactory always mints a fresh standaloneExecContext:
// it never reports a current one attached to the caller, so every Scope
// it serves creates and tears down its own. This is the factory a
// background worker (which has no surrounding SQL session to borrow)
// uses.
type StandaloneExecContextFactory struct{}

func NewStandaloneExecContextFactory() *StandaloneExecContextFactory {
	return &StandaloneExecContextFactory{}
}

func (f *StandaloneExecContextFactory) Current() (ExecContext, bool) { return nil, false }

func (f *StandaloneExecContextFactory) New() (ExecContext, error) {
	return &standaloneExecContext{}, nil
}

func (f *StandaloneExecContextFactory) Destroy(ExecContext) {}

// contextKey is unexported so no other package can collide with it
// when attaching an ExecContext to a context.Context.
type contextKey struct{}

// WithExecContext returns a context carrying ec, so a later OpenScope
// on the same ctx reuses it instead of minting a fresh one — the same
// "reuse the calling thread's THD if it already has one" rule
// create_thd applies.
func WithExecContext(ctx context.Context, ec ExecContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ec)
}

// execContextFromContext recovers an ExecContext attached by
// WithExecContext, if any. OpenScope checks this ahead of the
// factory's own Current/New.
func execContextFromContext(ctx context.Context) (ExecContext, bool) {
	ec, ok := ctx.Value(contextKey{}).(ExecContext)
	return ec, ok
}

var errNilExecContextFactory = jerrors.New("gtid: nil ExecContextFactory")
