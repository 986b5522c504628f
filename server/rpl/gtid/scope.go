package gtid

import (
	"context"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/gtid-ledger/logger"
)

// minLedgerColumns is the lowest column count a ledger table can have
// and still carry (sid, gno_start, gno_end); fewer is a hard
// ErrSchemaMismatch, the same check Gtid_table_access_context::init
// performs against the opened TABLE before touching a single row.
const minLedgerColumns = 3

// Scope is the execution-context and lock-acquisition wrapper every
// persistor operation opens around its table access: it suppresses
// binlog writes for the duration (a ledger write must never itself be
// binlogged), and Close releases the exec context's suppression flag
// and the transaction it opened on both success and error. The
// persistor's operations call Close directly rather than deferring it,
// so a panic between OpenScope and Close leaves both unreleased.
type Scope struct {
	table               TableHandle
	ec                  ExecContext
	factory             ExecContextFactory
	mintedEC            bool
	wasBinlogSuppressed bool

	Txn Txn
}

// OpenScope opens a bounded interaction with table: it resolves an
// ExecContext (reusing one attached to ctx or already current on the
// factory, minting one otherwise), suppresses binlog writes on it,
// validates the table's column count, and begins a transaction in the
// requested mode. Callers must call Close exactly once.
func OpenScope(ctx context.Context, table TableHandle, factory ExecContextFactory, write bool) (*Scope, error) {
	if table == nil {
		return nil, jerrors.Trace(ErrTableUnavailable)
	}
	if factory == nil {
		return nil, jerrors.Trace(errNilExecContextFactory)
	}
	if table.ColumnCount() < minLedgerColumns {
		return nil, jerrors.Annotatef(ErrSchemaMismatch, "table has %d columns, need at least %d", table.ColumnCount(), minLedgerColumns)
	}

	ec, minted, err := resolveExecContext(ctx, factory)
	if err != nil {
		return nil, jerrors.Trace(err)
	}

	wasSuppressed := ec.BinlogSuppressed()
	ec.SetBinlogSuppressed(true)

	txn, err := table.Begin(ctx, write)
	if err != nil {
		ec.SetBinlogSuppressed(wasSuppressed)
		if minted {
			factory.Destroy(ec)
		}
		logger.Warnf("gtid: table unavailable, begin failed: %v", err)
		return nil, jerrors.Trace(err)
	}

	return &Scope{
		table:               table,
		ec:                  ec,
		factory:             factory,
		mintedEC:            minted,
		wasBinlogSuppressed: wasSuppressed,
		Txn:                 txn,
	}, nil
}

func resolveExecContext(ctx context.Context, factory ExecContextFactory) (ExecContext, bool, error) {
	if ec, ok := execContextFromContext(ctx); ok {
		return ec, false, nil
	}
	if ec, ok := factory.Current(); ok {
		return ec, false, nil
	}
	ec, err := factory.New()
	if err != nil {
		return nil, false, jerrors.Trace(err)
	}
	return ec, true, nil
}

// Close ends the scope. If failed is false, the transaction is
// committed; otherwise it is rolled back. The outer transaction is
// committed or rolled back to match whenever commitOuter (or failed)
// says so, regardless of whether this scope minted its ExecContext or
// borrowed one already attached — close_table's need_commit check in
// the original applies the same way whether thd came from create_thd
// or was the caller's own current_thd.
//
// Close always runs its cleanup (binlog-suppression restore, minted
// ExecContext teardown) regardless of which error, if any, it returns.
func (s *Scope) Close(failed bool, commitOuter bool) error {
	var txnErr error
	if failed {
		txnErr = s.Txn.Rollback()
	} else {
		txnErr = s.Txn.Commit()
	}

	var outerErr error
	if failed {
		outerErr = s.ec.RollbackOuter()
	} else if commitOuter {
		outerErr = s.ec.CommitOuter()
	}

	s.ec.SetBinlogSuppressed(s.wasBinlogSuppressed)
	if s.mintedEC {
		s.factory.Destroy(s.ec)
	}

	if txnErr != nil {
		return jerrors.Trace(txnErr)
	}
	if outerErr != nil {
		return jerrors.Trace(outerErr)
	}
	return nil
}
