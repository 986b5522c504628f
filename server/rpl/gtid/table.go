package gtid

import "context"

// Row is one physical ledger record as it is actually stored: the
// three columns spec.md's external-interfaces section names, with
// SIDText carried verbatim rather than parsed — a corrupt SID must be
// representable here so Fetch can surface it (as ErrStorageError,
// annotated with the parse failure) instead of the storage layer
// silently rejecting it.
type Row struct {
	SIDText string
	Start   uint64
	End     uint64
}

// RowCursor walks rows in primary-key order, (sid, gno_start). An
// implementation must snapshot the keys it will visit at scan-open
// time, so that a delete issued against the same Txn mid-scan never
// perturbs an iteration already under way (spec.md §9, open question
// on delete-during-iteration safety).
type RowCursor interface {
	Next() (Row, bool, error)
	Close() error
}

// Txn is one bounded read/write interaction with the ledger table,
// opened under a Scope and closed exactly once via Commit or Rollback.
type Txn interface {
	Insert(row Row) error
	Update(old, new Row) error
	Delete(row Row) error

	// IndexScan returns every row whose SIDText equals sidText, ordered
	// by gno_start. It is the primary-key-prefix lookup update_row uses
	// to re-locate the row it is about to update.
	IndexScan(sidText string) (RowCursor, error)

	// FullScan returns every row in primary-key order.
	FullScan() (RowCursor, error)

	Commit() error
	Rollback() error
}

// TableHandle is the storage-engine collaborator the persistor
// consumes: a transactional, three-column (or wider) table keyed by
// (sid, gno_start). spec.md §4.D's design notes call this "a small
// capability set" to "abstract" the storage engine's row API behind;
// this is that capability set.
type TableHandle interface {
	// Begin opens a transaction. write selects the lock mode the scope
	// requests: shared for read-only operations, exclusive otherwise.
	Begin(ctx context.Context, write bool) (Txn, error)

	// ColumnCount reports how many columns the backing table has.
	// Fewer than three is a hard SchemaMismatch.
	ColumnCount() int
}
