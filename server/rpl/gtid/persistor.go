package gtid

import (
	"context"
	"strconv"
	"strings"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/gtid-ledger/logger"
)

// Persistor is Component C: the transactional append/read/erase/
// compact surface foreground callers and the compaction Worker both
// drive through a Scope. Save and SaveSet append; Fetch rebuilds an
// in-memory Set from the ledger; Reset erases it; Compress runs one
// bounded compaction pass.
type Persistor struct {
	table   TableHandle
	factory ExecContextFactory
	sig     *compressSignal

	// compressionPeriod is the configured append-count threshold; zero
	// disables automatic compaction signalling entirely.
	compressionPeriod uint64

	// appendCount is deliberately unguarded: its read-modify-write is
	// racy under concurrent Save/SaveSet calls, and the threshold is a
	// soft hint rather than an exact trigger. A missed or double count
	// only shifts when the worker wakes, never what it sees once awake.
	appendCount uint64
}

// NewPersistor builds a persistor over table, using factory to resolve
// execution contexts for every Scope it opens. compressionPeriod is
// the save(gtid)/save(set) append-count threshold; zero disables
// automatic signalling.
func NewPersistor(table TableHandle, factory ExecContextFactory, compressionPeriod uint64) *Persistor {
	return &Persistor{
		table:             table,
		factory:           factory,
		sig:               newCompressSignal(),
		compressionPeriod: compressionPeriod,
	}
}

// NewWorkerFor returns a compaction Worker wired to this persistor's
// shared condition variable, ready for Start.
func (p *Persistor) NewWorkerFor() *Worker {
	return NewWorker(p)
}

func rowText(row Row) string {
	var b strings.Builder
	b.WriteString(row.SIDText)
	b.WriteString(sidGnoSep)
	b.WriteString(strconv.FormatUint(row.Start, 10))
	b.WriteString(rangeSep)
	b.WriteString(strconv.FormatUint(row.End, 10))
	return b.String()
}

func fillFields(sid SID, start, end GNO) Row {
	return Row{SIDText: sid.String(), Start: uint64(start), End: uint64(end)}
}

func writeRow(txn Txn, row Row) error {
	return txn.Insert(row)
}

// updateRow re-locates the row matching old's primary key via
// IndexScan before calling Update, the same two-step
// "index_read then update_row" the original table-access layer
// performs rather than trusting a caller's stale row image.
func updateRow(txn Txn, old, new Row) error {
	cursor, err := txn.IndexScan(old.SIDText)
	if err != nil {
		return jerrors.Trace(err)
	}
	defer cursor.Close()
	for {
		r, ok, err := cursor.Next()
		if err != nil {
			return jerrors.Trace(err)
		}
		if !ok {
			break
		}
		if r.Start == old.Start {
			return txn.Update(r, new)
		}
	}
	return jerrors.Annotatef(ErrStorageError, "update_row: no row for sid=%s start=%d", old.SIDText, old.Start)
}

// deleteAll scans every row and deletes it one at a time, materializing
// the scan before deleting so the delete loop never perturbs the
// cursor it is driven by.
func deleteAll(txn Txn) error {
	cursor, err := txn.FullScan()
	if err != nil {
		return jerrors.Trace(err)
	}
	defer cursor.Close()

	var rows []Row
	for {
		r, ok, err := cursor.Next()
		if err != nil {
			return jerrors.Trace(err)
		}
		if !ok {
			break
		}
		rows = append(rows, r)
	}
	for _, r := range rows {
		if err := txn.Delete(r); err != nil {
			return jerrors.Trace(err)
		}
	}
	return nil
}

// warnIfRecoverable logs a warning for the one recoverable failure
// kind (TableUnavailable); hard failures are left for the caller to
// report.
func warnIfRecoverable(op string, err error) {
	if IsRecoverable(err) {
		logger.Warnf("gtid %s: table unavailable: %v", op, err)
	}
}

// onAppended advances the racy append counter by n and, once it
// reaches the configured threshold, resets it and signals the
// compaction worker. The signal is sent without holding sig.mu: a
// spurious extra wakeup is harmless, and the worker re-checks its own
// predicate after waking.
func (p *Persistor) onAppended(n int) {
	p.appendCount += uint64(n)
	if p.compressionPeriod > 0 && p.appendCount >= p.compressionPeriod {
		p.appendCount = 0
		p.sig.notify()
	}
}

// Save appends one identifier as a degenerate interval [gno, gno].
func (p *Persistor) Save(ctx context.Context, sid SID, gno GNO) error {
	scope, err := OpenScope(ctx, p.table, p.factory, true)
	if err != nil {
		warnIfRecoverable("save", err)
		return jerrors.Trace(err)
	}

	insertErr := writeRow(scope.Txn, fillFields(sid, gno, gno))
	if closeErr := scope.Close(insertErr != nil, true); insertErr == nil && closeErr != nil {
		return jerrors.Trace(closeErr)
	}
	if insertErr != nil {
		return jerrors.Trace(insertErr)
	}
	p.onAppended(1)
	return nil
}

// SaveSet appends every interval in set as one transaction: either all
// rows land or none do.
func (p *Persistor) SaveSet(ctx context.Context, set *Set) error {
	scope, err := OpenScope(ctx, p.table, p.factory, true)
	if err != nil {
		warnIfRecoverable("save_set", err)
		return jerrors.Trace(err)
	}

	n, saveErr := p.saveSetLocked(scope.Txn, set)
	if closeErr := scope.Close(saveErr != nil, true); saveErr == nil && closeErr != nil {
		return jerrors.Trace(closeErr)
	}
	if saveErr != nil {
		return jerrors.Trace(saveErr)
	}
	p.onAppended(n)
	return nil
}

// saveSetLocked is the seam between SaveSet's scope-management and its
// row-writing: it is given an already-open, already-write-locked txn
// and returns how many rows it wrote. Separated out so tests can drive
// the write path directly against a MemTable transaction without
// going through OpenScope.
func (p *Persistor) saveSetLocked(txn Txn, set *Set) (int, error) {
	rows := make([]Row, 0, set.Count())
	it := set.Intervals()
	for {
		iv, ok := it.Next()
		if !ok {
			break
		}
		rows = append(rows, fillFields(iv.SID, iv.Start, iv.End))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if batcher, ok := txn.(BatchInserter); ok {
		if err := batcher.InsertBatch(rows); err != nil {
			return 0, jerrors.Trace(err)
		}
		return len(rows), nil
	}
	for _, row := range rows {
		if err := writeRow(txn, row); err != nil {
			return 0, jerrors.Trace(err)
		}
	}
	return len(rows), nil
}

// BatchInserter is an optional Txn capability a TableHandle may
// implement to persist a whole SaveSet batch in one round trip.
// SaveSet falls back to row-by-row Insert when a backend (MemTable)
// does not implement it.
type BatchInserter interface {
	InsertBatch(rows []Row) error
}

// Fetch reads the full ledger in primary-key order into into. A
// malformed row (unparsable SID text, or a start/end pair that fails
// interval validation) surfaces as StorageError; into is left with
// whatever prefix of the scan it had already absorbed.
func (p *Persistor) Fetch(ctx context.Context, into *Set) error {
	scope, err := OpenScope(ctx, p.table, p.factory, false)
	if err != nil {
		warnIfRecoverable("fetch", err)
		return jerrors.Trace(err)
	}

	cursor, err := scope.Txn.FullScan()
	if err != nil {
		_ = scope.Close(true, false)
		return jerrors.Trace(err)
	}
	defer cursor.Close()

	for {
		row, ok, err := cursor.Next()
		if err != nil {
			_ = scope.Close(true, false)
			return jerrors.Annotatef(ErrStorageError, "fetch: %v", err)
		}
		if !ok {
			break
		}
		if err := into.AddText(rowText(row)); err != nil {
			_ = scope.Close(true, false)
			return jerrors.Annotatef(ErrStorageError, "fetch: malformed row %q: %v", rowText(row), err)
		}
	}
	return jerrors.Trace(scope.Close(false, false))
}

// Reset erases every row in the ledger. It excludes Compress via the
// shared compaction lock, the same mutual exclusion LOCK_compress
// gives reset() and compress() in the source.
func (p *Persistor) Reset(ctx context.Context) error {
	p.sig.mu.Lock()
	defer p.sig.mu.Unlock()

	scope, err := OpenScope(ctx, p.table, p.factory, true)
	if err != nil {
		warnIfRecoverable("reset", err)
		return jerrors.Trace(err)
	}
	deleteErr := deleteAll(scope.Txn)
	if closeErr := scope.Close(deleteErr != nil, true); deleteErr == nil && closeErr != nil {
		return jerrors.Trace(closeErr)
	}
	if deleteErr != nil {
		return jerrors.Trace(deleteErr)
	}
	p.appendCount = 0
	return nil
}

// Compress runs one pass of range compaction: it merges only the
// first run of consecutive same-SID intervals the primary-key-ordered
// scan encounters, per the bounded-transaction-size rationale in
// spec.md's compaction algorithm. It is protected by the same lock
// Reset takes, so the two never interleave.
func (p *Persistor) Compress() error {
	p.sig.mu.Lock()
	defer p.sig.mu.Unlock()

	ctx := context.Background()
	scope, err := OpenScope(ctx, p.table, p.factory, true)
	if err != nil {
		warnIfRecoverable("compress", err)
		return jerrors.Trace(err)
	}

	cursor, err := scope.Txn.FullScan()
	if err != nil {
		_ = scope.Close(true, true)
		return jerrors.Trace(err)
	}
	defer cursor.Close()

	var prev, first Row
	havePrev := false
	foundRun := false
	var toDelete []Row

	for {
		cur, ok, err := cursor.Next()
		if err != nil {
			_ = scope.Close(true, true)
			return jerrors.Trace(err)
		}
		if !ok {
			break
		}
		if !havePrev {
			prev, first = cur, cur
			havePrev = true
			continue
		}
		if prev.SIDText == cur.SIDText && prev.End+1 == cur.Start {
			if !foundRun {
				first = prev
				foundRun = true
			}
			toDelete = append(toDelete, cur)
			prev = cur
			continue
		}
		if foundRun {
			break
		}
		prev = cur
	}

	for _, row := range toDelete {
		if err := scope.Txn.Delete(row); err != nil {
			_ = scope.Close(true, true)
			return jerrors.Trace(err)
		}
	}
	if foundRun {
		updated := Row{SIDText: first.SIDText, Start: first.Start, End: prev.End}
		if err := updateRow(scope.Txn, first, updated); err != nil {
			_ = scope.Close(true, true)
			return jerrors.Trace(err)
		}
	}

	if err := scope.Close(false, true); err != nil {
		return jerrors.Trace(err)
	}
	if foundRun {
		logger.Infof("gtid compress merged sid=%s into %d-%d", first.SIDText, first.Start, prev.End)
	}
	return nil
}

// Validate opens and immediately closes a read scope against the
// ledger table, surfacing a schema mismatch or unavailable table
// before any caller attempts a real Save/Fetch. It is meant to run
// once at startup.
func (p *Persistor) Validate(ctx context.Context) error {
	scope, err := OpenScope(ctx, p.table, p.factory, false)
	if err != nil {
		warnIfRecoverable("validate", err)
		return jerrors.Trace(err)
	}
	return jerrors.Trace(scope.Close(false, false))
}
