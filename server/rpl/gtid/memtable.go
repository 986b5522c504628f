package gtid

import (
	"context"
	"sort"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/gtid-ledger/server/innodb/latch"
)

// MemTable is the in-memory fake TableHandle spec.md §9's design
// notes call for ("tests can then substitute an in-memory fake"). It
// holds every row in one sorted slice, guarded by the teacher's own
// read-write Latch type, the same way the manager package
// (server/innodb/manager/table_manager.go) protects in-memory state
// with a read-write lock.
type MemTable struct {
	mu   *latch.Latch
	rows []Row // sorted by (SIDText, Start)
}

// NewMemTable returns an empty three-column in-memory ledger table.
func NewMemTable() *MemTable {
	return &MemTable{mu: latch.NewLatch()}
}

func (m *MemTable) ColumnCount() int { return 3 }

func (m *MemTable) Begin(_ context.Context, write bool) (Txn, error) {
	if write {
		m.mu.Lock()
	} else {
		m.mu.RLock()
	}
	return &memTxn{table: m, write: write}, nil
}

func rowLess(a, b Row) bool {
	if a.SIDText != b.SIDText {
		return a.SIDText < b.SIDText
	}
	return a.Start < b.Start
}

func (m *MemTable) findLocked(sidText string, start uint64) int {
	return sort.Search(len(m.rows), func(i int) bool {
		r := m.rows[i]
		if r.SIDText != sidText {
			return r.SIDText >= sidText
		}
		return r.Start >= start
	})
}

type memOp struct {
	kind byte // 'i' insert, 'u' update, 'd' delete
	old  Row
	row  Row
}

// memTxn buffers writes and applies them atomically on Commit, so a
// partial SaveSet failure never leaves a subset of rows behind.
type memTxn struct {
	table *MemTable
	write bool
	ops   []memOp
	done  bool
}

func (t *memTxn) unlock() {
	if t.done {
		return
	}
	t.done = true
	if t.write {
		t.table.mu.Unlock()
	} else {
		t.table.mu.RUnlock()
	}
}

func (t *memTxn) Insert(row Row) error {
	if !t.write {
		return jerrors.Trace(ErrStorageError)
	}
	t.ops = append(t.ops, memOp{kind: 'i', row: row})
	return nil
}

func (t *memTxn) Update(old, new Row) error {
	if !t.write {
		return jerrors.Trace(ErrStorageError)
	}
	t.ops = append(t.ops, memOp{kind: 'u', old: old, row: new})
	return nil
}

func (t *memTxn) Delete(row Row) error {
	if !t.write {
		return jerrors.Trace(ErrStorageError)
	}
	t.ops = append(t.ops, memOp{kind: 'd', row: row})
	return nil
}

func (t *memTxn) IndexScan(sidText string) (RowCursor, error) {
	var snapshot []Row
	for _, r := range t.table.rows {
		if r.SIDText == sidText {
			snapshot = append(snapshot, r)
		}
	}
	return &sliceCursor{rows: snapshot}, nil
}

func (t *memTxn) FullScan() (RowCursor, error) {
	snapshot := make([]Row, len(t.table.rows))
	copy(snapshot, t.table.rows)
	return &sliceCursor{rows: snapshot}, nil
}

func (t *memTxn) Commit() error {
	defer t.unlock()
	for _, op := range t.ops {
		switch op.kind {
		case 'i':
			t.table.insertLocked(op.row)
		case 'u':
			t.table.updateLocked(op.old, op.row)
		case 'd':
			t.table.deleteLocked(op.row)
		}
	}
	t.ops = nil
	return nil
}

func (t *memTxn) Rollback() error {
	t.ops = nil
	t.unlock()
	return nil
}

func (m *MemTable) insertLocked(row Row) {
	idx := m.findLocked(row.SIDText, row.Start)
	m.rows = append(m.rows, Row{})
	copy(m.rows[idx+1:], m.rows[idx:])
	m.rows[idx] = row
}

func (m *MemTable) updateLocked(old, new Row) {
	idx := m.findLocked(old.SIDText, old.Start)
	if idx < len(m.rows) && m.rows[idx].SIDText == old.SIDText && m.rows[idx].Start == old.Start {
		m.rows[idx] = new
	}
}

func (m *MemTable) deleteLocked(row Row) {
	idx := m.findLocked(row.SIDText, row.Start)
	if idx < len(m.rows) && m.rows[idx].SIDText == row.SIDText && m.rows[idx].Start == row.Start {
		m.rows = append(m.rows[:idx], m.rows[idx+1:]...)
	}
}

// sliceCursor is a RowCursor over a snapshot taken at scan-open time.
type sliceCursor struct {
	rows []Row
	pos  int
}

func (c *sliceCursor) Next() (Row, bool, error) {
	if c.pos >= len(c.rows) {
		return Row{}, false, nil
	}
	r := c.rows[c.pos]
	c.pos++
	return r, true, nil
}

func (c *sliceCursor) Close() error { return nil }
