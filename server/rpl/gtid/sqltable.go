package gtid

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/snappy"
	jerrors "github.com/juju/errors"
)

// SQLTable is the production TableHandle: it persists ledger rows
// into a real table over database/sql, the way client/main.go and
// cmd/test_fix/main.go in the teacher repo open a *sql.DB with
// sql.Open("mysql", dsn). tableName is schema-qualified, e.g.
// "mysql.gtid_executed" — the name spec.md's data model and the
// original MySQL source both use.
type SQLTable struct {
	db        *sql.DB
	tableName string

	mu             sync.Mutex
	lastBatchAudit []byte // snappy-compressed text encoding of the most recent bulk SaveSet
}

// NewSQLTable wraps an already-open *sql.DB. The caller owns the
// connection pool's lifecycle.
func NewSQLTable(db *sql.DB, tableName string) *SQLTable {
	return &SQLTable{db: db, tableName: tableName}
}

func (t *SQLTable) schemaAndName() (string, string) {
	parts := strings.SplitN(t.tableName, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", parts[0]
}

// ColumnCount queries information_schema directly rather than caching
// a count at construction time, so a concurrent DDL change against
// the table is reflected on the next OpenScope.
func (t *SQLTable) ColumnCount() int {
	schema, name := t.schemaAndName()
	var count int
	row := t.db.QueryRow(
		"SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = ? AND table_name = ?",
		schema, name,
	)
	if err := row.Scan(&count); err != nil {
		return 0
	}
	return count
}

func (t *SQLTable) Begin(ctx context.Context, write bool) (Txn, error) {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: !write})
	if err != nil {
		return nil, jerrors.Annotatef(ErrTableUnavailable, "begin ledger transaction: %v", err)
	}
	return &sqlTxn{tx: tx, table: t}, nil
}

// LastBatchAudit decompresses the most recently snappy-compressed
// bulk-insert payload recorded by InsertBatch, or (nil, nil) if no
// batch has run yet. It exists for crash-diagnostic inspection, not
// for replay: the ledger table itself remains the source of truth.
func (t *SQLTable) LastBatchAudit() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastBatchAudit == nil {
		return nil, nil
	}
	return snappy.Decode(nil, t.lastBatchAudit)
}

type sqlTxn struct {
	tx    *sql.Tx
	table *SQLTable
}

func (t *sqlTxn) Insert(row Row) error {
	q := "INSERT INTO " + t.table.tableName + " (source_uuid, interval_start, interval_end) VALUES (?, ?, ?)"
	if _, err := t.tx.Exec(q, row.SIDText, row.Start, row.End); err != nil {
		return jerrors.Annotatef(ErrStorageError, "insert row: %v", err)
	}
	return nil
}

// InsertBatch is the BatchInserter this backend exercises: it
// snappy-compresses the text encoding of the whole batch into an
// audit buffer before issuing one multi-row INSERT, the same
// "compress before handing it to the write path" shape
// server/net/connection.go applies to outbound frames.
func (t *sqlTxn) InsertBatch(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range rows {
		sid, err := ParseSID(r.SIDText)
		if err != nil {
			return jerrors.Trace(err)
		}
		buf.WriteString(EncodeRowText(sid, GNO(r.Start), GNO(r.End)))
		buf.WriteByte('\n')
	}
	t.table.mu.Lock()
	t.table.lastBatchAudit = snappy.Encode(nil, buf.Bytes())
	t.table.mu.Unlock()

	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*3)
	for i, r := range rows {
		placeholders[i] = "(?, ?, ?)"
		args = append(args, r.SIDText, r.Start, r.End)
	}
	q := "INSERT INTO " + t.table.tableName + " (source_uuid, interval_start, interval_end) VALUES " +
		strings.Join(placeholders, ", ")
	if _, err := t.tx.Exec(q, args...); err != nil {
		return jerrors.Annotatef(ErrStorageError, "bulk insert: %v", err)
	}
	return nil
}

func (t *sqlTxn) Update(old, new Row) error {
	q := "UPDATE " + t.table.tableName + " SET interval_end = ? WHERE source_uuid = ? AND interval_start = ?"
	if _, err := t.tx.Exec(q, new.End, old.SIDText, old.Start); err != nil {
		return jerrors.Annotatef(ErrStorageError, "update row: %v", err)
	}
	return nil
}

func (t *sqlTxn) Delete(row Row) error {
	q := "DELETE FROM " + t.table.tableName + " WHERE source_uuid = ? AND interval_start = ?"
	if _, err := t.tx.Exec(q, row.SIDText, row.Start); err != nil {
		return jerrors.Annotatef(ErrStorageError, "delete row: %v", err)
	}
	return nil
}

func (t *sqlTxn) IndexScan(sidText string) (RowCursor, error) {
	q := "SELECT source_uuid, interval_start, interval_end FROM " + t.table.tableName +
		" WHERE source_uuid = ? ORDER BY interval_start"
	return t.scan(q, sidText)
}

func (t *sqlTxn) FullScan() (RowCursor, error) {
	q := "SELECT source_uuid, interval_start, interval_end FROM " + t.table.tableName +
		" ORDER BY source_uuid, interval_start"
	return t.scan(q)
}

// scan materializes the full result set before returning, so a
// delete issued later against this same transaction never perturbs
// an iteration already under way.
func (t *sqlTxn) scan(query string, args ...interface{}) (RowCursor, error) {
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, jerrors.Annotatef(ErrStorageError, "scan: %v", err)
	}
	defer rows.Close()

	var snapshot []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.SIDText, &r.Start, &r.End); err != nil {
			return nil, jerrors.Annotatef(ErrStorageError, "scan row: %v", err)
		}
		snapshot = append(snapshot, r)
	}
	if err := rows.Err(); err != nil {
		return nil, jerrors.Annotatef(ErrStorageError, "scan interrupted: %v", err)
	}
	return &sliceCursor{rows: snapshot}, nil
}

func (t *sqlTxn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return jerrors.Annotatef(ErrStorageError, "commit: %v", err)
	}
	return nil
}

func (t *sqlTxn) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return jerrors.Annotatef(ErrStorageError, "rollback: %v", err)
	}
	return nil
}
