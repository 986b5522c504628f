package gtid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemTableInsertAndScan(t *testing.T) {
	m := NewMemTable()
	ctx := context.Background()

	txn, err := m.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, txn.Insert(Row{SIDText: "a", Start: 1, End: 1}))
	require.NoError(t, txn.Insert(Row{SIDText: "a", Start: 2, End: 2}))
	require.NoError(t, txn.Commit())

	readTxn, err := m.Begin(ctx, false)
	require.NoError(t, err)
	cursor, err := readTxn.FullScan()
	require.NoError(t, err)

	var rows []Row
	for {
		r, ok, err := cursor.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, r)
	}
	require.NoError(t, readTxn.Commit())

	assert.Equal(t, []Row{
		{SIDText: "a", Start: 1, End: 1},
		{SIDText: "a", Start: 2, End: 2},
	}, rows)
}

func TestMemTableRollbackDiscardsWrites(t *testing.T) {
	m := NewMemTable()
	ctx := context.Background()

	txn, err := m.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, txn.Insert(Row{SIDText: "a", Start: 1, End: 1}))
	require.NoError(t, txn.Rollback())

	readTxn, err := m.Begin(ctx, false)
	require.NoError(t, err)
	cursor, err := readTxn.FullScan()
	require.NoError(t, err)
	_, ok, err := cursor.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, readTxn.Commit())
}

func TestMemTableReadOnlyTxnRejectsWrites(t *testing.T) {
	m := NewMemTable()
	ctx := context.Background()

	txn, err := m.Begin(ctx, false)
	require.NoError(t, err)
	err = txn.Insert(Row{SIDText: "a", Start: 1, End: 1})
	assert.Error(t, err)
	require.NoError(t, txn.Rollback())
}

func TestMemTableScanSnapshotsBeforeDelete(t *testing.T) {
	m := NewMemTable()
	ctx := context.Background()

	seed, err := m.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, seed.Insert(Row{SIDText: "a", Start: 1, End: 1}))
	require.NoError(t, seed.Insert(Row{SIDText: "a", Start: 2, End: 2}))
	require.NoError(t, seed.Commit())

	txn, err := m.Begin(ctx, true)
	require.NoError(t, err)
	cursor, err := txn.FullScan()
	require.NoError(t, err)
	require.NoError(t, txn.Delete(Row{SIDText: "a", Start: 1, End: 1}))
	require.NoError(t, txn.Commit())

	var seen int
	for {
		_, ok, err := cursor.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen++
	}
	assert.Equal(t, 2, seen, "cursor opened before the delete committed must still see both original rows")
}

func TestMemTableColumnCount(t *testing.T) {
	m := NewMemTable()
	assert.Equal(t, 3, m.ColumnCount())
}
