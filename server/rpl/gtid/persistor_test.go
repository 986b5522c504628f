package gtid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistor(compressionPeriod uint64) (*Persistor, *MemTable) {
	table := NewMemTable()
	p := NewPersistor(table, NewStandaloneExecContextFactory(), compressionPeriod)
	return p, table
}

// storedRowCount counts the rows physically held in table. Fetch cannot
// stand in for it: the Set it fills merges consecutive intervals, so it
// reports the same count whether or not compaction has run.
func storedRowCount(table *MemTable) (int, error) {
	txn, err := table.Begin(context.Background(), false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	cursor, err := txn.FullScan()
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		_, ok, err := cursor.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

func TestPersistorSingletonAppend(t *testing.T) {
	p, _ := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')

	require.NoError(t, p.Save(ctx, a, 5))

	got := NewSet()
	require.NoError(t, p.Fetch(ctx, got))
	assert.Equal(t, 1, got.Count())

	want := NewSet()
	require.NoError(t, want.Add(a, 5))
	assert.True(t, got.Equal(want))
}

func TestPersistorConsecutiveCoalescing(t *testing.T) {
	p, table := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')

	for _, gno := range []GNO{1, 2, 3, 6, 7, 8} {
		require.NoError(t, p.Save(ctx, a, gno))
	}

	require.NoError(t, p.Compress())

	rows, err := storedRowCount(table)
	require.NoError(t, err)
	assert.Equal(t, 4, rows, "first pass merges only 1-3, leaving 6,7,8 unmerged")

	require.NoError(t, p.Compress())

	rows, err = storedRowCount(table)
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "second pass merges the remaining 6-8 run")

	got2 := NewSet()
	require.NoError(t, p.Fetch(ctx, got2))

	want := NewSet()
	require.NoError(t, want.AddInterval(a, 1, 3))
	require.NoError(t, want.AddInterval(a, 6, 8))
	assert.True(t, got2.Equal(want))
}

func TestPersistorMultiSourceNonInterference(t *testing.T) {
	p, _ := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')
	b := sidFor(t, '2')

	// a's gno=1 and b's gno=2 are numerically consecutive but belong to
	// different sources; the sid boundary must prevent compress() from
	// ever treating them as one run, regardless of scan order.
	require.NoError(t, p.Save(ctx, a, 1))
	require.NoError(t, p.Save(ctx, b, 2))

	require.NoError(t, p.Compress())

	got := NewSet()
	require.NoError(t, p.Fetch(ctx, got))
	assert.Equal(t, 2, got.Count(), "the sid boundary between A and B must prevent merging across sources")

	want := NewSet()
	require.NoError(t, want.Add(a, 1))
	require.NoError(t, want.Add(b, 2))
	assert.True(t, got.Equal(want))
}

func TestPersistorThresholdTriggersExactlyOnce(t *testing.T) {
	p, _ := newTestPersistor(4)
	ctx := context.Background()
	a := sidFor(t, '1')

	pendingNow := func() bool {
		p.sig.mu.Lock()
		defer p.sig.mu.Unlock()
		was := p.sig.pending
		p.sig.pending = false
		return was
	}

	for i := GNO(1); i <= 3; i++ {
		require.NoError(t, p.Save(ctx, a, i))
		assert.False(t, pendingNow(), "must not signal before the fourth save")
	}

	require.NoError(t, p.Save(ctx, a, 4))
	assert.True(t, pendingNow(), "must signal exactly on the fourth save")

	require.NoError(t, p.Save(ctx, a, 5))
	assert.False(t, pendingNow())
	assert.Equal(t, uint64(1), p.appendCount)
}

func TestPersistorResetYieldsEmptySet(t *testing.T) {
	p, _ := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')

	require.NoError(t, p.Save(ctx, a, 1))
	require.NoError(t, p.Reset(ctx))

	got := NewSet()
	require.NoError(t, p.Fetch(ctx, got))
	assert.Equal(t, 0, got.Count())
}

func TestPersistorFetchSurfacesMalformedRow(t *testing.T) {
	table := NewMemTable()
	p := NewPersistor(table, NewStandaloneExecContextFactory(), 0)
	ctx := context.Background()

	txn, err := table.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, txn.Insert(Row{SIDText: "not-hex-and-wrong-length", Start: 1, End: 1}))
	require.NoError(t, txn.Commit())

	got := NewSet()
	err = p.Fetch(ctx, got)
	require.Error(t, err)
}

func TestPersistorSaveSetAllOrNothing(t *testing.T) {
	p, _ := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')
	b := sidFor(t, '2')

	set := NewSet()
	require.NoError(t, set.Add(a, 1))
	require.NoError(t, set.Add(b, 1))
	require.NoError(t, p.SaveSet(ctx, set))

	got := NewSet()
	require.NoError(t, p.Fetch(ctx, got))
	assert.True(t, got.Equal(set))
}

func TestPersistorCompressIdempotent(t *testing.T) {
	p, _ := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')

	require.NoError(t, p.Save(ctx, a, 1))
	require.NoError(t, p.Save(ctx, a, 2))
	require.NoError(t, p.Compress())

	before := NewSet()
	require.NoError(t, p.Fetch(ctx, before))

	require.NoError(t, p.Compress())

	after := NewSet()
	require.NoError(t, p.Fetch(ctx, after))
	assert.True(t, before.Equal(after))
}
