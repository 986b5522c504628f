package gtid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// narrowTable reports fewer columns than the ledger requires, to
// exercise OpenScope's schema check.
type narrowTable struct{ *MemTable }

func (n narrowTable) ColumnCount() int { return 2 }

type countingExecContext struct {
	standaloneExecContext
	commits   int
	rollbacks int
}

func (c *countingExecContext) CommitOuter() error   { c.commits++; return nil }
func (c *countingExecContext) RollbackOuter() error { c.rollbacks++; return nil }

type countingFactory struct {
	minted   []*countingExecContext
	destroyed int
}

func (f *countingFactory) Current() (ExecContext, bool) { return nil, false }

func (f *countingFactory) New() (ExecContext, error) {
	ec := &countingExecContext{}
	f.minted = append(f.minted, ec)
	return ec, nil
}

func (f *countingFactory) Destroy(ExecContext) { f.destroyed++ }

func TestOpenScopeRejectsNarrowTable(t *testing.T) {
	table := narrowTable{NewMemTable()}
	factory := &countingFactory{}
	_, err := OpenScope(context.Background(), table, factory, true)
	require.Error(t, err)
}

func TestOpenScopeSuppressesBinlogAndRestores(t *testing.T) {
	table := NewMemTable()
	factory := &countingFactory{}

	scope, err := OpenScope(context.Background(), table, factory, true)
	require.NoError(t, err)
	require.Len(t, factory.minted, 1)
	assert.True(t, factory.minted[0].BinlogSuppressed())

	require.NoError(t, scope.Close(false, true))
	assert.False(t, factory.minted[0].BinlogSuppressed())
	assert.Equal(t, 1, factory.destroyed)
	assert.Equal(t, 1, factory.minted[0].commits)
	assert.Equal(t, 0, factory.minted[0].rollbacks)
}

func TestScopeCloseFailedRollsBackOuter(t *testing.T) {
	table := NewMemTable()
	factory := &countingFactory{}

	scope, err := OpenScope(context.Background(), table, factory, true)
	require.NoError(t, err)
	require.NoError(t, scope.Close(true, true))

	assert.Equal(t, 0, factory.minted[0].commits)
	assert.Equal(t, 1, factory.minted[0].rollbacks)
}

func TestOpenScopeReusesAttachedExecContext(t *testing.T) {
	table := NewMemTable()
	factory := &countingFactory{}
	ec := &countingExecContext{}
	ctx := WithExecContext(context.Background(), ec)

	scope, err := OpenScope(ctx, table, factory, true)
	require.NoError(t, err)
	assert.Empty(t, factory.minted, "an attached ExecContext must not cause the factory to mint a new one")

	require.NoError(t, scope.Close(false, true))
	assert.Equal(t, 1, ec.commits, "commitOuter applies to a borrowed ExecContext the same as a minted one")
	assert.Equal(t, 0, factory.destroyed, "a borrowed ExecContext is never torn down by Destroy")
}
