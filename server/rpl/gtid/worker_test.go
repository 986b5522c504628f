package gtid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerCompressesOnThreshold(t *testing.T) {
	p, table := newTestPersistor(4)
	ctx := context.Background()
	a := sidFor(t, '1')

	w := p.NewWorkerFor()
	w.Start()
	defer w.Stop()

	for _, gno := range []GNO{1, 2, 3, 4} {
		require.NoError(t, p.Save(ctx, a, gno))
	}

	require.Eventually(t, func() bool {
		n, err := storedRowCount(table)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond, "worker must merge the run of four consecutive rows after one signal")
}

func TestWorkerStartStopIdempotent(t *testing.T) {
	p, _ := newTestPersistor(0)
	w := p.NewWorkerFor()

	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWorkerResetUnderContentionLeavesLedgerEmpty(t *testing.T) {
	p, _ := newTestPersistor(0)
	ctx := context.Background()
	a := sidFor(t, '1')

	for _, gno := range []GNO{1, 2, 3, 4, 5} {
		require.NoError(t, p.Save(ctx, a, gno))
	}

	done := make(chan error, 2)
	go func() { done <- p.Compress() }()
	go func() { done <- p.Reset(ctx) }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)

	got := NewSet()
	require.NoError(t, p.Fetch(ctx, got))
	assert.Equal(t, 0, got.Count(), "reset must win or lose cleanly, never leave a partial ledger")
}
