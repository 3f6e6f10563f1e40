package credits

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestEnsureUserGrantsStartingCreditsOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	bal, err := l.EnsureUser(ctx, "u1", DefaultStartingCredits)
	require.NoError(t, err)
	assert.Equal(t, 10, bal)

	_, err = l.Deduct(ctx, "u1")
	require.NoError(t, err)

	bal, err = l.EnsureUser(ctx, "u1", DefaultStartingCredits)
	require.NoError(t, err)
	assert.Equal(t, 9, bal, "existing users keep their balance")
}

func TestDeductStopsAtZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.EnsureUser(ctx, "u1", 2)
	require.NoError(t, err)

	bal, err := l.Deduct(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, bal)

	bal, err = l.Deduct(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal)

	bal, err = l.Deduct(ctx, "u1")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 0, bal)

	_, err = l.Deduct(ctx, "nobody")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestGrantAndPackages(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	bal, err := l.Grant(ctx, "u1", 5, "")
	require.NoError(t, err)
	assert.Equal(t, 5, bal)

	_, err = l.Grant(ctx, "u1", 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	bal, err = l.GrantPackage(ctx, "u1", "starter")
	require.NoError(t, err)
	assert.Equal(t, 105, bal)

	_, err = l.GrantPackage(ctx, "u1", "gold")
	assert.ErrorIs(t, err, ErrUnknownPackage)

	got, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 105, got)
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.EnsureUser(ctx, "u1", 3)
	require.NoError(t, err)
	_, err = l.Deduct(ctx, "u1")
	require.NoError(t, err)
	_, err = l.GrantPackage(ctx, "u1", "mini")
	require.NoError(t, err)

	hist, err := l.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "package:mini", hist[0].Reason)
	assert.Equal(t, 30, hist[0].Delta)
	assert.Equal(t, -1, hist[1].Delta)
	assert.Equal(t, "welcome", hist[2].Reason)
}

func TestLedgerPersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credits.db")

	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.EnsureUser(ctx, "u1", 4)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, bal)
}
