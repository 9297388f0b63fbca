package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx stands in for an open context-carried transaction.
type fakeTx struct {
	open      bool
	commits   int
	rollbacks int
}

func (t *fakeTx) IsOpen() bool { return t.open }

func (t *fakeTx) Commit(_ context.Context) error {
	t.commits++
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	t.rollbacks++
	return nil
}

func (t *fakeTx) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return nil, nil
}

func (t *fakeTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

func (t *fakeTx) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}

func (t *fakeTx) Rebind(query string) string { return query }

func (t *fakeTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

func openTxContext(tx Tx) context.Context {
	ctx := context.WithValue(context.Background(), txStatusKey, "open")
	return context.WithValue(ctx, txKey, tx)
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRunInTx_NestedCallJoinsOuterTransaction(t *testing.T) {
	outer := &fakeTx{open: true}
	ctx := openTxContext(outer)

	ran := false
	err := RunInTx(ctx, silentLogger(), nil, func(ctx context.Context) error {
		ran = true
		// the outer transaction still serves reads and writes
		assert.Same(t, outer, FromContext(ctx, nil))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	assert.Zero(t, outer.commits, "a nested call must not commit the outer transaction")
	assert.Zero(t, outer.rollbacks)
}

func TestRunInTx_NestedFailureLeavesOuterTransactionOpen(t *testing.T) {
	outer := &fakeTx{open: true}
	ctx := openTxContext(outer)

	wantErr := assert.AnError
	err := RunInTx(ctx, silentLogger(), nil, func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	assert.Zero(t, outer.rollbacks, "the owner decides the transaction's fate")
	assert.Zero(t, outer.commits)
	assert.True(t, outer.IsOpen())
}
