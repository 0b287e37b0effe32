package inmemdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/policy"
)

func TestDB_RunInTx(t *testing.T) {
	ctx := context.Background()
	scope := policy.Tenant("t1")

	t.Run("rollback keeps concurrent writes", func(t *testing.T) {
		db := Open()
		repo := NewPaymentRepository(db)
		errBoom := errors.New("boom")

		inTx := make(chan struct{})
		release := make(chan struct{})
		txDone := make(chan error, 1)
		go func() {
			txDone <- db.RunInTx(ctx, func(exec core.DBExecutor) error {
				if _, err := repo.CreatePayment(ctx, payment.Payment{ID: "in-tx", TenantID: "t1"}, exec); err != nil {
					return err
				}
				close(inTx)
				<-release
				return errBoom
			})
		}()

		<-inTx
		outside := make(chan error, 1)
		go func() {
			_, err := repo.CreatePayment(ctx, payment.Payment{ID: "outside", TenantID: "t1"})
			outside <- err
		}()
		time.Sleep(20 * time.Millisecond)
		close(release)

		assert.Equal(t, errBoom, <-txDone)
		require.NoError(t, <-outside)

		_, err := repo.GetPayment(ctx, scope, "outside")
		assert.NoError(t, err)
		_, err = repo.GetPayment(ctx, scope, "in-tx")
		assert.ErrorIs(t, err, payment.ErrNotFound)
	})

	t.Run("commit", func(t *testing.T) {
		db := Open()
		repo := NewPaymentRepository(db)
		err := db.RunInTx(ctx, func(exec core.DBExecutor) error {
			_, err := repo.CreatePayment(ctx, payment.Payment{ID: "p1", TenantID: "t1"}, exec)
			return err
		})
		require.NoError(t, err)
		_, err = repo.GetPayment(ctx, scope, "p1")
		assert.NoError(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		db := Open()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := db.RunInTx(cctx, func(core.DBExecutor) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}
