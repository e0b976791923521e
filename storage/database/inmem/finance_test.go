package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core/finance"
)

func seedFee(t *testing.T, repo finance.Repository, id string) {
	t.Helper()
	err := repo.RunInTx(context.Background(), func(tx finance.Tx) error {
		return tx.CreateStudentFee(context.Background(), finance.StudentFee{
			ID:          id,
			StudentID:   "s1",
			StructureID: "fs1",
			Period:      id,
			TotalAmount: decimal.NewFromInt(100),
		})
	})
	require.NoError(t, err)
}

func TestRunInTx_rollback(t *testing.T) {
	repo := NewFinanceRepository(Open(0))
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.RunInTx(ctx, func(tx finance.Tx) error {
		require.NoError(t, tx.CreateFeeType(ctx, finance.FeeType{ID: "ft1", Name: "Tuition"}))
		// staged writes are not visible before commit, not even to the transaction itself
		_, err := tx.GetFeeType(ctx, "ft1")
		assert.True(t, errors.Is(err, finance.ErrNotFound))
		return boom
	})
	assert.Equal(t, boom, err)

	_, err = repo.GetFeeType(ctx, "ft1")
	assert.True(t, errors.Is(err, finance.ErrNotFound))
}

func TestRunInTx_checksBeforeApplying(t *testing.T) {
	repo := NewFinanceRepository(Open(0))
	ctx := context.Background()
	require.NoError(t, repo.RunInTx(ctx, func(tx finance.Tx) error {
		return tx.CreateFeeType(ctx, finance.FeeType{ID: "ft1", Name: "Tuition"})
	}))

	err := repo.RunInTx(ctx, func(tx finance.Tx) error {
		if err := tx.CreateFeeType(ctx, finance.FeeType{ID: "ft2", Name: "Transport"}); err != nil {
			return err
		}
		return tx.CreateFeeType(ctx, finance.FeeType{ID: "ft3", Name: "TUITION"})
	})
	assert.True(t, errors.Is(err, finance.ErrDuplicate), "got %v", err)

	fts, err := repo.QueryFeeTypes(ctx)
	require.NoError(t, err)
	require.Len(t, fts, 1)
	assert.Equal(t, "ft1", fts[0].ID)
}

func TestLockStudentFees_timeout(t *testing.T) {
	repo := NewFinanceRepository(Open(50 * time.Millisecond))
	ctx := context.Background()
	seedFee(t, repo, "a")
	seedFee(t, repo, "b")

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = repo.RunInTx(ctx, func(tx finance.Tx) error {
			_, err := tx.LockStudentFees(ctx, "b")
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	start := time.Now()
	err := repo.RunInTx(ctx, func(tx finance.Tx) error {
		_, err := tx.LockStudentFees(ctx, "b", "a")
		return err
	})
	assert.True(t, errors.Is(err, finance.ErrConcurrencyConflict), "got %v", err)
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(50*time.Millisecond))

	// "a" was released with the failed transaction
	close(done)
	err = repo.RunInTx(ctx, func(tx finance.Tx) error {
		fees, err := tx.LockStudentFees(ctx, "b", "a", "a")
		if err == nil {
			assert.Len(t, fees, 2)
			assert.Equal(t, "a", fees[0].ID)
		}
		return err
	})
	assert.NoError(t, err)
}

func TestLockStudentFees_contextDone(t *testing.T) {
	repo := NewFinanceRepository(Open(time.Minute))
	seedFee(t, repo, "a")

	locked := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		_ = repo.RunInTx(context.Background(), func(tx finance.Tx) error {
			_, err := tx.LockStudentFees(context.Background(), "a")
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := repo.RunInTx(context.Background(), func(tx finance.Tx) error {
		_, err := tx.LockStudentFees(ctx, "a")
		return err
	})
	assert.True(t, errors.Is(err, finance.ErrConcurrencyConflict), "got %v", err)
}

func TestUpdateStudentFee_requiresLock(t *testing.T) {
	repo := NewFinanceRepository(Open(0))
	ctx := context.Background()
	seedFee(t, repo, "a")

	err := repo.RunInTx(ctx, func(tx finance.Tx) error {
		return tx.UpdateStudentFee(ctx, finance.StudentFee{ID: "a"})
	})
	assert.Error(t, err)

	err = repo.RunInTx(ctx, func(tx finance.Tx) error {
		return tx.CreateLedgerEntry(ctx, finance.LedgerEntry{ID: "e1", Seq: 1})
	})
	assert.Error(t, err)
}

func TestLedger(t *testing.T) {
	repo := NewFinanceRepository(Open(0))
	ctx := context.Background()

	err := repo.RunInTx(ctx, func(tx finance.Tx) error {
		_, err := tx.LockLedger(ctx)
		return err
	})
	assert.True(t, errors.Is(err, finance.ErrNotFound), "got %v", err)

	for i := int64(1); i <= 3; i++ {
		err := repo.RunInTx(ctx, func(tx finance.Tx) error {
			last, err := tx.LockLedger(ctx)
			if err != nil && !errors.Is(err, finance.ErrNotFound) {
				return err
			}
			return tx.CreateLedgerEntry(ctx, finance.LedgerEntry{
				ID:      string(rune('a' + last.Seq)),
				Seq:     last.Seq + 1,
				Type:    finance.EntryCredit,
				Amount:  decimal.NewFromInt(10),
				Balance: last.Balance.Add(decimal.NewFromInt(10)),
			})
		})
		require.NoError(t, err)
	}

	last, err := repo.LastLedgerEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last.Seq)
	assert.True(t, decimal.NewFromInt(30).Equal(last.Balance))

	require.NoError(t, repo.RunInTx(ctx, func(tx finance.Tx) error {
		return tx.MarkLedgerEntryReversed(ctx, "a", "c")
	}))
	entry, err := repo.GetLedgerEntry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", entry.ReversedBy)
}
