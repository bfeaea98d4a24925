package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuota_DebitOncePerRequest(t *testing.T) {
	q := NewQuota("E001", 20, 0, 0)

	require.NoError(t, q.Debit("R1", 5))
	require.NoError(t, q.Debit("R3", 2))
	require.NoError(t, q.Debit("R1", 5))

	assert.Equal(t, 7, q.TakenYTD)
	assert.Equal(t, 13, q.AvailableDays)
	assert.True(t, q.Applied("R1", OpDebit))
	assert.True(t, q.Applied("R3", OpDebit))
	assert.True(t, q.Consistent())
}

func TestQuota_RefundOncePerRequest(t *testing.T) {
	q := NewQuota("E001", 20, 0, 0)
	require.NoError(t, q.Debit("R1", 5))
	require.NoError(t, q.Debit("R2", 3))

	q.Refund("R1", 5)
	q.Refund("R2", 3)
	q.Refund("R1", 5)

	assert.Equal(t, 0, q.TakenYTD)
	assert.Equal(t, 20, q.AvailableDays)

	// A refunded request is never debited again.
	require.NoError(t, q.Debit("R1", 5))
	assert.Equal(t, 20, q.AvailableDays)
	assert.True(t, q.Applied("R1", OpRefund))
}

func TestQuota_DebitInsufficient(t *testing.T) {
	q := NewQuota("E001", 5, 0, 0)

	err := q.Debit("R1", 6)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, 5, q.AvailableDays)
	assert.Empty(t, q.Ledger)
}

func TestQuota_LedgerCopyOnWrite(t *testing.T) {
	q := NewQuota("E001", 20, 0, 0)
	require.NoError(t, q.Debit("R1", 1))
	before := q

	require.NoError(t, q.Debit("R2", 1))
	assert.Len(t, before.Ledger, 1)
	assert.Len(t, q.Ledger, 2)
}
