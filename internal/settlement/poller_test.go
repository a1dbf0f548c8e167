package settlement

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privilegehq/satsgate/internal/indexer"
)

const (
	sender   = "bcrt1qsender"
	treasury = "bcrt1qsmfcnslyhp48w6g6pr86gw3z87qw33hxnzrrx8"
)

// fakeLister serves canned transaction lists, one per call.
type fakeLister struct {
	calls   atomic.Int32
	batches [][]indexer.Transaction
	err     error
}

func (f *fakeLister) AddressTransactions(_ context.Context, _ string) ([]indexer.Transaction, error) {
	n := int(f.calls.Add(1)) - 1
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.batches) {
		return f.batches[n], nil
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	return f.batches[len(f.batches)-1], nil
}

func paymentFrom(from string) indexer.Transaction {
	return indexer.Transaction{
		TxID: "tx-" + from,
		Vin:  []indexer.Input{{Prevout: &indexer.Prevout{ScriptpubkeyAddress: from}}},
		Vout: []indexer.Output{{ScriptpubkeyAddress: treasury, Value: 25_000_000}},
	}
}

func fastPoller(lister TransactionLister) *Poller {
	return NewPoller(lister, WithWait(200*time.Millisecond, 10*time.Millisecond))
}

func TestPoll_FindsMatchingUnconfirmedTransaction(t *testing.T) {
	lister := &fakeLister{batches: [][]indexer.Transaction{
		{}, // first look: nothing yet
		{paymentFrom(sender)},
	}}

	txRef, err := fastPoller(lister).Poll(context.Background(), sender, treasury, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "tx-"+sender, txRef)
}

func TestPoll_IgnoresOtherSenders(t *testing.T) {
	lister := &fakeLister{batches: [][]indexer.Transaction{
		{paymentFrom("bcrt1qstranger")},
	}}

	txRef, err := fastPoller(lister).Poll(context.Background(), sender, treasury, time.Now())
	require.NoError(t, err)
	assert.Empty(t, txRef)
}

func TestPoll_IgnoresTransactionsBeforePurchase(t *testing.T) {
	old := paymentFrom(sender)
	old.Status = indexer.TxStatus{Confirmed: true, BlockTime: time.Now().Add(-time.Hour).Unix()}

	lister := &fakeLister{batches: [][]indexer.Transaction{{old}}}

	txRef, err := fastPoller(lister).Poll(context.Background(), sender, treasury, time.Now())
	require.NoError(t, err)
	assert.Empty(t, txRef)
}

func TestPoll_AcceptsConfirmedTransactionAfterPurchase(t *testing.T) {
	notBefore := time.Now().Add(-time.Minute)
	tx := paymentFrom(sender)
	tx.Status = indexer.TxStatus{Confirmed: true, BlockTime: time.Now().Unix()}

	lister := &fakeLister{batches: [][]indexer.Transaction{{tx}}}

	txRef, err := fastPoller(lister).Poll(context.Background(), sender, treasury, notBefore)
	require.NoError(t, err)
	assert.Equal(t, tx.TxID, txRef)
}

func TestPoll_ExhaustsBudgetWithoutMatch(t *testing.T) {
	lister := &fakeLister{}
	start := time.Now()

	txRef, err := fastPoller(lister).Poll(context.Background(), sender, treasury, time.Now())
	require.NoError(t, err)
	assert.Empty(t, txRef)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Greater(t, lister.calls.Load(), int32(2), "should have polled repeatedly")
}

func TestPoll_ToleratesIndexerErrors(t *testing.T) {
	lister := &fakeLister{err: errors.New("indexer down")}

	txRef, err := fastPoller(lister).Poll(context.Background(), sender, treasury, time.Now())
	require.NoError(t, err)
	assert.Empty(t, txRef)
	assert.Greater(t, lister.calls.Load(), int32(1), "errors should not stop the loop")
}

func TestPoll_ContextAbortsWait(t *testing.T) {
	lister := &fakeLister{}
	p := NewPoller(lister, WithWait(10*time.Second, 50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Poll(ctx, sender, treasury, time.Now())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
