package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler, attempts int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithRetry(attempts, 5*time.Millisecond))
	return c, srv
}

func TestTransaction_Success(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tx/abc123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Transaction{
			TxID: "abc123",
			Vout: []Output{{ScriptpubkeyAddress: "bcrt1qtreasury", Value: 5_000_000}},
		})
	}), 3)

	tx, err := c.Transaction(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", tx.TxID)
	assert.Equal(t, Sats(5_000_000), tx.Vout[0].Value)
}

func TestTransaction_RetriesUntilIndexerCatchesUp(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Indexer has not seen the tx yet.
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(Transaction{TxID: "abc123"})
	}), 5)

	tx, err := c.Transaction(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", tx.TxID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransaction_UnreachableAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}), 4)

	_, err := c.Transaction(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(4), calls.Load())
}

func TestTransaction_MalformedBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}), 5)

	_, err := c.Transaction(context.Background(), "abc123")
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.NotErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAddressTransactions_Success(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/address/bcrt1qtreasury/txs", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]Transaction{
			{TxID: "tx1", Vin: []Input{{Prevout: &Prevout{ScriptpubkeyAddress: "bcrt1qsender"}}}},
			{TxID: "tx2"},
		})
	}), 3)

	txs, err := c.AddressTransactions(context.Background(), "bcrt1qtreasury")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].SpendsFrom("bcrt1qsender"))
	assert.False(t, txs[1].SpendsFrom("bcrt1qsender"))
}

func TestClient_ContextCancellation(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}), 100)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Transaction(ctx, "abc123")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSats_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Sats
	}{
		{"integer sats", "5000000", 5_000_000},
		{"small integer stays sats", "500", 500},
		{"fractional BTC scales up", "0.05", 5_000_000},
		{"fractional BTC rounds", "0.000005", 500},
		{"large fractional above cutoff truncates to sats", "1500.7", 1501},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sats
			require.NoError(t, json.Unmarshal([]byte(tt.in), &s))
			assert.Equal(t, tt.want, s)
		})
	}

	var s Sats
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &s))
}

func TestTransaction_PaysExactly(t *testing.T) {
	treasury := "bcrt1qtreasury"
	tx := Transaction{
		Vout: []Output{
			{ScriptpubkeyAddress: "bcrt1qchange", Value: 1_234},
			{ScriptpubkeyAddress: treasury, Value: 5_000_000},
		},
	}

	assert.True(t, tx.PaysExactly(treasury, 5_000_000))
	assert.False(t, tx.PaysExactly(treasury, 5_000_001))
	assert.False(t, tx.PaysExactly("bcrt1qother", 5_000_000))

	// Two outputs summing to the right total do not count.
	split := Transaction{
		Vout: []Output{
			{ScriptpubkeyAddress: treasury, Value: 2_500_000},
			{ScriptpubkeyAddress: treasury, Value: 2_500_000},
		},
	}
	assert.False(t, split.PaysExactly(treasury, 5_000_000))
}

func TestTransaction_ObservedTime(t *testing.T) {
	now := time.Now()

	confirmed := Transaction{Status: TxStatus{Confirmed: true, BlockTime: 1_700_000_000}}
	assert.Equal(t, time.Unix(1_700_000_000, 0), confirmed.ObservedTime(now))

	unconfirmed := Transaction{}
	assert.Equal(t, now, unconfirmed.ObservedTime(now))
}
