package indexer

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Sats is an output amount in satoshis.
//
// The indexer reports output values either as integer satoshis or as a
// fractional BTC amount, depending on deployment. A fractional value below
// 1000 is taken as BTC and scaled up; everything else is satoshis as-is.
type Sats int64

// UnmarshalJSON applies the value conversion rule.
func (s *Sats) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid output value: %w", err)
	}
	if v != math.Trunc(v) && v < 1000 {
		*s = Sats(math.Round(v * 100_000_000))
		return nil
	}
	*s = Sats(math.Round(v))
	return nil
}

// Prevout describes the output being spent by an input.
type Prevout struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	Value               Sats   `json:"value"`
}

// Input is one transaction input.
type Input struct {
	Prevout *Prevout `json:"prevout"`
}

// Output is one transaction output.
type Output struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	Value               Sats   `json:"value"`
}

// TxStatus carries confirmation state. BlockTime is zero while the
// transaction sits unconfirmed in the mempool.
type TxStatus struct {
	Confirmed bool  `json:"confirmed"`
	BlockTime int64 `json:"block_time"`
}

// Transaction is a ledger transaction as reported by the indexer.
// It is read-only: this service never creates or mutates chain state.
type Transaction struct {
	TxID   string   `json:"txid"`
	Vin    []Input  `json:"vin"`
	Vout   []Output `json:"vout"`
	Status TxStatus `json:"status"`
}

// SpendsFrom reports whether any input of the transaction spends an output
// previously owned by addr.
func (t *Transaction) SpendsFrom(addr string) bool {
	for _, in := range t.Vin {
		if in.Prevout != nil && in.Prevout.ScriptpubkeyAddress == addr {
			return true
		}
	}
	return false
}

// PaysExactly reports whether the transaction contains at least one output
// paying exactly amount to addr. No tolerance, no aggregation across outputs.
func (t *Transaction) PaysExactly(addr string, amount Sats) bool {
	for _, out := range t.Vout {
		if out.ScriptpubkeyAddress == addr && out.Value == amount {
			return true
		}
	}
	return false
}

// PaysTo reports whether any output pays addr, regardless of amount.
func (t *Transaction) PaysTo(addr string) bool {
	for _, out := range t.Vout {
		if out.ScriptpubkeyAddress == addr {
			return true
		}
	}
	return false
}

// ObservedTime returns the transaction's block time if confirmed, or now
// as a proxy for unconfirmed transactions, which carry no timestamp.
func (t *Transaction) ObservedTime(now time.Time) time.Time {
	if t.Status.Confirmed && t.Status.BlockTime > 0 {
		return time.Unix(t.Status.BlockTime, 0)
	}
	return now
}
