package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/privilegehq/satsgate/internal/indexer"
)

// TransactionLister is the slice of the indexer client the poller needs.
type TransactionLister interface {
	AddressTransactions(ctx context.Context, address string) ([]indexer.Transaction, error)
}

// Poller searches the ledger for a payment that a "cancelled" signal may
// have hidden.
//
// It matches on sender/recipient pairing and observation time only, not on
// amount: exact-amount enforcement happens at verification time on the
// resolved transaction. Unconfirmed transactions carry no timestamp, so the
// wall clock at observation stands in for their event time.
type Poller struct {
	lister   TransactionLister
	maxWait  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// PollerOption configures the poller
type PollerOption func(*Poller)

// WithWait overrides the poll budget and interval. The budget must stay
// below the dispatcher's global timeout so a genuine cancel terminates
// before the attempt is declared timed out.
func WithWait(maxWait, interval time.Duration) PollerOption {
	return func(p *Poller) {
		p.maxWait = maxWait
		p.interval = interval
	}
}

// WithPollerLogger sets a custom logger
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// withClock overrides the time source (for tests).
func withClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a poller over the given transaction lister.
func NewPoller(lister TransactionLister, opts ...PollerOption) *Poller {
	p := &Poller{
		lister:   lister,
		maxWait:  30 * time.Second,
		interval: 2 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll looks for an incoming transaction to recipient with an input owned by
// sender, observed no earlier than notBefore. It returns the first match's
// id, or "" if the wait budget is exhausted without one. A cancelled context
// aborts the wait and returns the context error.
func (p *Poller) Poll(ctx context.Context, sender, recipient string, notBefore time.Time) (string, error) {
	deadline := p.now().Add(p.maxWait)

	for p.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.interval):
		}

		txs, err := p.lister.AddressTransactions(ctx, recipient)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Transient indexer trouble; keep polling until the budget runs out.
			p.logger.Warn("reconciliation poll lookup failed", "error", err)
			continue
		}
		pollIterations.Inc()

		for i := range txs {
			tx := &txs[i]
			if !tx.SpendsFrom(sender) {
				continue
			}
			if tx.ObservedTime(p.now()).Before(notBefore) {
				continue
			}
			p.logger.Info("reconciliation poll found matching transaction",
				"txid", tx.TxID,
				"sender", sender,
			)
			return tx.TxID, nil
		}
	}

	return "", nil
}
