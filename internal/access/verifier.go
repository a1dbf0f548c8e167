// Package access is the sole authority for granting access to paid content.
//
// A stored proof record is treated as an untrusted hint: it is writable by
// the same party requesting access, so every check re-derives the decision
// from live ledger state.
package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/privilegehq/satsgate/internal/indexer"
	"github.com/privilegehq/satsgate/internal/proof"
)

// DenyReason classifies why access was refused.
type DenyReason string

const (
	ReasonProofMissing       DenyReason = "proof_missing"
	ReasonProofCorrupted     DenyReason = "proof_corrupted"
	ReasonIndexerUnreachable DenyReason = "indexer_unreachable"
	ReasonAddressMismatch    DenyReason = "address_mismatch"
	ReasonAmountMismatch     DenyReason = "amount_mismatch"
)

// Message returns a short human-readable explanation for the caller's UI.
func (r DenyReason) Message() string {
	switch r {
	case ReasonProofMissing:
		return "No proof of payment found for this tier."
	case ReasonProofCorrupted:
		return "Payment proof is corrupted."
	case ReasonIndexerUnreachable:
		return "Payment could not be confirmed on the ledger; try again later."
	case ReasonAddressMismatch:
		return "Payment was not made to the expected address."
	case ReasonAmountMismatch:
		return "No payment found matching this tier's exact amount."
	default:
		return "Access denied."
	}
}

// Decision is the outcome of one verification.
type Decision struct {
	Allowed bool
	Reason  DenyReason // set only when denied
}

var allowed = Decision{Allowed: true}

func denied(r DenyReason) Decision {
	return Decision{Reason: r}
}

// TransactionFetcher is the slice of the indexer client the verifier needs.
type TransactionFetcher interface {
	Transaction(ctx context.Context, txid string) (*indexer.Transaction, error)
}

// Verifier re-confirms stored payment proofs against live ledger state.
type Verifier struct {
	fetcher  TransactionFetcher
	proofs   proof.Store
	treasury string
	logger   *slog.Logger
}

// Option configures the verifier
type Option func(*Verifier)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// NewVerifier creates a verifier that accepts only payments to treasury.
func NewVerifier(fetcher TransactionFetcher, proofs proof.Store, treasury string, opts ...Option) *Verifier {
	v := &Verifier{
		fetcher:  fetcher,
		proofs:   proofs,
		treasury: treasury,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify decides whether wallet may access (resourceID, tierIndex) priced at
// expectedSats. The stored proof is looked up, the referenced transaction is
// re-fetched from the indexer, and exactly one output must pay the treasury
// address the exact tier price.
//
// Denials are returned as a Decision; the error is reserved for conditions
// outside the deny taxonomy (e.g. a malformed indexer response).
func (v *Verifier) Verify(ctx context.Context, wallet, resourceID string, tierIndex int, expectedSats int64) (Decision, error) {
	rec, err := v.proofs.Get(ctx, wallet, resourceID, tierIndex)
	if errors.Is(err, proof.ErrNotFound) {
		return v.deny(ReasonProofMissing), nil
	}
	if err != nil {
		return Decision{}, err
	}
	if rec.TxRef == "" {
		// Malformed record: same treatment as no record at all.
		return v.deny(ReasonProofCorrupted), nil
	}

	tx, err := v.fetcher.Transaction(ctx, rec.TxRef)
	if errors.Is(err, indexer.ErrUnreachable) {
		return v.deny(ReasonIndexerUnreachable), nil
	}
	if err != nil {
		return Decision{}, err
	}

	if !tx.PaysTo(v.treasury) {
		return v.deny(ReasonAddressMismatch), nil
	}
	if !tx.PaysExactly(v.treasury, indexer.Sats(expectedSats)) {
		return v.deny(ReasonAmountMismatch), nil
	}

	decisionsTotal.WithLabelValues("allowed").Inc()
	return allowed, nil
}

func (v *Verifier) deny(r DenyReason) Decision {
	decisionsTotal.WithLabelValues(string(r)).Inc()
	v.logger.Info("access denied", "reason", string(r))
	return denied(r)
}
