// Package purchase orchestrates the purchase and verification surface exposed
// to the calling application: buy, checkAccess, verifyAccess.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/privilegehq/satsgate/internal/access"
	"github.com/privilegehq/satsgate/internal/catalog"
	"github.com/privilegehq/satsgate/internal/proof"
	"github.com/privilegehq/satsgate/internal/settlement"
	"github.com/privilegehq/satsgate/internal/traces"
)

// Session carries explicit wallet-connection state into every operation,
// scoped to one connect/disconnect cycle. No globally mutable wallet state.
type Session struct {
	WalletAddress string
	Connected     bool
}

func (s Session) valid() bool {
	return s.Connected && s.WalletAddress != ""
}

// BuyResult is returned to the calling UI layer.
type BuyResult struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"` // settlement reference (txid)
	Error     string `json:"error,omitempty"`
}

// VerifyResult is the authoritative, ledger-re-derived access decision.
type VerifyResult struct {
	Allowed    bool   `json:"allowed"`
	DenyReason string `json:"denyReason,omitempty"`
}

// EventSink receives notable settlement and verification events (e.g. for
// the realtime stream). Implementations must not block.
type EventSink interface {
	PurchaseSettled(resourceID string, tierIndex int, status settlement.Status, txRef string)
	AccessVerified(resourceID string, tierIndex int, allowed bool)
}

// Service wires dispatcher, verifier, proof store, and catalog together.
type Service struct {
	dispatcher *settlement.Dispatcher
	verifier   *access.Verifier
	proofs     proof.Store
	catalog    catalog.Store
	treasury   string
	events     EventSink
	logger     *slog.Logger
}

// Option configures the service
type Option func(*Service)

// WithEventSink attaches an event sink for settlement/verification events.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates the purchase service.
func NewService(
	dispatcher *settlement.Dispatcher,
	verifier *access.Verifier,
	proofs proof.Store,
	cat catalog.Store,
	treasury string,
	opts ...Option,
) *Service {
	s := &Service{
		dispatcher: dispatcher,
		verifier:   verifier,
		proofs:     proofs,
		catalog:    cat,
		treasury:   treasury,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Buy submits one purchase attempt for (resourceID, tierIndex) and blocks
// until it settles. priceSats must match the catalog price for the tier;
// the caller-supplied value is a cross-check, never the source of truth.
//
// The caller is responsible for not issuing concurrent duplicate buys for
// the same (wallet, resource, tier).
func (s *Service) Buy(ctx context.Context, sess Session, resourceID string, tierIndex int, priceSats int64) (BuyResult, error) {
	if !sess.valid() {
		return BuyResult{Error: "wallet not connected"}, nil
	}

	tier, err := s.tier(ctx, resourceID, tierIndex)
	if err != nil {
		return BuyResult{}, err
	}
	if priceSats != tier.PriceSats {
		return BuyResult{Error: fmt.Sprintf("price mismatch: tier costs %d sats", tier.PriceSats)}, nil
	}

	ctx, span := traces.StartSpan(ctx, "purchase.buy",
		traces.Wallet(sess.WalletAddress),
		traces.Resource(resourceID),
	)
	defer span.End()

	intent := settlement.PaymentIntent{
		SenderAddress:    sess.WalletAddress,
		RecipientAddress: s.treasury,
		AmountSats:       tier.PriceSats,
		ResourceID:       resourceID,
		TierIndex:        tierIndex,
		InitiatedAt:      time.Now(),
	}

	out, err := s.dispatcher.Dispatch(ctx, intent)
	if s.events != nil {
		s.events.PurchaseSettled(resourceID, tierIndex, out.Status, out.TxRef)
	}
	if err != nil {
		// Confirmed on-chain but the proof write failed; surface the
		// reference so the caller can retry recording.
		return BuyResult{Success: true, Reference: out.TxRef, Error: "proof not recorded"}, err
	}

	switch out.Status {
	case settlement.StatusConfirmed:
		return BuyResult{Success: true, Reference: out.TxRef}, nil
	case settlement.StatusCancelled:
		return BuyResult{Error: "Cancelled"}, nil
	case settlement.StatusTimedOut:
		return BuyResult{Error: "Timeout"}, nil
	case settlement.StatusSignerError:
		return BuyResult{Error: out.Detail}, nil
	default:
		return BuyResult{}, fmt.Errorf("unknown settlement status %q", out.Status)
	}
}

// CheckAccess returns one flag per tier from proof presence only. This is a
// cheap UI hint, not a security decision; VerifyAccess is the authority.
func (s *Service) CheckAccess(ctx context.Context, sess Session, resourceID string) ([]bool, error) {
	res, err := s.catalog.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	flags := make([]bool, len(res.Tiers))
	if !sess.valid() {
		return flags, nil
	}

	for i := range res.Tiers {
		_, err := s.proofs.Get(ctx, sess.WalletAddress, resourceID, i)
		if errors.Is(err, proof.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		flags[i] = true
	}
	return flags, nil
}

// VerifyAccess re-derives the access decision from live ledger state. Must
// be called before revealing gated content.
func (s *Service) VerifyAccess(ctx context.Context, sess Session, resourceID string, tierIndex int) (VerifyResult, error) {
	if !sess.valid() {
		return VerifyResult{DenyReason: "Connect your wallet to verify access."}, nil
	}

	tier, err := s.tier(ctx, resourceID, tierIndex)
	if err != nil {
		return VerifyResult{}, err
	}

	ctx, span := traces.StartSpan(ctx, "purchase.verify_access",
		traces.Wallet(sess.WalletAddress),
		traces.Resource(resourceID),
	)
	defer span.End()

	dec, err := s.verifier.Verify(ctx, sess.WalletAddress, resourceID, tierIndex, tier.PriceSats)
	if err != nil {
		return VerifyResult{}, err
	}
	if s.events != nil {
		s.events.AccessVerified(resourceID, tierIndex, dec.Allowed)
	}
	if !dec.Allowed {
		return VerifyResult{DenyReason: dec.Reason.Message()}, nil
	}
	return VerifyResult{Allowed: true}, nil
}

func (s *Service) tier(ctx context.Context, resourceID string, tierIndex int) (*catalog.Tier, error) {
	res, err := s.catalog.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return res.Tier(tierIndex)
}
