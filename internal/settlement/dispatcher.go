package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/privilegehq/satsgate/internal/proof"
)

// Dispatcher submits payment intents to the signer and classifies each
// attempt into exactly one Outcome.
//
// State machine per attempt:
//
//	Idle → Dispatched → {Confirmed, PollingReconciliation, TimedOut, SignerError}
//	PollingReconciliation → {Confirmed, Cancelled}
//
// Confirmed is the only state that writes a proof record.
type Dispatcher struct {
	signer  Signer
	poller  *Poller
	proofs  proof.Store
	timeout time.Duration
	logger  *slog.Logger
}

// DispatcherOption configures the dispatcher
type DispatcherOption func(*Dispatcher)

// WithTimeout overrides the global settlement deadline (default 60s).
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithDispatcherLogger sets a custom logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) { disp.logger = logger }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(signer Signer, poller *Poller, proofs proof.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		signer:  signer,
		poller:  poller,
		proofs:  proofs,
		timeout: 60 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch submits the intent and blocks until the attempt settles.
//
// The returned error is non-nil only when the outcome is Confirmed but the
// proof record could not be written; the payment itself still happened.
func (d *Dispatcher) Dispatch(ctx context.Context, intent PaymentIntent) (Outcome, error) {
	if intent.InitiatedAt.IsZero() {
		intent.InitiatedAt = time.Now()
	}
	timer := prometheus.NewTimer(dispatchDuration)
	defer timer.ObserveDuration()

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// Buffered so the first settling signal wins without blocking; everything
	// after it is dropped.
	results := make(chan Outcome, 1)
	settle := func(o Outcome) {
		select {
		case results <- o:
		default:
		}
	}

	cb := Callbacks{
		OnConfirmed: func(txRef string) {
			d.logger.Info("signer confirmed transfer", "txref", txRef)
			settle(Outcome{Status: StatusConfirmed, TxRef: txRef})
		},
		OnCancelled: func() {
			// The cancel signal conflates genuine cancellation with success.
			// Poll the ledger before believing it.
			d.logger.Info("signer reported cancel, reconciling against ledger",
				"sender", intent.SenderAddress,
			)
			go func() {
				txRef, err := d.poller.Poll(attemptCtx,
					intent.SenderAddress, intent.RecipientAddress, intent.InitiatedAt)
				if err != nil {
					// Aborted by the global timeout; that branch settles.
					return
				}
				if txRef != "" {
					reconciledCancels.Inc()
					settle(Outcome{Status: StatusConfirmed, TxRef: txRef})
					return
				}
				settle(Outcome{Status: StatusCancelled})
			}()
		},
	}

	if err := d.signer.Submit(attemptCtx, intent, cb); err != nil {
		out := Outcome{Status: StatusSignerError, Detail: err.Error()}
		outcomesTotal.WithLabelValues(string(out.Status)).Inc()
		return out, nil
	}

	var out Outcome
	select {
	case out = <-results:
	case <-attemptCtx.Done():
		out = Outcome{Status: StatusTimedOut}
	}
	outcomesTotal.WithLabelValues(string(out.Status)).Inc()

	if out.Status != StatusConfirmed {
		return out, nil
	}

	// The attempt context may already be exhausted; the proof write rides on
	// the caller's context instead.
	rec := proof.Record{
		WalletAddress: intent.SenderAddress,
		ResourceID:    intent.ResourceID,
		TierIndex:     intent.TierIndex,
		TxRef:         out.TxRef,
		CreatedAt:     time.Now(),
	}
	if err := d.proofs.Put(ctx, rec); err != nil {
		d.logger.Error("failed to record payment proof",
			"txref", out.TxRef,
			"wallet", intent.SenderAddress,
			"error", err,
		)
		return out, err
	}

	d.logger.Info("purchase settled",
		"txref", out.TxRef,
		"resource", intent.ResourceID,
		"tier", intent.TierIndex,
	)
	return out, nil
}
