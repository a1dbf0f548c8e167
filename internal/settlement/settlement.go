// Package settlement resolves purchase attempts against an external signing
// agent whose completion callbacks are unreliable.
//
// The signer's "cancelled" signal is known to fire even when the transfer
// actually went through, so a cancel is never taken at face value: the ledger
// is polled for the payment that may have happened before the attempt is
// declared failed.
package settlement

import (
	"context"
	"time"
)

// PaymentIntent describes one purchase attempt. Immutable once created.
type PaymentIntent struct {
	SenderAddress    string
	RecipientAddress string
	AmountSats       int64
	ResourceID       string
	TierIndex        int
	InitiatedAt      time.Time
}

// Status is the terminal classification of a purchase attempt.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusTimedOut    Status = "timed_out"
	StatusSignerError Status = "signer_error"
)

// Outcome is the single terminal value produced per purchase attempt.
type Outcome struct {
	Status Status
	TxRef  string // set only when Status is StatusConfirmed
	Detail string // set only when Status is StatusSignerError
}

// Callbacks receive the signer's completion signals for one submission.
// At most one of them is honored; whichever settles first wins and
// later-arriving signals are ignored.
type Callbacks struct {
	OnConfirmed func(txRef string)
	OnCancelled func()
}

// Signer submits payment intents to the external signing agent.
//
// Submit returns an error only for synchronous submission failure, such as no
// compatible wallet being attached. Completion arrives asynchronously through
// the callbacks. No synchronous return value is trusted as a completion
// signal.
type Signer interface {
	Submit(ctx context.Context, intent PaymentIntent, cb Callbacks) error
}
