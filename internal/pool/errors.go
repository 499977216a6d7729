// errors.go - The operation-scoped failure taxonomy.
//
// Every failure before the commit step leaves the account store untouched
// and is recoverable by retrying the whole operation; there is no fatal
// class at this layer. Callers match with errors.Is.
package pool

import (
	"errors"

	"shroud/internal/ledger"
	"shroud/internal/prover"
	"shroud/internal/wallet"
)

var (
	// ErrLogUnavailable means the event replay failed or was partial.
	ErrLogUnavailable = ledger.ErrLogUnavailable
	// ErrProvingKeyUnavailable means the key source failed.
	ErrProvingKeyUnavailable = prover.ErrProvingKeyUnavailable
	// ErrProofComputationFailed is a boundary-level fault.
	ErrProofComputationFailed = prover.ErrProofFailed
	// ErrProofCancelled means the computation was torn down or ctx-cancelled.
	ErrProofCancelled = prover.ErrProofCancelled
	// ErrSubmissionFailed means the ledger rejected the transaction or the
	// transport failed. A computed proof is discarded, never reused: the
	// snapshot it was built against may already be stale.
	ErrSubmissionFailed = ledger.ErrSubmissionFailed
	// ErrConfirmationTimeout means the confirmation wait was exhausted.
	ErrConfirmationTimeout = ledger.ErrConfirmationTimeout
	// ErrAccountNotFound and ErrAccountAlreadyExists surface store lookups.
	ErrAccountNotFound      = wallet.ErrAccountNotFound
	ErrAccountAlreadyExists = wallet.ErrAccountAlreadyExists
	// ErrOperationInFlight means a second operation was started for an
	// account whose previous one has not resolved. Caller error, never
	// queued.
	ErrOperationInFlight = errors.New("an operation for this account is already in flight")
)
