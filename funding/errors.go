package funding

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// ErrInsufficientFunds is a type matching the error interface which is
// returned when coin selection fails due to having an insufficient amount
// of confirmed funds.
type ErrInsufficientFunds struct {
	AmountNeeded    btcutil.Amount
	AmountAvailable btcutil.Amount
}

// Error returns a human-readable string describing the error.
func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("not enough funds to build transaction, need %v "+
		"only have %v available", e.AmountNeeded, e.AmountAvailable)
}

var (
	// ErrDustOutput is returned when a non-exempt output falls below the
	// dust threshold.
	ErrDustOutput = errors.New("transaction output is dust")

	// ErrNullAddress is returned when an output carries no address.
	ErrNullAddress = errors.New("transaction output has null address")

	// ErrFeeExceedsMax is returned when the final absolute fee breaches
	// the wallet's hard ceiling.
	ErrFeeExceedsMax = errors.New("fee exceeds maximum allowed fee")

	// ErrWeightExceeded is returned when the assembled transaction
	// breaches the consensus weight limit.
	ErrWeightExceeded = errors.New("transaction weight exceeds maximum")

	// ErrSigopsExceeded is returned when the assembled transaction
	// breaches the consensus sigops limit.
	ErrSigopsExceeded = errors.New("transaction sigops exceed maximum")

	// ErrTooManyAncestors is returned when funding would chain onto too
	// many unconfirmed ancestors.
	ErrTooManyAncestors = errors.New("too many unconfirmed ancestors")

	// ErrExactInputViolated is returned when a builder that must spend
	// exactly its pre-added input would require additional funding
	// inputs. Pre-signed reveals depend on this invariant.
	ErrExactInputViolated = errors.New("transaction requires funding " +
		"input but must spend exactly one outpoint")

	// ErrLockTimeConflict is returned when the builder's locktime would
	// keep the transaction out of the next block.
	ErrLockTimeConflict = errors.New("locktime exceeds target height")

	// ErrNoOutputs is returned for builders with nothing to fund.
	ErrNoOutputs = errors.New("builder has no outputs")
)
