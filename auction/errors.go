package auction

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/handshake-org/hswd/namestate"
)

var (
	// ErrNameNotFound is returned when the chain has no state for the
	// name and the action requires one.
	ErrNameNotFound = errors.New("name state not found")

	// ErrExpiredName is returned when the name lapsed past its renewal
	// window; the current epoch cannot be acted on anymore.
	ErrExpiredName = errors.New("name has expired")

	// ErrNotOwned is returned when the wallet does not hold the name's
	// owner outpoint.
	ErrNotOwned = errors.New("wallet does not own this name")

	// ErrAlreadyOpening is returned when an unconfirmed OPEN for the name
	// is already pending in the wallet.
	ErrAlreadyOpening = errors.New("open already pending for this name")

	// ErrNotYetMature is returned when an action is attempted before its
	// maturity window elapsed (claim maturity, transfer lockup, renewal
	// interval).
	ErrNotYetMature = errors.New("action not yet mature")

	// ErrResourceTooLarge is returned when a resource record exceeds the
	// consensus maximum.
	ErrResourceTooLarge = errors.New("resource exceeds maximum size")

	// ErrNameReserved is returned when the name belongs to the reserved
	// set and can only enter the chain via a claim.
	ErrNameReserved = errors.New("name is reserved")

	// ErrNotRolledOut is returned when the name's rollout tranche has not
	// been reached yet.
	ErrNotRolledOut = errors.New("name has not been rolled out yet")

	// ErrBidExceedsLockup is returned when a bid's true value exceeds its
	// lockup, which would make the commitment unrevealable.
	ErrBidExceedsLockup = errors.New("bid value exceeds lockup")

	// ErrNoBids is returned by reveal when the wallet holds no revealable
	// bids for the name in the current epoch.
	ErrNoBids = errors.New("no revealable bids for this name")

	// ErrNoReveals is returned by redeem when the wallet holds no losing
	// reveals for the name.
	ErrNoReveals = errors.New("no redeemable reveals for this name")

	// ErrAlreadyTransferring is returned when the owner output already
	// carries a TRANSFER covenant.
	ErrAlreadyTransferring = errors.New("name is already being transferred")

	// ErrNotTransferring is returned by cancel and finalize when the
	// owner output does not carry a TRANSFER covenant.
	ErrNotTransferring = errors.New("name is not being transferred")

	// ErrWrongOwnerCovenant is returned when the owner output's covenant
	// type does not permit the action.
	ErrWrongOwnerCovenant = errors.New("owner covenant does not permit " +
		"this action")
)

// ErrWrongState is returned when the auction phase does not permit the
// attempted action.
type ErrWrongState struct {
	Expected namestate.State
	Actual   namestate.State
}

// Error returns a human-readable string describing the error.
func (e *ErrWrongState) Error() string {
	return fmt.Sprintf("name is in state %v, expected %v", e.Actual,
		e.Expected)
}

// ErrAlreadyPending is returned when the outpoint an action must spend is
// already committed to an unconfirmed transaction.
type ErrAlreadyPending struct {
	OutPoint wire.OutPoint
}

// Error returns a human-readable string describing the error.
func (e *ErrAlreadyPending) Error() string {
	return fmt.Sprintf("outpoint %v is already committed to a pending "+
		"transaction", e.OutPoint)
}
