package namestate

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/handshake-org/hswd/hnsparams"
)

// State enumerates the phases of a name's auction lifecycle as derived from
// the epoch height and the network windows.
type State uint8

const (
	// StateOpening covers the blocks between the OPEN and the start of
	// bidding, during which the tree commits the auction.
	StateOpening State = iota

	// StateBidding accepts blinded bids.
	StateBidding

	// StateReveal accepts reveals of previously committed bids.
	StateReveal

	// StateClosed means the auction finished; the name has an owner (or
	// nobody bid and it can be re-opened once expired).
	StateClosed

	// StateRevoked means the owner destroyed the name for the remainder
	// of the epoch.
	StateRevoked
)

// String returns the canonical upper-case name of the state.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateBidding:
		return "BIDDING"
	case StateReveal:
		return "REVEAL"
	case StateClosed:
		return "CLOSED"
	case StateRevoked:
		return "REVOKED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// NameState is the per-name auction record read from the chain. The wallet
// never persists it; derived fields are recomputed against the current
// height on every use.
type NameState struct {
	// Name is the readable label, when known.
	Name string

	// NameHash is the protocol identifier.
	NameHash []byte

	// Height is the block height of the OPEN that started the current
	// epoch. It is repeated in every covenant of the epoch.
	Height uint32

	// Owner is the outpoint holding the name once the auction closed.
	Owner wire.OutPoint

	// Value is the second-highest reveal, i.e. the price the winner pays
	// at REGISTER.
	Value btcutil.Amount

	// Highest is the highest reveal.
	Highest btcutil.Amount

	// Renewal is the height of the last renewal event.
	Renewal uint32

	// Renewals counts renewal events in this epoch.
	Renewals uint32

	// Claimed is non-zero for names that entered via a reserved claim.
	Claimed uint32

	// Weak marks a weakly reserved claim.
	Weak bool

	// Revoked is the height of a REVOKE, zero if never revoked.
	Revoked uint32

	// Transfer is the height of a pending TRANSFER, zero if none.
	Transfer uint32
}

// HasOwner reports whether the auction produced an owner outpoint.
func (ns *NameState) HasOwner() bool {
	return ns.Owner.Hash != [32]byte{} || ns.Owner.Index != 0
}

// State derives the lifecycle phase at the given height.
func (ns *NameState) State(height uint32, p *hnsparams.Params) State {
	if ns.Revoked != 0 {
		return StateRevoked
	}
	if ns.Claimed != 0 {
		return StateClosed
	}

	open := ns.Height
	switch {
	case height < open+p.OpenPeriod():
		return StateOpening
	case height < open+p.OpenPeriod()+p.BiddingPeriod:
		return StateBidding
	case height < open+p.OpenPeriod()+p.BiddingPeriod+p.RevealPeriod:
		return StateReveal
	default:
		return StateClosed
	}
}

// RevealStart returns the first height of the reveal period.
func (ns *NameState) RevealStart(p *hnsparams.Params) uint32 {
	return ns.Height + p.OpenPeriod() + p.BiddingPeriod
}

// IsExpired reports whether the name lapsed past its renewal window and the
// epoch is over.
func (ns *NameState) IsExpired(height uint32, p *hnsparams.Params) bool {
	if ns.Revoked != 0 {
		// A revoked name becomes available again once the reveal
		// period it would have occupied has fully elapsed.
		return height >= ns.Revoked+p.AuctionLength()
	}
	if ns.Renewal == 0 {
		return false
	}

	return height >= ns.Renewal+p.RenewalWindow
}

// NeedsRenewal reports whether a RENEW is currently legal: at least one tree
// interval must have passed since the last renewal event.
func (ns *NameState) NeedsRenewal(height uint32, p *hnsparams.Params) bool {
	return height >= ns.Renewal+p.TreeInterval
}
