package wallet

import (
	"errors"

	"github.com/btcsuite/btcd/wire"

	"github.com/handshake-org/hswd/auction"
	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/namestate"
)

var (
	// ErrAborted is returned when the caller's context was cancelled
	// before broadcast. Nothing was sent and nothing was cached.
	ErrAborted = errors.New("request aborted before broadcast")

	// ErrWatchOnly is returned by signers that hold no private keys.
	ErrWatchOnly = errors.New("cannot sign with watch-only wallet")

	// ErrTooManyNames is returned when a batch request exceeds the
	// per-transaction name cap.
	ErrTooManyNames = errors.New("batch exceeds maximum name count")

	// ErrNoOutputs is returned by send-many when no outputs were given.
	ErrNoOutputs = errors.New("no outputs to send")
)

// Chain is the consensus collaborator: name states, fee estimation and
// transaction relay. All calls may block on the network.
type Chain interface {
	auction.ChainView

	// Height returns the current chain tip height.
	Height() (uint32, error)

	// IsAvailable reports whether the name can currently be opened.
	IsAvailable(nameHash []byte) (bool, error)

	// GetNameStatus reports the name's derived lifecycle phase at the
	// chain tip.
	GetNameStatus(nameHash []byte) (namestate.State, error)

	// SendClaim relays a reserved-name claim proof to the network.
	SendClaim(claim []byte) error

	// EstimateFee returns a fee rate targeting confirmation within the
	// given number of blocks.
	EstimateFee(targetBlocks uint32) (funding.FeeRate, error)

	// Send relays the transaction to the network.
	Send(tx *hnswire.MsgTx) error

	// AddTx inserts the transaction into the local mempool without
	// relaying it.
	AddTx(tx *hnswire.MsgTx) error
}

// Signer produces witnesses for a funded transaction. Implementations
// backed by watch-only key material return ErrWatchOnly.
type Signer interface {
	SignTx(tx *hnswire.MsgTx, coins map[wire.OutPoint]*coindb.Coin) error
}

// Keychain is the key derivation collaborator. It extends the engine's
// address source with change derivation and reverse lookup, and thereby
// also satisfies the funder's change source.
type Keychain interface {
	auction.AddressSource

	// ChangeAddress derives the account's next change address.
	ChangeAddress(account uint32) (hnswire.Address, error)

	// LookupAddress resolves an address back to its owning account.
	LookupAddress(addr hnswire.Address) (uint32, bool)
}
