// Package auction implements the per-name state machine of the naming
// protocol: it validates that an action is legal against the current
// auction phase and emits the unfunded builder carrying exactly the
// covenant outputs (and owned inputs) the transition demands. The engine
// never signs and never broadcasts.
package auction

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/handshake-org/hswd/blinddb"
	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnsparams"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/namestate"
	"github.com/handshake-org/hswd/planner"
	"github.com/handshake-org/hswd/rules"
)

// ChainView is the read-only chain surface the engine consults. A nil
// state with a nil error means the chain has never seen the name.
type ChainView interface {
	// GetNameState fetches the auction record for a name hash.
	GetNameState(nameHash []byte) (*namestate.NameState, error)

	// GetRenewalBlock returns the current renewal anchor block hash.
	GetRenewalBlock() (chainhash.Hash, error)
}

// AddressSource derives the wallet addresses and account keys the
// covenant outputs commit to.
type AddressSource interface {
	// ReceiveAddress returns the account's current receive address.
	ReceiveAddress(account uint32) (hnswire.Address, error)

	// FreshReceiveAddress derives a new receive address, advancing the
	// account's external chain.
	FreshReceiveAddress(account uint32) (hnswire.Address, error)

	// AccountKey returns the serialized public key at the given
	// non-hardened index of the account.
	AccountKey(account, index uint32) ([]byte, error)
}

// PendingView exposes the wallet's unconfirmed transactions for the
// double-open check.
type PendingView interface {
	// HasPendingOpen reports whether an unconfirmed OPEN exists for the
	// name hash.
	HasPendingOpen(nameHash []byte) (bool, error)
}

// Engine validates name actions and emits their builders. All height
// arguments are the height the produced transaction targets, i.e. chain
// height plus one.
type Engine struct {
	params  *hnsparams.Params
	index   *coindb.CoinIndex
	blinds  *blinddb.Store
	chain   ChainView
	keys    AddressSource
	pending PendingView
}

// New builds an engine over the wallet's collaborators.
func New(params *hnsparams.Params, index *coindb.CoinIndex,
	blinds *blinddb.Store, chain ChainView, keys AddressSource,
	pending PendingView) *Engine {

	return &Engine{
		params:  params,
		index:   index,
		blinds:  blinds,
		chain:   chain,
		keys:    keys,
		pending: pending,
	}
}

// nameState validates the label and loads its chain record. A missing
// record maps to ErrNameNotFound.
func (e *Engine) nameState(name string) ([]byte,
	*namestate.NameState, error) {

	if err := rules.CheckName(e.params, name); err != nil {
		return nil, nil, err
	}

	nameHash := rules.HashName(name)
	ns, err := e.chain.GetNameState(nameHash)
	if err != nil {
		return nil, nil, err
	}
	if ns == nil {
		return nil, nil, ErrNameNotFound
	}

	return nameHash, ns, nil
}

// checkState asserts the auction phase at the target height.
func (e *Engine) checkState(ns *namestate.NameState, height uint32,
	expected namestate.State) error {

	actual := ns.State(height, e.params)
	if actual != expected {
		return &ErrWrongState{Expected: expected, Actual: actual}
	}

	return nil
}

// ownerCoin loads the coin holding the name, asserting the wallet owns it
// and that no pending transaction is already spending it.
func (e *Engine) ownerCoin(ns *namestate.NameState,
	height uint32) (*coindb.Coin, error) {

	if ns.IsExpired(height, e.params) {
		return nil, ErrExpiredName
	}
	if err := e.checkState(ns, height, namestate.StateClosed); err != nil {
		return nil, err
	}
	if !ns.HasOwner() {
		return nil, ErrNotOwned
	}

	credit, err := e.index.GetCredit(ns.Owner)
	switch {
	case errors.Is(err, coindb.ErrNoCredit):
		return nil, ErrNotOwned
	case err != nil:
		return nil, err
	}

	if credit.Spent {
		return nil, &ErrAlreadyPending{OutPoint: ns.Owner}
	}

	return &credit.Coin, nil
}

// builderFromItem wraps a planner item into a single-name builder.
func builderFromItem(account uint32, item *planner.Item) *funding.Builder {
	b := funding.NewBuilder(account)
	for _, unit := range item.Units {
		if unit.Input != nil {
			b.AddInput(unit.Input)
		}
		b.AddOutput(unit.Output)
	}

	return b
}
