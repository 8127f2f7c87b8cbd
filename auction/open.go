package auction

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/handshake-org/hswd/blinddb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/namestate"
	"github.com/handshake-org/hswd/rules"
)

// Open validates an OPEN for the name at the target height and emits a
// builder with the single zero-valued OPEN output. An existing auction is
// only tolerated while it is still in its opening blocks; an expired
// epoch is treated as a fresh start.
func (e *Engine) Open(name string, account, height uint32) (
	*funding.Builder, error) {

	if err := rules.CheckName(e.params, name); err != nil {
		return nil, err
	}

	nameHash := rules.HashName(name)
	if rules.IsReserved(e.params, height, name) {
		return nil, ErrNameReserved
	}
	if !rules.HasRollout(e.params, height, nameHash) {
		return nil, ErrNotRolledOut
	}

	ns, err := e.chain.GetNameState(nameHash)
	if err != nil {
		return nil, err
	}
	if ns != nil && !ns.IsExpired(height, e.params) {
		state := ns.State(height, e.params)
		if state != namestate.StateOpening {
			return nil, &ErrWrongState{
				Expected: namestate.StateOpening,
				Actual:   state,
			}
		}
		// An OPEN already confirmed this epoch; a second one would be
		// rejected by consensus.
		if ns.Height != 0 && ns.Height != height {
			return nil, ErrAlreadyOpening
		}
	}

	pending, err := e.pending.HasPendingOpen(nameHash)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrAlreadyOpening
	}

	addr, err := e.keys.ReceiveAddress(account)
	if err != nil {
		return nil, err
	}
	cov, err := covenant.NewOpen(nameHash, name)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddOutput(hnswire.NewTxOut(0, addr, cov))

	log.Debugf("Built OPEN for %q (hash %x)", name, nameHash)

	return b, nil
}

// Bid validates a BID for the name, derives and persists the blind
// commitment, and emits a builder locking up the given amount. The first
// bid of a batch reuses the account's receive address; later bids set
// freshAddr to derive distinct ones, since two bids committing to the
// same (address, value, name) would collide on the same blind.
func (e *Engine) Bid(name string, value, lockup btcutil.Amount,
	account, height uint32, freshAddr bool) (*funding.Builder, error) {

	if value > lockup {
		return nil, ErrBidExceedsLockup
	}

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	if err := e.checkState(ns, height, namestate.StateBidding); err != nil {
		return nil, err
	}

	var addr hnswire.Address
	if freshAddr {
		addr, err = e.keys.FreshReceiveAddress(account)
	} else {
		addr, err = e.keys.ReceiveAddress(account)
	}
	if err != nil {
		return nil, err
	}

	idx := rules.NonceIndex(uint64(value))
	accountPub, err := e.keys.AccountKey(account, idx)
	if err != nil {
		return nil, err
	}

	nonce := rules.CreateNonce(addr.Hash, accountPub, nameHash)
	blind := rules.CreateBlind(uint64(value), nonce)

	// The blind must survive until reveal or the lockup is lost, so it
	// is persisted before the transaction is even funded. A bid that
	// never broadcasts leaves a harmless orphan record.
	err = e.blinds.Put(blind, &blinddb.BlindValue{
		Value: value,
		Nonce: nonce,
	})
	if err != nil {
		return nil, err
	}

	cov, err := covenant.NewBid(nameHash, ns.Height, name, blind[:])
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddOutput(hnswire.NewTxOut(lockup, addr, cov))

	log.Debugf("Built BID for %q: value %v, lockup %v, blind %x",
		name, value, lockup, blind)

	return b, nil
}
