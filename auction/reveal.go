package auction

import (
	"encoding/hex"

	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/namestate"
	"github.com/handshake-org/hswd/planner"
)

// revealItem collects every revealable bid the wallet holds on the name
// into a planner item. Each unit spends the BID outpoint and emits a
// REVEAL of the true bid value to the same address; the lockup surplus
// becomes fee or change.
func (e *Engine) revealItem(nameHash []byte, ns *namestate.NameState,
	account, height uint32) (*planner.Item, error) {

	err := e.checkState(ns, height, namestate.StateReveal)
	if err != nil {
		return nil, err
	}

	credits := e.index.CreditsByName(covenant.TypeBid, nameHash)
	item := &planner.Item{Name: hex.EncodeToString(nameHash)}
	for _, credit := range credits {
		coin := credit.Coin
		if coin.Account != account || credit.Spent {
			continue
		}

		// Bids from a previous epoch must not be replayed into this
		// one; only bids confirmed at or after the OPEN count.
		if !coin.Confirmed() || coin.Height < ns.Height {
			continue
		}

		bid, err := covenant.ParseBid(coin.Covenant)
		if err != nil {
			return nil, err
		}
		item.Name = bid.RawName

		bv, err := e.blinds.Get(bid.Blind)
		if err != nil {
			return nil, err
		}

		cov, err := covenant.NewReveal(
			nameHash, ns.Height, bv.Nonce[:],
		)
		if err != nil {
			return nil, err
		}

		coinCopy := coin
		item.Units = append(item.Units, planner.Unit{
			Input: &coinCopy,
			Output: hnswire.NewTxOut(
				bv.Value, coin.Address, cov,
			),
		})
	}

	if len(item.Units) == 0 {
		return nil, ErrNoBids
	}

	return item, nil
}

// RevealItem resolves the name and returns its revealable bids as a
// planner item, for batch packing.
func (e *Engine) RevealItem(name string, account, height uint32) (
	*planner.Item, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}

	return e.revealItem(nameHash, ns, account, height)
}

// RevealItemByHash is RevealItem for names only known by hash, as
// enumerated by the reveal-all flow.
func (e *Engine) RevealItemByHash(nameHash []byte, account,
	height uint32) (*planner.Item, error) {

	ns, err := e.chain.GetNameState(nameHash)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, ErrNameNotFound
	}

	return e.revealItem(nameHash, ns, account, height)
}

// Reveal emits a single-name builder spending every revealable bid on
// the name.
func (e *Engine) Reveal(name string, account, height uint32) (
	*funding.Builder, error) {

	item, err := e.RevealItem(name, account, height)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built REVEAL for %q: %d bids", name, len(item.Units))

	return builderFromItem(account, item), nil
}

// redeemItem collects every losing reveal the wallet holds on the name.
// The winning reveal is the owner outpoint and is excluded; it is
// consumed by REGISTER instead.
func (e *Engine) redeemItem(nameHash []byte, ns *namestate.NameState,
	account, height uint32) (*planner.Item, error) {

	if ns.IsExpired(height, e.params) {
		return nil, ErrExpiredName
	}
	err := e.checkState(ns, height, namestate.StateClosed)
	if err != nil {
		return nil, err
	}

	credits := e.index.CreditsByName(covenant.TypeReveal, nameHash)
	item := &planner.Item{Name: hex.EncodeToString(nameHash)}
	if ns.Name != "" {
		item.Name = ns.Name
	}
	for _, credit := range credits {
		coin := credit.Coin
		if coin.Account != account || credit.Spent {
			continue
		}
		if coin.Outpoint == ns.Owner {
			continue
		}
		if !coin.Confirmed() || coin.Height < ns.Height {
			continue
		}

		cov, err := covenant.NewRedeem(nameHash, ns.Height)
		if err != nil {
			return nil, err
		}

		coinCopy := coin
		item.Units = append(item.Units, planner.Unit{
			Input: &coinCopy,
			Output: hnswire.NewTxOut(
				coin.Value, coin.Address, cov,
			),
		})
	}

	if len(item.Units) == 0 {
		return nil, ErrNoReveals
	}

	return item, nil
}

// RedeemItem resolves the name and returns its losing reveals as a
// planner item, for batch packing.
func (e *Engine) RedeemItem(name string, account, height uint32) (
	*planner.Item, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}

	return e.redeemItem(nameHash, ns, account, height)
}

// RedeemItemByHash is RedeemItem for names only known by hash.
func (e *Engine) RedeemItemByHash(nameHash []byte, account,
	height uint32) (*planner.Item, error) {

	ns, err := e.chain.GetNameState(nameHash)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, ErrNameNotFound
	}

	return e.redeemItem(nameHash, ns, account, height)
}

// Redeem emits a single-name builder freeing every losing lockup on the
// name.
func (e *Engine) Redeem(name string, account, height uint32) (
	*funding.Builder, error) {

	item, err := e.RedeemItem(name, account, height)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built REDEEM for %q: %d reveals", name, len(item.Units))

	return builderFromItem(account, item), nil
}
