// Package wallet wires the naming engine, coin selection, idempotency
// caches and lock discipline into the caller-facing transaction
// dispatcher. Every mutating entry point serializes through the wallet's
// fund and write locks, consults its action cache when an idempotency key
// is supplied, and only installs cache entries after broadcast succeeds.
package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/handshake-org/hswd/auction"
	"github.com/handshake-org/hswd/blinddb"
	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnsparams"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/namestate"
	"github.com/handshake-org/hswd/reqcache"
	"github.com/handshake-org/hswd/rules"
	"github.com/handshake-org/hswd/wlock"
)

// Action cache names, also the identifiers accepted by ClearCache.
const (
	CacheOpen     = "open"
	CacheBid      = "bid"
	CacheReveal   = "reveal"
	CacheUpdate   = "update"
	CacheTransfer = "transfer"
	CacheFinalize = "finalize"
	CacheFinish   = "finish"
	CacheSendMany = "sendmany"
)

// defaultFeeTarget is the confirmation target used when the caller does
// not supply a fee rate.
const defaultFeeTarget uint32 = 2

// Config carries the wallet's collaborators. All fields are required
// except FeeTarget and Clock.
type Config struct {
	// Params are the network parameters.
	Params *hnsparams.Params

	// DB is the wallet's database; credits and blinds live in their own
	// namespaces inside it.
	DB walletdb.DB

	// Chain is the consensus collaborator.
	Chain Chain

	// Signer produces witnesses.
	Signer Signer

	// Keys derives addresses and account keys.
	Keys Keychain

	// Clock supplies time, mockable in tests.
	Clock clock.Clock

	// FeeTarget is the confirmation target for fee estimation. Zero
	// selects the default.
	FeeTarget uint32
}

// Wallet is the transaction dispatcher for one wallet.
type Wallet struct {
	cfg *Config

	coins  *coindb.Store
	blinds *blinddb.Store
	engine *auction.Engine
	funder *funding.Funder
	locker *wlock.Locker

	cacheMgr *reqcache.Manager

	openCache     *reqcache.Cache[*TxRecord]
	bidCache      *reqcache.Cache[*TxRecord]
	revealCache   *reqcache.Cache[*TxRecord]
	updateCache   *reqcache.Cache[*TxRecord]
	transferCache *reqcache.Cache[*TxRecord]
	finalizeCache *reqcache.Cache[*TxRecord]
	finishCache   *reqcache.Cache[*TxRecord]
	sendManyCache *reqcache.Cache[*TxRecord]
}

// New opens the wallet's stores and assembles the dispatcher.
func New(cfg *Config) (*Wallet, error) {
	coins, err := coindb.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	blinds, err := blinddb.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	if cfg.FeeTarget == 0 {
		cfg.FeeTarget = defaultFeeTarget
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	locker := wlock.New()
	w := &Wallet{
		cfg:    cfg,
		coins:  coins,
		blinds: blinds,
		locker: locker,
		funder: funding.New(
			cfg.Params, coins.Index(), cfg.Keys, locker,
		),
		cacheMgr: reqcache.NewManager(),
	}
	w.engine = auction.New(
		cfg.Params, coins.Index(), blinds, cfg.Chain, cfg.Keys, w,
	)

	register := func(name string) *reqcache.Cache[*TxRecord] {
		c := reqcache.New[*TxRecord](name, reqcache.DefaultCapacity)
		w.cacheMgr.Register(name, c)

		return c
	}
	w.openCache = register(CacheOpen)
	w.bidCache = register(CacheBid)
	w.revealCache = register(CacheReveal)
	w.updateCache = register(CacheUpdate)
	w.transferCache = register(CacheTransfer)
	w.finalizeCache = register(CacheFinalize)
	w.finishCache = register(CacheFinish)
	w.sendManyCache = register(CacheSendMany)

	log.Infof("Wallet open: %d credits indexed", coins.Index().Len())

	return w, nil
}

// Coins exposes the credit store, mainly for the shell and tests.
func (w *Wallet) Coins() *coindb.Store {
	return w.coins
}

// Locker exposes the wallet's lock manager.
func (w *Wallet) Locker() *wlock.Locker {
	return w.locker
}

// HasPendingOpen reports whether an unconfirmed OPEN output for the name
// exists among the wallet's credits. Satisfies the engine's pending view
// and backs the double-open rejection.
func (w *Wallet) HasPendingOpen(nameHash []byte) (bool, error) {
	credits := w.coins.Index().CreditsByName(covenant.TypeOpen, nameHash)
	for _, credit := range credits {
		if !credit.Coin.Confirmed() {
			return true, nil
		}
	}

	return false, nil
}

// NameStatus resolves a name to its lifecycle phase as the chain sees
// it.
func (w *Wallet) NameStatus(name string) (namestate.State, error) {
	if !rules.IsNameValid(w.cfg.Params, name) {
		return 0, rules.ErrInvalidName
	}

	return w.cfg.Chain.GetNameStatus(rules.HashName(name))
}

// SendClaim forwards a reserved-name claim proof to the network. The
// proof itself is assembled by the full node from DNSSEC material; the
// wallet only relays it.
func (w *Wallet) SendClaim(ctx context.Context, claim []byte) error {
	select {
	case <-ctx.Done():
		return ErrAborted
	default:
	}

	return w.cfg.Chain.SendClaim(claim)
}

// ClearCache drops every entry of the named action cache.
func (w *Wallet) ClearCache(name string) error {
	return w.cacheMgr.ClearCache(name)
}

// ClearCacheKey drops a single entry of the named action cache.
func (w *Wallet) ClearCacheKey(name, key string) error {
	return w.cacheMgr.ClearCacheKey(name, key)
}

// CacheNames lists the registered action caches.
func (w *Wallet) CacheNames() []string {
	return w.cacheMgr.Names()
}

// Balance is the per-account fund summary.
type Balance struct {
	// Confirmed is the spendable confirmed amount.
	Confirmed btcutil.Amount

	// Unconfirmed is the amount in unconfirmed plain outputs.
	Unconfirmed btcutil.Amount

	// Lockup is the amount held inside naming covenants (bids, reveals
	// and owned names), unavailable to plain spends.
	Lockup btcutil.Amount
}

// Balance sums the account's credits by spendability.
func (w *Wallet) Balance(account uint32) Balance {
	var bal Balance
	for _, credit := range w.coins.Index().CreditsForAccount(account) {
		coin := credit.Coin
		if credit.Spent {
			continue
		}

		switch {
		case coin.Covenant != nil &&
			coin.Covenant.Type != covenant.TypeNone:

			bal.Lockup += coin.Value

		case coin.Confirmed():
			bal.Confirmed += coin.Value

		default:
			bal.Unconfirmed += coin.Value
		}
	}

	return bal
}

// ProcessMinedTx reconciles credits with a transaction mined at the given
// height: inputs we tracked are removed, and every output paying one of
// our addresses is installed (or confirmed) as a credit. Mutations go
// through a single cached batch so a database failure leaves the index
// untouched.
func (w *Wallet) ProcessMinedTx(tx *hnswire.MsgTx, height uint32) error {
	return w.locker.WithWriteLock(func() error {
		batch := w.coins.Batch()
		index := w.coins.Index()

		for _, in := range tx.TxIn {
			if index.HasCoin(in.PrevOutPoint) {
				batch.DelCredit(in.PrevOutPoint)
			}
		}

		txid := tx.TxHash()
		for i, out := range tx.TxOut {
			account, ok := w.cfg.Keys.LookupAddress(out.Address)
			if !ok {
				continue
			}

			batch.PutCredit(&coindb.Credit{
				Coin: coindb.Coin{
					Outpoint: wire.OutPoint{
						Hash:  txid,
						Index: uint32(i),
					},
					Value:    out.Value,
					Address:  out.Address.Clone(),
					Covenant: out.Covenant.Clone(),
					Height:   height,
					Account:  account,
				},
				Own: true,
			})
		}

		if batch.Len() == 0 {
			return nil
		}

		log.Debugf("Processing mined tx %v at height %d: %d credit "+
			"ops", txid, height, batch.Len())

		return batch.Write(nil)
	})
}
