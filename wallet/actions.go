package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/reqcache"
)

// cached runs producer through an action cache, translating the cache's
// provenance flag into a Result.
func cached(cache *reqcache.Cache[*TxRecord], key string,
	producer func() (*TxRecord, error)) (*Result, error) {

	rec, fromCache, err := cache.WithCache(key, producer)
	if err != nil {
		return nil, err
	}

	return &Result{Record: rec, FromCache: fromCache}, nil
}

// SendOpen opens an auction for the name.
func (w *Wallet) SendOpen(ctx context.Context, name string, account uint32,
	opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	return cached(w.openCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				return w.engine.Open(name, account, height)
			})
	})
}

// SendBid places a blinded bid on the name, locking up the given amount.
func (w *Wallet) SendBid(ctx context.Context, name string, value,
	lockup btcutil.Amount, account uint32, opts *SendOptions) (*Result,
	error) {

	opts = normalizeOptions(opts)

	return cached(w.bidCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				return w.engine.Bid(
					name, value, lockup, account, height,
					false,
				)
			})
	})
}

// SendReveal reveals every revealable bid the wallet holds on the name.
func (w *Wallet) SendReveal(ctx context.Context, name string,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	return cached(w.revealCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				return w.engine.Reveal(name, account, height)
			})
	})
}

// SendRedeem frees the lockup of every losing reveal on the name. Redeems
// carry no idempotency cache: replaying one simply finds nothing left to
// redeem.
func (w *Wallet) SendRedeem(ctx context.Context, name string,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	rec, err := w.produce(ctx, opts,
		func(height uint32) (*funding.Builder, error) {
			return w.engine.Redeem(name, account, height)
		})
	if err != nil {
		return nil, err
	}

	return &Result{Record: rec}, nil
}

// SendUpdate publishes a new resource for the name, registering it first
// if the auction was just won.
func (w *Wallet) SendUpdate(ctx context.Context, name string,
	resource []byte, account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	return cached(w.updateCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				return w.engine.Update(
					name, resource, account, height,
				)
			})
	})
}

// SendRenew extends the name's validity window.
func (w *Wallet) SendRenew(ctx context.Context, name string,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	rec, err := w.produce(ctx, opts,
		func(height uint32) (*funding.Builder, error) {
			return w.engine.Renew(name, account, height)
		})
	if err != nil {
		return nil, err
	}

	return &Result{Record: rec}, nil
}

// SendTransfer starts moving the name to the target address.
func (w *Wallet) SendTransfer(ctx context.Context, name string,
	target hnswire.Address, account uint32, opts *SendOptions) (*Result,
	error) {

	opts = normalizeOptions(opts)

	return cached(w.transferCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				return w.engine.Transfer(
					name, target, account, height,
				)
			})
	})
}

// SendCancel reverts a pending transfer.
func (w *Wallet) SendCancel(ctx context.Context, name string,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	rec, err := w.produce(ctx, opts,
		func(height uint32) (*funding.Builder, error) {
			return w.engine.Cancel(name, account, height)
		})
	if err != nil {
		return nil, err
	}

	return &Result{Record: rec}, nil
}

// SendFinalize completes a transfer once the lockup elapsed.
func (w *Wallet) SendFinalize(ctx context.Context, name string,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	return cached(w.finalizeCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				return w.engine.Finalize(
					name, account, height,
				)
			})
	})
}

// SendRevoke burns the name for the remainder of the epoch.
func (w *Wallet) SendRevoke(ctx context.Context, name string,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)

	rec, err := w.produce(ctx, opts,
		func(height uint32) (*funding.Builder, error) {
			return w.engine.Revoke(name, account, height)
		})
	if err != nil {
		return nil, err
	}

	return &Result{Record: rec}, nil
}

// SendMany pays arbitrary outputs from the account in one transaction.
func (w *Wallet) SendMany(ctx context.Context, outputs []*hnswire.TxOut,
	account uint32, opts *SendOptions) (*Result, error) {

	opts = normalizeOptions(opts)
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}

	return cached(w.sendManyCache, opts.Key, func() (*TxRecord, error) {
		return w.produce(ctx, opts,
			func(height uint32) (*funding.Builder, error) {
				b := funding.NewBuilder(account)
				for _, out := range outputs {
					b.AddOutput(out.Clone())
				}

				return b, nil
			})
	})
}
