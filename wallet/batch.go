package wallet

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/handshake-org/hswd/auction"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/planner"
	"github.com/handshake-org/hswd/reqcache"
	"github.com/handshake-org/hswd/rules"
)

// ErrNothingToDo is recorded for a batch name with no applicable action.
var ErrNothingToDo = errors.New("nothing to do for this name")

// BidRequest is one bid inside a batch.
type BidRequest struct {
	// Name is the label to bid on.
	Name string

	// Value is the true bid amount, hidden by the blind.
	Value btcutil.Amount

	// Lockup is the visible amount locked by the BID output.
	Lockup btcutil.Amount

	// Key is the per-bid idempotency key. Empty falls back to the name.
	Key string
}

// subRecord derives a per-name record from a shared batch record, scoped
// to the name's own outputs.
func subRecord(rec *TxRecord, outs []ProcessedOutput) *TxRecord {
	return &TxRecord{
		TxHash:    rec.TxHash,
		Tx:        rec.Tx,
		Outputs:   outs,
		Fee:       rec.Fee,
		CreatedAt: rec.CreatedAt,
	}
}

// installByName records per-name cache entries for the names a batch
// actually served. Entries accumulate: a later batch under the same key
// extends the cached outputs, so repeated bids or reveals on one name
// keep every broadcast output replayable. Each ProcessedOutput carries
// its own transaction id; the record's Tx is the most recent broadcast.
func (w *Wallet) installByName(cache *reqcache.Cache[*TxRecord],
	rec *TxRecord, keysByName map[string][]byte) {

	for name, hash := range keysByName {
		outs := outputsForName(rec, hash)
		if len(outs) == 0 {
			continue
		}

		entry := subRecord(rec, outs)
		if prior, ok := cache.Lookup(name); ok {
			merged := make(
				[]ProcessedOutput, 0,
				len(prior.Outputs)+len(outs),
			)
			merged = append(merged, prior.Outputs...)
			merged = append(merged, outs...)
			entry.Outputs = merged
		}
		cache.Install(name, entry)
	}
}

// SendBatchOpen opens auctions for up to the output budget of names in a
// single transaction. Names that fail validation are reported per name;
// the remaining opens still broadcast.
func (w *Wallet) SendBatchOpen(ctx context.Context, names []string,
	account uint32, opts *SendOptions) (*BatchResult, error) {

	opts = normalizeOptions(opts)
	if len(names) > w.cfg.Params.MaxBatchOutputs {
		return nil, ErrTooManyNames
	}

	res := &BatchResult{}
	served := make(map[string][]byte)
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		master := funding.NewBuilder(account)
		for _, name := range names {
			b, err := w.engine.Open(name, account, height)
			if err != nil {
				res.Errors = append(res.Errors, NameError{
					Name: name,
					Err:  err,
				})

				continue
			}
			master.Outputs = append(master.Outputs, b.Outputs...)
			served[name] = rules.HashName(name)
		}
		if len(master.Outputs) == 0 {
			return planner.ErrEmptyBatch
		}

		rec, err := w.complete(ctx, master, opts, height)
		if err != nil {
			return err
		}
		res.Record = rec
		w.installByName(w.openCache, rec, served)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// SendBatchBid places up to the output budget of bids in one transaction.
// The first bid reuses the account's receive address; every later bid
// derives a fresh one so no two blinds collide.
func (w *Wallet) SendBatchBid(ctx context.Context, bids []*BidRequest,
	account uint32, opts *SendOptions) (*BatchResult, error) {

	opts = normalizeOptions(opts)
	if len(bids) > w.cfg.Params.MaxBatchOutputs {
		return nil, ErrTooManyNames
	}

	res := &BatchResult{}
	served := make(map[string][]byte)
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		master := funding.NewBuilder(account)
		for i, bid := range bids {
			b, err := w.engine.Bid(
				bid.Name, bid.Value, bid.Lockup, account,
				height, i > 0,
			)
			if err != nil {
				res.Errors = append(res.Errors, NameError{
					Name: bid.Name,
					Err:  err,
				})

				continue
			}
			master.Outputs = append(master.Outputs, b.Outputs...)
			served[nameKey(bid.Key, bid.Name)] =
				rules.HashName(bid.Name)
		}
		if len(master.Outputs) == 0 {
			return planner.ErrEmptyBatch
		}

		rec, err := w.complete(ctx, master, opts, height)
		if err != nil {
			return err
		}
		res.Record = rec
		w.installByName(w.bidCache, rec, served)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// batchFromItems packs items strictly (or partially), converts the plan
// into one builder, completes it and installs per-name cache entries.
// Rejections and build failures are reported per name.
func (w *Wallet) batchFromItems(ctx context.Context, opts *SendOptions,
	cache *reqcache.Cache[*TxRecord], res *BatchResult,
	items []*planner.Item, strict bool, account, height uint32) error {

	if len(items) == 0 {
		return planner.ErrEmptyBatch
	}

	pack := planner.CreateBatch
	if strict {
		pack = planner.CreateStrictBatch
	}
	plan, err := pack(items, w.cfg.Params.MaxBatchOutputs)
	if err != nil {
		return err
	}
	for _, rej := range plan.Rejected {
		res.Errors = append(res.Errors, NameError{
			Name: rej.Name,
			Err:  rej.Err,
		})
	}

	master := funding.NewBuilder(account)
	served := make(map[string][]byte)
	for _, item := range plan.Included {
		for _, unit := range item.Units {
			if unit.Input != nil {
				master.AddInput(unit.Input)
			}
			master.AddOutput(unit.Output)
		}
		if hash, err := item.Units[0].Output.Covenant.NameHash(); err == nil {
			served[item.Name] = hash
		}
	}

	rec, err := w.complete(ctx, master, opts, height)
	if err != nil {
		return err
	}
	res.Record = rec
	if cache != nil {
		w.installByName(cache, rec, served)
	}

	return nil
}

// SendBatchReveal reveals the wallet's bids on the given names. Packing
// is strict with the full output budget: revealing only part of a name's
// bids would change the auction outcome, so a name either fits whole or
// is rejected.
func (w *Wallet) SendBatchReveal(ctx context.Context, names []string,
	account uint32, opts *SendOptions) (*BatchResult, error) {

	opts = normalizeOptions(opts)
	if len(names) > w.cfg.Params.MaxBatchOutputs {
		return nil, ErrTooManyNames
	}

	res := &BatchResult{}
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		var items []*planner.Item
		for _, name := range names {
			item, err := w.engine.RevealItem(
				name, account, height,
			)
			if err != nil {
				res.Errors = append(res.Errors, NameError{
					Name: name,
					Err:  err,
				})

				continue
			}
			items = append(items, item)
		}

		return w.batchFromItems(
			ctx, opts, w.revealCache, res, items, true, account,
			height,
		)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// RevealAll reveals every revealable bid the wallet holds across all
// names currently in their reveal period.
func (w *Wallet) RevealAll(ctx context.Context, account uint32,
	opts *SendOptions) (*BatchResult, error) {

	opts = normalizeOptions(opts)

	res := &BatchResult{}
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		var items []*planner.Item
		grouped := w.coins.Index().CreditsByType(covenant.TypeBid)
		for hashKey := range grouped {
			item, err := w.engine.RevealItemByHash(
				[]byte(hashKey), account, height,
			)
			switch {
			// Names outside their reveal window or with nothing
			// of ours to reveal are simply not ready yet.
			case errors.Is(err, auction.ErrNoBids):
				continue
			case err != nil:
				var wrongState *auction.ErrWrongState
				if errors.As(err, &wrongState) {
					continue
				}
				res.Errors = append(res.Errors, NameError{
					Name: hex.EncodeToString(
						[]byte(hashKey),
					),
					Err: err,
				})

				continue
			}
			items = append(items, item)
		}

		return w.batchFromItems(
			ctx, opts, w.revealCache, res, items, true, account,
			height,
		)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// RedeemAll frees the lockup of every losing reveal across all closed
// auctions. Redeems are independently valid, so packing is partial: an
// overflowing name gets as many redeems as fit and keeps the rest for the
// next call.
func (w *Wallet) RedeemAll(ctx context.Context, account uint32,
	opts *SendOptions) (*BatchResult, error) {

	opts = normalizeOptions(opts)

	res := &BatchResult{}
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		var items []*planner.Item
		grouped := w.coins.Index().CreditsByType(covenant.TypeReveal)
		for hashKey := range grouped {
			item, err := w.engine.RedeemItemByHash(
				[]byte(hashKey), account, height,
			)
			switch {
			case errors.Is(err, auction.ErrNoReveals):
				continue
			case err != nil:
				var wrongState *auction.ErrWrongState
				if errors.As(err, &wrongState) {
					continue
				}
				res.Errors = append(res.Errors, NameError{
					Name: hex.EncodeToString(
						[]byte(hashKey),
					),
					Err: err,
				})

				continue
			}
			items = append(items, item)
		}

		return w.batchFromItems(
			ctx, opts, nil, res, items, false, account, height,
		)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// SendFinish settles the given names after their auctions closed: losing
// reveals are redeemed and won names are registered (with an empty
// resource), per name, strictly packed so a name settles whole or not at
// all.
func (w *Wallet) SendFinish(ctx context.Context, names []string,
	account uint32, opts *SendOptions) (*BatchResult, error) {

	opts = normalizeOptions(opts)
	if len(names) > w.cfg.Params.MaxBatchOutputs {
		return nil, ErrTooManyNames
	}

	res := &BatchResult{}
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		var items []*planner.Item
		for _, name := range names {
			item, err := w.finishItem(name, account, height)
			if err != nil {
				res.Errors = append(res.Errors, NameError{
					Name: name,
					Err:  err,
				})

				continue
			}
			items = append(items, item)
		}

		return w.batchFromItems(
			ctx, opts, w.finishCache, res, items, true, account,
			height,
		)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// finishItem assembles a name's settlement: its redeemable reveals plus,
// when the wallet won, the REGISTER paying the second price.
func (w *Wallet) finishItem(name string, account, height uint32) (
	*planner.Item, error) {

	item := &planner.Item{Name: name}

	redeem, err := w.engine.RedeemItem(name, account, height)
	switch {
	case err == nil:
		item.Units = append(item.Units, redeem.Units...)
	case errors.Is(err, auction.ErrNoReveals):
	default:
		return nil, err
	}

	b, err := w.engine.Update(name, nil, account, height)
	switch {
	case err == nil:
		// Only the epoch's first update is a settlement; a name that
		// is already registered has nothing left to finish here.
		if len(b.Outputs) == 1 && len(b.Inputs) == 1 &&
			b.Outputs[0].Covenant.Type == covenant.TypeRegister {

			item.Units = append(item.Units, planner.Unit{
				Input:  b.Inputs[0],
				Output: b.Outputs[0],
			})
		}
	case errors.Is(err, auction.ErrNotOwned):
	default:
		return nil, err
	}

	if len(item.Units) == 0 {
		return nil, ErrNothingToDo
	}

	return item, nil
}
