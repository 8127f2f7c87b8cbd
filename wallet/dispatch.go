package wallet

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnswire"
)

// SendOptions tunes a dispatcher call. The zero value asks for estimated
// fees, the default selection policy and no idempotency.
type SendOptions struct {
	// Key is the caller-supplied idempotency key. Empty disables the
	// action cache for this call.
	Key string

	// FeeRate overrides fee estimation. Zero means estimate.
	FeeRate funding.FeeRate

	// HardFee overrides the fee entirely with a fixed amount.
	HardFee fn.Option[btcutil.Amount]

	// Policy selects the coin arrangement strategy.
	Policy funding.SelectionPolicy
}

// normalizeOptions returns a non-nil options struct.
func normalizeOptions(opts *SendOptions) *SendOptions {
	if opts == nil {
		return &SendOptions{}
	}

	return opts
}

// ProcessedOutput identifies one covenant output of a broadcast
// transaction, the unit cached for idempotent replay.
type ProcessedOutput struct {
	// TxHash is the transaction id.
	TxHash chainhash.Hash

	// Index is the output index after canonical sorting.
	Index uint32

	// Type is the covenant type the output carries.
	Type covenant.Type
}

// TxRecord is the completed result of a dispatcher call: the broadcast
// transaction plus the covenant outputs it produced. Records are what the
// idempotency caches store, so a replayed request answers with the same
// transaction instead of building a new one.
type TxRecord struct {
	// TxHash is the broadcast transaction's id.
	TxHash chainhash.Hash

	// Tx is the broadcast transaction.
	Tx *hnswire.MsgTx

	// Outputs are the covenant outputs, in output order.
	Outputs []ProcessedOutput

	// Fee is the absolute fee paid.
	Fee btcutil.Amount

	// CreatedAt is when the transaction was broadcast.
	CreatedAt time.Time
}

// Result wraps a record with its cache provenance.
type Result struct {
	Record *TxRecord

	// FromCache is true when the record was answered from the action
	// cache (or shared with a concurrent caller) rather than built by
	// this call.
	FromCache bool
}

// NameError is a per-name failure inside a batch response.
type NameError struct {
	Name string
	Err  error
}

// BatchResult is the outcome of a batch entry point: the (possibly
// smaller) broadcast transaction plus per-name failures. Record is nil
// only when every name failed, in which case the call itself errors.
type BatchResult struct {
	Record    *TxRecord
	Errors    []NameError
	FromCache bool
}

// targetHeight returns the height the next transaction targets.
func (w *Wallet) targetHeight() (uint32, error) {
	tip, err := w.cfg.Chain.Height()
	if err != nil {
		return 0, err
	}

	return tip + 1, nil
}

// feeRate resolves the effective fee rate for a call.
func (w *Wallet) feeRate(opts *SendOptions) (funding.FeeRate, error) {
	if opts.FeeRate != 0 || opts.HardFee.IsSome() {
		return opts.FeeRate, nil
	}

	return w.cfg.Chain.EstimateFee(w.cfg.FeeTarget)
}

// complete drives a builder through funding, signing, the abort check,
// broadcast and credit bookkeeping. Callers hold the fund and write
// locks. Leased outpoints are released on every path: on failure they
// return to the pool, on success the spent markers written by recordTx
// take over.
func (w *Wallet) complete(ctx context.Context, b *funding.Builder,
	opts *SendOptions, height uint32) (*TxRecord, error) {

	rate, err := w.feeRate(opts)
	if err != nil {
		return nil, err
	}

	ftx, err := w.funder.Fund(b, funding.Options{
		Rate:    rate,
		HardFee: opts.HardFee,
		Policy:  opts.Policy,
		Height:  height,
	})
	if err != nil {
		return nil, err
	}
	defer w.locker.Release(ftx.SelectedOutPoints...)

	if err := w.cfg.Signer.SignTx(ftx.Tx, ftx.Coins); err != nil {
		return nil, err
	}

	// Abort check runs immediately before broadcast: a cancelled caller
	// must observe neither a chain mutation nor a cache entry.
	select {
	case <-ctx.Done():
		return nil, ErrAborted
	default:
	}

	if err := w.cfg.Chain.Send(ftx.Tx); err != nil {
		return nil, err
	}

	if err := w.recordTx(ftx); err != nil {
		// The transaction is on the network but local bookkeeping
		// failed; credits resync when the transaction confirms.
		log.Errorf("Failed to record broadcast tx %v: %v",
			ftx.Tx.TxHash(), err)
	}

	record := &TxRecord{
		TxHash:    ftx.Tx.TxHash(),
		Tx:        ftx.Tx,
		Fee:       ftx.Fee,
		CreatedAt: w.cfg.Clock.Now(),
	}
	for i, out := range ftx.Tx.TxOut {
		if out.Covenant.Type == covenant.TypeNone {
			continue
		}
		record.Outputs = append(record.Outputs, ProcessedOutput{
			TxHash: record.TxHash,
			Index:  uint32(i),
			Type:   out.Covenant.Type,
		})
	}

	log.Infof("Broadcast tx %v: fee %v, %d covenant outputs",
		record.TxHash, record.Fee, len(record.Outputs))

	return record, nil
}

// recordTx commits the wallet-side effects of a broadcast transaction in
// one cached batch: every spent input is marked pending and every output
// paying one of our addresses becomes an unconfirmed own credit.
func (w *Wallet) recordTx(ftx *funding.FundedTx) error {
	batch := w.coins.Batch()

	for op := range ftx.Coins {
		if err := batch.SpendCredit(op); err != nil {
			return err
		}
	}

	txid := ftx.Tx.TxHash()
	for i, out := range ftx.Tx.TxOut {
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
				Account:  account,
			},
			Spent: false,
			Own:   true,
		})
	}

	return batch.Write(nil)
}

// produce runs build and complete under the wallet's fund and write
// locks, resolving the target height once for both.
func (w *Wallet) produce(ctx context.Context, opts *SendOptions,
	build func(height uint32) (*funding.Builder, error)) (*TxRecord,
	error) {

	var rec *TxRecord
	err := w.locker.WithFundAndWriteLock(func() error {
		height, err := w.targetHeight()
		if err != nil {
			return err
		}

		b, err := build(height)
		if err != nil {
			return err
		}

		rec, err = w.complete(ctx, b, opts, height)

		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// outputsForName filters a record's outputs to those whose covenant names
// the given hash, for per-name cache installation after a batch.
func outputsForName(record *TxRecord,
	nameHash []byte) []ProcessedOutput {

	var outs []ProcessedOutput
	for _, po := range record.Outputs {
		cov := record.Tx.TxOut[po.Index].Covenant
		hash, err := cov.NameHash()
		if err != nil {
			continue
		}
		if string(hash) == string(nameHash) {
			outs = append(outs, po)
		}
	}

	return outs
}

// nameKey is the cache key for per-name batch entries: the caller's key
// when given, the name otherwise.
func nameKey(key, name string) string {
	if key != "" {
		return key
	}

	return name
}
