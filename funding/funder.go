package funding

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/hnsparams"
	"github.com/handshake-org/hswd/hnswire"
)

const (
	// inputBaseSize is the witnessless serialized size of one input:
	// a 36 byte outpoint plus a 4 byte sequence.
	inputBaseSize = 36 + 4

	// inputWitnessSize is the estimated witness size of a key-spend
	// input: item count, a 65 byte signature and a 33 byte compressed
	// public key, each length-prefixed.
	inputWitnessSize = 1 + 1 + 65 + 1 + 33

	// inputSigops is the sigop cost accounted per key-spend input.
	inputSigops = 1

	// changeOutputSize is the estimated serialized size of a change
	// output: value, a v0 20 byte address and an empty covenant.
	changeOutputSize = 8 + (1 + 1 + 20) + 2
)

// FeeRate is a fee rate in subunits per kilo-virtualbyte.
type FeeRate btcutil.Amount

// FeeForVSize returns the absolute fee for a transaction of the given
// virtual size, floored at the minimum relay fee for one vbyte.
func (r FeeRate) FeeForVSize(vsize int64) btcutil.Amount {
	fee := btcutil.Amount(r) * btcutil.Amount(vsize) / 1000
	if fee < 1 {
		fee = 1
	}

	return fee
}

// ChangeSource supplies the next change address for an account. Address
// derivation itself lives with the key collaborator.
type ChangeSource interface {
	ChangeAddress(account uint32) (hnswire.Address, error)
}

// CoinLeaser soft-locks outpoints for the lifetime of a producer. The
// wallet's lock manager satisfies this interface.
type CoinLeaser interface {
	Lease(op wire.OutPoint) error
	Release(ops ...wire.OutPoint)
	IsLeased(op wire.OutPoint) bool
}

// Options tunes a single funding call.
type Options struct {
	// Rate is the target fee rate. Ignored when HardFee is set.
	Rate FeeRate

	// HardFee overrides estimation with a fixed absolute fee.
	HardFee fn.Option[btcutil.Amount]

	// Policy selects the coin arrangement strategy. Empty selects age.
	Policy SelectionPolicy

	// Height is the height the transaction targets (chain height + 1),
	// used for maturity checks and the locktime sanity check.
	Height uint32
}

// FundedTx is the product of a successful funding call: a signed-ready
// transaction plus the bookkeeping the dispatcher needs to sign it and to
// mark its inputs pending.
type FundedTx struct {
	// Tx is the assembled transaction in final member order.
	Tx *hnswire.MsgTx

	// Coins maps each input outpoint to the coin it spends, for witness
	// generation.
	Coins map[wire.OutPoint]*coindb.Coin

	// Fee is the absolute fee paid.
	Fee btcutil.Amount

	// ChangeIndex is the index of the change output after sorting, or
	// -1 when no change was added.
	ChangeIndex int

	// SelectedOutPoints are the outpoints selection leased; the caller
	// releases them once the transaction is persisted or abandoned.
	SelectedOutPoints []wire.OutPoint
}

// Funder performs coin selection and fee calculation over builders.
type Funder struct {
	params *hnsparams.Params
	index  *coindb.CoinIndex
	change ChangeSource
	leaser CoinLeaser
}

// New builds a funder over the wallet's coin index.
func New(params *hnsparams.Params, index *coindb.CoinIndex,
	change ChangeSource, leaser CoinLeaser) *Funder {

	return &Funder{
		params: params,
		index:  index,
		change: change,
		leaser: leaser,
	}
}

// dustThreshold returns the minimum value for an output of the given
// serialized size. An output is dust when relaying it plus the input
// that would later spend it costs more than a third of its value, so the
// threshold is three times the relay fee for that combined size.
func (f *Funder) dustThreshold(outSize int) btcutil.Amount {
	spendSize := outSize + inputBaseSize + inputWitnessSize

	return 3 * txrules.FeeForSerializeSize(
		f.params.MinRelayFee, spendSize,
	)
}

// estimateVSize estimates the virtual size of the builder's transaction
// with numInputs total inputs and optionally a change output.
func (f *Funder) estimateVSize(b *Builder, numInputs int,
	withChange bool) int64 {

	base := 4 + 4 + 2 + 2 // version, locktime, generous count varints
	base += numInputs * inputBaseSize
	for _, out := range b.Outputs {
		base += 8 + out.Address.SerializeSize() +
			out.Covenant.SerializeSize()
	}
	if withChange {
		base += changeOutputSize
	}

	weight := int64(base)*4 + int64(numInputs*inputWitnessSize)

	return (weight + 3) / 4
}

// candidates returns the spendable credits for the builder's account:
// unspent, unleased plain outputs that are mature at the target height,
// arranged by policy.
func (f *Funder) candidates(b *Builder, opts *Options) ([]*coindb.Credit,
	error) {

	skip := make(map[wire.OutPoint]struct{}, len(b.Inputs))
	for _, in := range b.Inputs {
		skip[in.Outpoint] = struct{}{}
	}

	all := f.index.CreditsForAccount(b.Account)
	eligible := make([]*coindb.Credit, 0, len(all))
	for _, credit := range all {
		coin := &credit.Coin
		if _, ok := skip[coin.Outpoint]; ok {
			continue
		}
		if credit.Spent {
			continue
		}
		if f.leaser.IsLeased(coin.Outpoint) {
			continue
		}

		// Naming outputs are only spendable through their covenant
		// action, never as plain funds.
		if coin.Covenant != nil &&
			coin.Covenant.Type != covenant.TypeNone {

			continue
		}

		if coin.Coinbase &&
			opts.Height < coin.Height+f.params.CoinbaseMaturity {

			continue
		}

		eligible = append(eligible, credit)
	}

	policy := opts.Policy
	if policy == "" {
		policy = PolicyAge
	}

	return arrangeCredits(eligible, policy)
}

// Fund selects coins and fees for the builder and assembles the final
// transaction. On success the selected outpoints are leased; the caller
// must release them via FundedTx.SelectedOutPoints once done.
func (f *Funder) Fund(b *Builder, opts Options) (*FundedTx, error) {
	if len(b.Outputs) == 0 {
		return nil, ErrNoOutputs
	}

	for _, out := range b.Outputs {
		if out.Address.IsNull() {
			return nil, ErrNullAddress
		}
	}

	if b.ExactInputs {
		return f.fundExact(b, opts)
	}

	candidates, err := f.candidates(b, &opts)
	if err != nil {
		return nil, err
	}

	var available btcutil.Amount
	for _, credit := range candidates {
		available += credit.Coin.Value
	}

	target := b.coveredValue()
	subtractFee := b.SubtractFeeOutput >= 0

	var (
		selected []*coindb.Credit
		fee      btcutil.Amount
	)
	for {
		numInputs := len(b.Inputs) + len(selected)

		switch {
		case opts.HardFee.IsSome():
			fee = opts.HardFee.UnwrapOr(0)

		case subtractFee:
			// The fee comes out of the named output, so
			// selection only needs to cover the output total.
			fee = 0

		default:
			vsize := f.estimateVSize(b, numInputs, true)
			fee = opts.Rate.FeeForVSize(vsize)
		}

		var selectedValue btcutil.Amount
		for _, credit := range selected {
			selectedValue += credit.Coin.Value
		}

		need := target + fee
		if b.InputValue()+selectedValue >= need {
			break
		}

		if len(selected) == len(candidates) {
			return nil, &ErrInsufficientFunds{
				AmountNeeded:    need,
				AmountAvailable: available + b.InputValue(),
			}
		}

		selected = append(selected, candidates[len(selected)])
	}

	// The all policy consumes every candidate regardless of target. The
	// fee must then cover the enlarged transaction, not the smaller
	// selection the loop stopped at.
	if opts.Policy == PolicyAll {
		selected = candidates
		if !opts.HardFee.IsSome() && !subtractFee {
			vsize := f.estimateVSize(
				b, len(b.Inputs)+len(selected), true,
			)
			fee = opts.Rate.FeeForVSize(vsize)
		}
	}

	if subtractFee {
		vsize := f.estimateVSize(
			b, len(b.Inputs)+len(selected), false,
		)
		fee = opts.Rate.FeeForVSize(vsize)
		if opts.HardFee.IsSome() {
			fee = opts.HardFee.UnwrapOr(fee)
		}
	}

	return f.assemble(b, opts, selected, fee, subtractFee)
}

// fundExact handles builders that must spend exactly one pre-added
// input. The fee is whatever surplus the input leaves over the outputs.
// Pre-signed reveals depend on the transaction never gaining a second
// input.
func (f *Funder) fundExact(b *Builder, opts Options) (*FundedTx, error) {
	if len(b.Inputs) != 1 {
		return nil, ErrExactInputViolated
	}

	surplus := b.InputValue() - b.OutputValue()
	if surplus < 0 {
		return nil, ErrExactInputViolated
	}

	return f.assemble(b, opts, nil, surplus, false)
}

// assemble builds the final transaction from the builder, the selected
// credits and the agreed fee, then runs the sanity and context checks.
func (f *Funder) assemble(b *Builder, opts Options,
	selected []*coindb.Credit, fee btcutil.Amount,
	subtractFee bool) (*FundedTx, error) {

	// Lease the selection before anything else so a concurrent producer
	// cannot pick the same outpoints. Released on every error path.
	var leased []wire.OutPoint
	releaseOnErr := func() {
		f.leaser.Release(leased...)
	}
	for _, credit := range selected {
		op := credit.Coin.Outpoint
		if err := f.leaser.Lease(op); err != nil {
			releaseOnErr()

			return nil, err
		}
		leased = append(leased, op)
	}

	tx := hnswire.NewMsgTx()
	tx.LockTime = b.LockTime

	coins := make(map[wire.OutPoint]*coindb.Coin)
	var (
		inputValue btcutil.Amount
		ancestors  int
	)
	addInput := func(coin *coindb.Coin) {
		tx.AddTxIn(hnswire.NewTxIn(coin.Outpoint))
		coins[coin.Outpoint] = coin
		inputValue += coin.Value
		if !coin.Confirmed() {
			ancestors++
		}
	}
	for _, coin := range b.Inputs {
		addInput(coin)
	}
	for _, credit := range selected {
		coin := credit.Coin
		addInput(&coin)
	}

	outputs := make([]*hnswire.TxOut, len(b.Outputs))
	for i, out := range b.Outputs {
		outputs[i] = out.Clone()
	}

	if subtractFee {
		out := outputs[b.SubtractFeeOutput]
		size := 8 + out.Address.SerializeSize() +
			out.Covenant.SerializeSize()
		if out.Value-fee < f.dustThreshold(size) {
			releaseOnErr()

			return nil, ErrDustOutput
		}
		out.Value -= fee
	}

	var outputValue btcutil.Amount
	for _, out := range outputs {
		outputValue += out.Value
		tx.AddTxOut(out)
	}

	// Whatever the inputs leave beyond outputs and fee becomes change,
	// unless it would itself be dust, in which case it is burned to
	// fee.
	changeIndex := -1
	change := inputValue - outputValue - fee
	if change < 0 {
		releaseOnErr()

		return nil, &ErrInsufficientFunds{
			AmountNeeded:    outputValue + fee,
			AmountAvailable: inputValue,
		}
	}
	var changeOut *hnswire.TxOut
	if change >= f.dustThreshold(changeOutputSize) {
		addr, err := f.change.ChangeAddress(b.Account)
		if err != nil {
			releaseOnErr()

			return nil, err
		}
		changeOut = hnswire.NewTxOut(change, addr, nil)
		tx.AddTxOut(changeOut)
	} else {
		fee += change
	}

	if !b.NoSort {
		tx.SortMembers()
	}
	if changeOut != nil {
		for i, out := range tx.TxOut {
			if out == changeOut {
				changeIndex = i

				break
			}
		}
	}

	if err := f.check(tx, outputs, fee, ancestors, &opts); err != nil {
		releaseOnErr()

		return nil, err
	}

	log.Debugf("Funded tx %v: %d inputs, %d outputs, fee %v",
		tx.TxHash(), len(tx.TxIn), len(tx.TxOut), fee)

	return &FundedTx{
		Tx:                tx,
		Coins:             coins,
		Fee:               fee,
		ChangeIndex:       changeIndex,
		SelectedOutPoints: leased,
	}, nil
}

// check runs the post-funding invariants: fee ceiling, weight, sigops,
// ancestor bound, dust, and the context check against the target height.
func (f *Funder) check(tx *hnswire.MsgTx, outputs []*hnswire.TxOut,
	fee btcutil.Amount, ancestors int, opts *Options) error {

	if fee > f.params.MaxFee {
		return ErrFeeExceedsMax
	}

	// Weight is checked against the worst case including estimated
	// witnesses, since funding runs pre-signature.
	weight := tx.Weight() +
		int64(len(tx.TxIn)*inputWitnessSize)
	if weight > f.params.MaxTxWeight {
		return ErrWeightExceeded
	}

	if len(tx.TxIn)*inputSigops > f.params.MaxTxSigops {
		return ErrSigopsExceeded
	}

	if ancestors > f.params.MaxAncestors {
		return ErrTooManyAncestors
	}

	for _, out := range tx.TxOut {
		if dustExempt(out) {
			continue
		}
		size := 8 + out.Address.SerializeSize() +
			out.Covenant.SerializeSize()
		if out.Value < f.dustThreshold(size) {
			return ErrDustOutput
		}
	}

	// Context check: the transaction must be valid in the next block.
	if tx.LockTime > opts.Height {
		return ErrLockTimeConflict
	}

	return nil
}
