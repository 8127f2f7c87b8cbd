package funding

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/hnswire"
)

// Builder is an unfunded transaction: the outputs (and any pre-added
// inputs) a name action demands, before coin selection supplies the
// funding. The name engine emits builders; the funder consumes them.
type Builder struct {
	// Outputs are the covenant outputs the action requires.
	Outputs []*hnswire.TxOut

	// Inputs are coins the action itself must spend (e.g. the BID
	// outpoint of a REVEAL). They are not subject to selection.
	Inputs []*coindb.Coin

	// Account scopes coin selection and the change address.
	Account uint32

	// LockTime is applied to the final transaction.
	LockTime uint32

	// NoSort disables the canonical BIP69-style member ordering.
	NoSort bool

	// ExactInputs forbids adding funding inputs: the transaction must
	// spend the pre-added inputs and nothing else. Used by the
	// auction-in-advance reveal flow, whose signature only covers the
	// single BID outpoint.
	ExactInputs bool

	// SubtractFeeOutput, when non-negative, names the output the fee is
	// deducted from instead of selecting additional inputs for it.
	SubtractFeeOutput int
}

// NewBuilder returns an empty builder for the account.
func NewBuilder(account uint32) *Builder {
	return &Builder{
		Account:           account,
		SubtractFeeOutput: -1,
	}
}

// AddOutput appends an output.
func (b *Builder) AddOutput(out *hnswire.TxOut) {
	b.Outputs = append(b.Outputs, out)
}

// AddInput appends a coin the transaction must spend.
func (b *Builder) AddInput(coin *coindb.Coin) {
	b.Inputs = append(b.Inputs, coin)
}

// OutputValue sums the output values.
func (b *Builder) OutputValue() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range b.Outputs {
		total += out.Value
	}

	return total
}

// InputValue sums the pre-added input values.
func (b *Builder) InputValue() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range b.Inputs {
		total += in.Value
	}

	return total
}

// coveredValue is the amount selection still has to come up with.
func (b *Builder) coveredValue() btcutil.Amount {
	need := b.OutputValue() - b.InputValue()
	if need < 0 {
		return 0
	}

	return need
}

// dustExempt reports whether the output is protocol-exempt from the dust
// rule: zero-valued covenant outputs (e.g. OPEN) are legal by consensus.
func dustExempt(out *hnswire.TxOut) bool {
	return out.Value == 0 && out.Covenant != nil &&
		out.Covenant.Type != covenant.TypeNone
}
