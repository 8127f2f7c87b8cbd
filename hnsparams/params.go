package hnsparams

import (
	"github.com/btcsuite/btcd/btcutil"
)

// Params groups the consensus values the wallet engine needs to validate
// auction transitions and to sanity check the transactions it builds. The
// values mirror the Handshake network parameters; only the fields the engine
// consumes are carried here.
type Params struct {
	// Name identifies the network, e.g. "mainnet" or "regtest".
	Name string

	// TreeInterval is the block cadence at which name-tree roots are
	// committed. Several transitions require height >= event +
	// TreeInterval.
	TreeInterval uint32

	// BiddingPeriod is the number of blocks after the open period during
	// which blinded bids are accepted.
	BiddingPeriod uint32

	// RevealPeriod is the number of blocks after bidding closes during
	// which bids must be revealed.
	RevealPeriod uint32

	// TransferLockup is the minimum number of blocks between a TRANSFER
	// and a valid FINALIZE.
	TransferLockup uint32

	// RenewalWindow is the number of blocks a name stays valid after its
	// last renewal before it expires.
	RenewalWindow uint32

	// RolloutInterval is the block spacing between weekly name rollout
	// tranches.
	RolloutInterval uint32

	// ClaimPeriod is the height before which reserved (ICANN) names are
	// locked up and may only enter the chain via claims.
	ClaimPeriod uint32

	// AuctionStart is the first height at which auctions may be opened.
	AuctionStart uint32

	// CoinbaseMaturity is the number of confirmations a coinbase (or
	// claim) output needs before it is spendable.
	CoinbaseMaturity uint32

	// MaxNameLen bounds the length of a readable name.
	MaxNameLen int

	// MaxResourceSize bounds the encoded resource carried by REGISTER and
	// UPDATE covenants.
	MaxResourceSize int

	// MaxTxWeight is the consensus limit on transaction weight.
	MaxTxWeight int64

	// MaxTxSigops is the consensus limit on signature operations per
	// transaction.
	MaxTxSigops int

	// MaxFee is the wallet's hard ceiling on the absolute fee of any
	// transaction it produces.
	MaxFee btcutil.Amount

	// MinRelayFee is the minimum fee rate, in subunits per kilobyte,
	// accepted by the network for relay.
	MinRelayFee btcutil.Amount

	// MaxAncestors bounds the unconfirmed ancestor chain length of any
	// transaction the wallet produces.
	MaxAncestors int

	// MaxBatchOutputs is the per-transaction output budget applied by the
	// batch planner and by the batch validators.
	MaxBatchOutputs int
}

// OpenPeriod returns the number of blocks an auction sits in the OPENING
// state before bidding starts.
func (p *Params) OpenPeriod() uint32 {
	return p.TreeInterval + 1
}

// AuctionLength returns the total span of an auction epoch from the OPEN
// through the end of the reveal period.
func (p *Params) AuctionLength() uint32 {
	return p.OpenPeriod() + p.BiddingPeriod + p.RevealPeriod
}

// MainNetParams holds the parameters for the Handshake main network.
var MainNetParams = Params{
	Name:             "mainnet",
	TreeInterval:     36,
	BiddingPeriod:    720,
	RevealPeriod:     1440,
	TransferLockup:   288,
	RenewalWindow:    105120,
	RolloutInterval:  1008,
	ClaimPeriod:      210240,
	AuctionStart:     2016,
	CoinbaseMaturity: 100,
	MaxNameLen:       63,
	MaxResourceSize:  512,
	MaxTxWeight:      400000,
	MaxTxSigops:      80000,
	MaxFee:           btcutil.Amount(10_000_000),
	MinRelayFee:      btcutil.Amount(1000),
	MaxAncestors:     25,
	MaxBatchOutputs:  200,
}

// RegressionNetParams holds shortened windows suitable for integration tests
// against a regtest chain.
var RegressionNetParams = Params{
	Name:             "regtest",
	TreeInterval:     2,
	BiddingPeriod:    5,
	RevealPeriod:     10,
	TransferLockup:   10,
	RenewalWindow:    5000,
	RolloutInterval:  2,
	ClaimPeriod:      250000,
	AuctionStart:     0,
	CoinbaseMaturity: 2,
	MaxNameLen:       63,
	MaxResourceSize:  512,
	MaxTxWeight:      400000,
	MaxTxSigops:      80000,
	MaxFee:           btcutil.Amount(10_000_000),
	MinRelayFee:      btcutil.Amount(1000),
	MaxAncestors:     25,
	MaxBatchOutputs:  200,
}
