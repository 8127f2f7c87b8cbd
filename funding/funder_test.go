package funding

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/hnsparams"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/wlock"
)

// testHarness wires a funder over a real coin store and lock manager.
type testHarness struct {
	t      *testing.T
	store  *coindb.Store
	locker *wlock.Locker
	funder *Funder

	nextFill byte
}

type fakeChangeSource struct{}

func (fakeChangeSource) ChangeAddress(uint32) (hnswire.Address, error) {
	return hnswire.Address{
		Version: 0,
		Hash:    bytes.Repeat([]byte{0xcc}, 20),
	}, nil
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "wallet.db"), true,
		10*time.Second, false,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	store, err := coindb.Open(db)
	require.NoError(t, err)

	locker := wlock.New()

	return &testHarness{
		t:      t,
		store:  store,
		locker: locker,
		funder: New(
			&hnsparams.MainNetParams, store.Index(),
			fakeChangeSource{}, locker,
		),
		nextFill: 1,
	}
}

// addCredit inserts a plain spendable credit and returns it.
func (h *testHarness) addCredit(value btcutil.Amount,
	height uint32) *coindb.Credit {

	h.t.Helper()

	var hash chainhash.Hash
	for i := range hash {
		hash[i] = h.nextFill
	}
	h.nextFill++

	credit := &coindb.Credit{
		Coin: coindb.Coin{
			Outpoint: wire.OutPoint{Hash: hash},
			Value:    value,
			Address: hnswire.Address{
				Version: 0,
				Hash:    bytes.Repeat([]byte{0xaa}, 20),
			},
			Covenant: &covenant.Covenant{
				Type: covenant.TypeNone,
			},
			Height: height,
		},
		Own: true,
	}

	batch := h.store.Batch()
	batch.PutCredit(credit)
	require.NoError(h.t, batch.Write(nil))

	return credit
}

func payment(value btcutil.Amount) *hnswire.TxOut {
	return hnswire.NewTxOut(value, hnswire.Address{
		Version: 0,
		Hash:    bytes.Repeat([]byte{0xbb}, 20),
	}, nil)
}

func TestFundSimple(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(30_000, 100)
	h.addCredit(30_000, 200)

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))

	funded, err := h.funder.Fund(b, Options{Rate: 1000, Height: 1000})
	require.NoError(t, err)

	require.Len(t, funded.Tx.TxIn, 2)
	require.Greater(t, funded.Fee, btcutil.Amount(0))

	// Value conservation: inputs fund the outputs plus the fee exactly.
	var inputValue btcutil.Amount
	for _, coin := range funded.Coins {
		inputValue += coin.Value
	}
	require.Equal(t, inputValue, funded.Tx.TotalOut()+funded.Fee)

	// Change was added and located after sorting.
	require.GreaterOrEqual(t, funded.ChangeIndex, 0)
	change := funded.Tx.TxOut[funded.ChangeIndex]
	require.Equal(t, btcutil.Amount(10_000)-funded.Fee, change.Value)

	// The selection is leased until the caller releases it.
	require.Len(t, funded.SelectedOutPoints, 2)
	for _, op := range funded.SelectedOutPoints {
		require.True(t, h.locker.IsLeased(op))
	}
	h.locker.Release(funded.SelectedOutPoints...)
}

func TestFundInsufficientFunds(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	credit := h.addCredit(10_000, 100)

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))

	_, err := h.funder.Fund(b, Options{Rate: 1000, Height: 1000})

	var fundsErr *ErrInsufficientFunds
	require.ErrorAs(t, err, &fundsErr)
	require.Equal(t, btcutil.Amount(10_000), fundsErr.AmountAvailable)
	require.Greater(t, fundsErr.AmountNeeded, btcutil.Amount(50_000))

	// Nothing stays leased on the error path.
	require.False(t, h.locker.IsLeased(credit.Coin.Outpoint))
}

func TestFundNoOutputs(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(10_000, 100)

	_, err := h.funder.Fund(NewBuilder(0), Options{Height: 1000})
	require.ErrorIs(t, err, ErrNoOutputs)

	b := NewBuilder(0)
	b.AddOutput(hnswire.NewTxOut(1_000, hnswire.Address{}, nil))
	_, err = h.funder.Fund(b, Options{Height: 1000})
	require.ErrorIs(t, err, ErrNullAddress)
}

func TestFundHardFee(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(60_000, 100)

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))

	funded, err := h.funder.Fund(b, Options{
		HardFee: fn.Some(btcutil.Amount(500)),
		Height:  1000,
	})
	require.NoError(t, err)
	defer h.locker.Release(funded.SelectedOutPoints...)

	require.Equal(t, btcutil.Amount(500), funded.Fee)
	require.Equal(
		t, btcutil.Amount(60_000), funded.Tx.TotalOut()+funded.Fee,
	)
}

// TestFundDustChange folds sub-dust change into the fee instead of adding
// an output.
func TestFundDustChange(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(50_100, 100)

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))

	funded, err := h.funder.Fund(b, Options{
		HardFee: fn.Some(btcutil.Amount(50)),
		Height:  1000,
	})
	require.NoError(t, err)
	defer h.locker.Release(funded.SelectedOutPoints...)

	require.Equal(t, -1, funded.ChangeIndex)
	require.Len(t, funded.Tx.TxOut, 1)
	require.Equal(t, btcutil.Amount(100), funded.Fee)
}

func TestFundSubtractFee(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(50_000, 100)

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))
	b.SubtractFeeOutput = 0

	funded, err := h.funder.Fund(b, Options{Rate: 1000, Height: 1000})
	require.NoError(t, err)
	defer h.locker.Release(funded.SelectedOutPoints...)

	// The fee comes out of the named output; the full input value is
	// consumed with no change.
	require.Greater(t, funded.Fee, btcutil.Amount(0))
	require.Equal(t, -1, funded.ChangeIndex)
	require.Len(t, funded.Tx.TxOut, 1)
	require.Equal(
		t, btcutil.Amount(50_000)-funded.Fee,
		funded.Tx.TxOut[0].Value,
	)
}

func TestFundSubtractFeeDust(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(600, 100)

	// The output barely exists; subtracting the fee would push it under
	// the dust threshold.
	b := NewBuilder(0)
	b.AddOutput(payment(600))
	b.SubtractFeeOutput = 0

	_, err := h.funder.Fund(b, Options{Rate: 10_000, Height: 1000})
	require.ErrorIs(t, err, ErrDustOutput)
}

func TestFundExactInputs(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	credit := h.addCredit(10_000, 100)

	b := NewBuilder(0)
	b.ExactInputs = true
	b.AddInput(&credit.Coin)
	b.AddOutput(payment(9_000))

	funded, err := h.funder.Fund(b, Options{Height: 1000})
	require.NoError(t, err)

	// The fee is the input surplus; no selection happened.
	require.Equal(t, btcutil.Amount(1_000), funded.Fee)
	require.Len(t, funded.Tx.TxIn, 1)
	require.Equal(t, -1, funded.ChangeIndex)
	require.Empty(t, funded.SelectedOutPoints)
}

func TestFundExactInputsViolations(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	credit := h.addCredit(10_000, 100)

	// No pre-added inputs at all.
	b := NewBuilder(0)
	b.ExactInputs = true
	b.AddOutput(payment(9_000))
	_, err := h.funder.Fund(b, Options{Height: 1000})
	require.ErrorIs(t, err, ErrExactInputViolated)

	// Outputs exceed the pre-added input.
	b = NewBuilder(0)
	b.ExactInputs = true
	b.AddInput(&credit.Coin)
	b.AddOutput(payment(11_000))
	_, err = h.funder.Fund(b, Options{Height: 1000})
	require.ErrorIs(t, err, ErrExactInputViolated)

	// A second input breaks the one-outpoint invariant even when the
	// funds would cover the outputs.
	other := h.addCredit(10_000, 100)
	b = NewBuilder(0)
	b.ExactInputs = true
	b.AddInput(&credit.Coin)
	b.AddInput(&other.Coin)
	b.AddOutput(payment(9_000))
	_, err = h.funder.Fund(b, Options{Height: 1000})
	require.ErrorIs(t, err, ErrExactInputViolated)
}

// TestFundSkipsIneligible checks selection never touches leased coins,
// spent credits, covenant outputs or immature coinbases.
func TestFundSkipsIneligible(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	// A leased coin.
	leased := h.addCredit(100_000, 100)
	require.NoError(t, h.locker.Lease(leased.Coin.Outpoint))

	// A credit already committed to a pending transaction.
	spent := h.addCredit(100_000, 100)
	batch := h.store.Batch()
	require.NoError(t, batch.SpendCredit(spent.Coin.Outpoint))
	require.NoError(t, batch.Write(nil))

	// A naming output.
	bid := h.addCredit(100_000, 100)
	cov, err := covenant.NewBid(
		bytes.Repeat([]byte{0x11}, covenant.NameHashSize), 50,
		"example", bytes.Repeat([]byte{0x22}, 32),
	)
	require.NoError(t, err)
	bid.Coin.Covenant = cov
	batch = h.store.Batch()
	batch.PutCredit(bid)
	require.NoError(t, batch.Write(nil))

	// A coinbase that matures only at height 100 + maturity.
	coinbase := h.addCredit(100_000, 100)
	coinbase.Coin.Coinbase = true
	batch = h.store.Batch()
	batch.PutCredit(coinbase)
	require.NoError(t, batch.Write(nil))

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))

	opts := Options{Rate: 1000, Height: 150}
	_, err = h.funder.Fund(b, opts)

	var fundsErr *ErrInsufficientFunds
	require.ErrorAs(t, err, &fundsErr)
	require.Zero(t, fundsErr.AmountAvailable)

	// Once the coinbase matures it becomes the only candidate.
	opts.Height = 100 + hnsparams.MainNetParams.CoinbaseMaturity
	funded, err := h.funder.Fund(b, opts)
	require.NoError(t, err)
	defer h.locker.Release(funded.SelectedOutPoints...)

	require.Len(t, funded.Tx.TxIn, 1)
	require.Equal(
		t, coinbase.Coin.Outpoint, funded.Tx.TxIn[0].PrevOutPoint,
	)
}

// TestFundZeroValueCovenantOutput verifies protocol outputs like OPEN are
// exempt from the dust rule.
func TestFundZeroValueCovenantOutput(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(10_000, 100)

	cov, err := covenant.NewOpen(
		bytes.Repeat([]byte{0x11}, covenant.NameHashSize), "example",
	)
	require.NoError(t, err)

	b := NewBuilder(0)
	b.AddOutput(hnswire.NewTxOut(0, hnswire.Address{
		Version: 0,
		Hash:    bytes.Repeat([]byte{0xdd}, 20),
	}, cov))

	funded, err := h.funder.Fund(b, Options{Rate: 1000, Height: 1000})
	require.NoError(t, err)
	defer h.locker.Release(funded.SelectedOutPoints...)

	require.Zero(t, funded.Tx.TxOut[0].Value)
}

func TestFundFeeCeiling(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(100_000_000, 100)

	b := NewBuilder(0)
	b.AddOutput(payment(50_000))

	_, err := h.funder.Fund(b, Options{
		HardFee: fn.Some(
			hnsparams.MainNetParams.MaxFee + 1,
		),
		Height: 1000,
	})
	require.ErrorIs(t, err, ErrFeeExceedsMax)
}

func TestFundLockTimeContext(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(100_000, 100)

	// A locktime past the target height cannot confirm next block.
	b := NewBuilder(0)
	b.LockTime = 2_000
	b.AddOutput(payment(50_000))

	_, err := h.funder.Fund(b, Options{Rate: 1000, Height: 1000})
	require.ErrorIs(t, err, ErrLockTimeConflict)

	b.LockTime = 1_000
	funded, err := h.funder.Fund(b, Options{Rate: 1000, Height: 1000})
	require.NoError(t, err)
	h.locker.Release(funded.SelectedOutPoints...)
}

func TestArrangeCredits(t *testing.T) {
	t.Parallel()

	mkCredit := func(height uint32, own bool) *coindb.Credit {
		return &coindb.Credit{
			Coin: coindb.Coin{Height: height},
			Own:  own,
		}
	}

	credits := []*coindb.Credit{
		mkCredit(0, true),   // our unconfirmed change
		mkCredit(0, false),  // foreign unconfirmed
		mkCredit(300, true),
		mkCredit(100, true),
		mkCredit(200, true),
	}

	// Age: confirmed only, oldest first.
	arranged, err := arrangeCredits(credits, PolicyAge)
	require.NoError(t, err)
	require.Len(t, arranged, 3)
	require.Equal(t, uint32(100), arranged[0].Coin.Height)
	require.Equal(t, uint32(200), arranged[1].Coin.Height)
	require.Equal(t, uint32(300), arranged[2].Coin.Height)

	// Smart: our own unconfirmed coins are admitted, after confirmed
	// ones.
	arranged, err = arrangeCredits(credits, PolicySmart)
	require.NoError(t, err)
	require.Len(t, arranged, 4)
	require.Equal(t, uint32(0), arranged[3].Coin.Height)
	require.True(t, arranged[3].Own)

	// Random keeps the same membership as age.
	arranged, err = arrangeCredits(credits, PolicyRandom)
	require.NoError(t, err)
	require.Len(t, arranged, 3)

	_, err = arrangeCredits(credits, SelectionPolicy("bogus"))
	require.Error(t, err)
}

func TestPolicyAllConsumesEverything(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.addCredit(30_000, 100)
	h.addCredit(30_000, 200)
	h.addCredit(30_000, 300)

	b := NewBuilder(0)
	b.AddOutput(payment(10_000))

	funded, err := h.funder.Fund(b, Options{
		Rate:   1000,
		Policy: PolicyAll,
		Height: 1000,
	})
	require.NoError(t, err)
	defer h.locker.Release(funded.SelectedOutPoints...)

	require.Len(t, funded.Tx.TxIn, 3)
	require.Equal(
		t, btcutil.Amount(90_000), funded.Tx.TotalOut()+funded.Fee,
	)

	// The fee must match the transaction actually built: all three
	// inputs plus change, not the smaller selection that already
	// covered the target.
	expected := FeeRate(1000).FeeForVSize(
		h.funder.estimateVSize(b, 3, true),
	)
	require.Equal(t, expected, funded.Fee)
}

func TestFeeForVSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, btcutil.Amount(1), FeeRate(0).FeeForVSize(250))
	require.Equal(t, btcutil.Amount(250), FeeRate(1000).FeeForVSize(250))
	require.Equal(t, btcutil.Amount(500), FeeRate(2000).FeeForVSize(250))
}

func TestDustThreshold(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	// Relay fee 1000/kvB: a change-sized output (32 bytes) plus the
	// input that would spend it (141 bytes) relays for 173, and dust is
	// anything worth less than three times that cost.
	require.Equal(
		t, btcutil.Amount(519),
		h.funder.dustThreshold(changeOutputSize),
	)

	// Larger outputs carry a proportionally higher floor.
	require.Greater(
		t, h.funder.dustThreshold(64),
		h.funder.dustThreshold(changeOutputSize),
	)
}
