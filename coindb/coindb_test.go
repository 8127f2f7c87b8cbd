package coindb

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/stretchr/testify/require"

	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/hnswire"
)

func openTestDB(t *testing.T) walletdb.DB {
	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "wallet.db"), true,
		10*time.Second, false,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(openTestDB(t))
	require.NoError(t, err)

	return store
}

func testOutPoint(fill byte, index uint32) wire.OutPoint {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = fill
	}

	return wire.OutPoint{Hash: hash, Index: index}
}

func testCredit(fill byte, index uint32, account uint32,
	value btcutil.Amount) *Credit {

	return &Credit{
		Coin: Coin{
			Outpoint: testOutPoint(fill, index),
			Value:    value,
			Address: hnswire.Address{
				Version: 0,
				Hash:    bytes.Repeat([]byte{fill}, 20),
			},
			Covenant: &covenant.Covenant{Type: covenant.TypeNone},
			Height:   100,
			Account:  account,
		},
		Own: true,
	}
}

func TestBatchPutGet(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	credit := testCredit(0x01, 0, 0, 50_000)

	_, err := store.Index().GetCredit(credit.Coin.Outpoint)
	require.ErrorIs(t, err, ErrNoCredit)

	batch := store.Batch()
	batch.PutCredit(credit)
	require.Equal(t, 1, batch.Len())
	require.NoError(t, batch.Write(nil))

	got, err := store.Index().GetCredit(credit.Coin.Outpoint)
	require.NoError(t, err)
	require.Equal(t, credit.Coin.Value, got.Coin.Value)
	require.Equal(t, credit.Coin.Height, got.Coin.Height)
	require.True(t, got.Own)
	require.True(t, store.Index().HasCoin(credit.Coin.Outpoint))
	require.True(t, store.Index().HasCoinByAccount(
		0, credit.Coin.Outpoint,
	))
	require.False(t, store.Index().HasCoinByAccount(
		1, credit.Coin.Outpoint,
	))

	// Mutating the returned copy must not affect the index.
	got.Spent = true
	got.Coin.Covenant.Type = covenant.TypeBid
	fresh, err := store.Index().GetCredit(credit.Coin.Outpoint)
	require.NoError(t, err)
	require.False(t, fresh.Spent)
	require.Equal(t, covenant.TypeNone, fresh.Coin.Covenant.Type)
}

func TestBatchSpendAndDelete(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	credit := testCredit(0x01, 0, 0, 50_000)

	batch := store.Batch()
	batch.PutCredit(credit)
	require.NoError(t, batch.Write(nil))

	// Spending an unknown outpoint fails up front.
	batch = store.Batch()
	require.ErrorIs(
		t, batch.SpendCredit(testOutPoint(0x09, 0)), ErrNoCredit,
	)

	require.NoError(t, batch.SpendCredit(credit.Coin.Outpoint))
	require.NoError(t, batch.Write(nil))

	got, err := store.Index().GetCredit(credit.Coin.Outpoint)
	require.NoError(t, err)
	require.True(t, got.Spent)

	batch = store.Batch()
	batch.DelCredit(credit.Coin.Outpoint)
	require.NoError(t, batch.Write(nil))

	_, err = store.Index().GetCredit(credit.Coin.Outpoint)
	require.ErrorIs(t, err, ErrNoCredit)
	require.Empty(t, store.Index().CreditsForAccount(0))
}

// TestBatchFailureLeavesIndexUntouched forces the database write to fail
// through the coupled closure and checks the index saw none of the batch.
func TestBatchFailureLeavesIndexUntouched(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	existing := testCredit(0x01, 0, 0, 50_000)
	batch := store.Batch()
	batch.PutCredit(existing)
	require.NoError(t, batch.Write(nil))

	errBoom := errors.New("boom")
	batch = store.Batch()
	batch.PutCredit(testCredit(0x02, 0, 0, 60_000))
	batch.DelCredit(existing.Coin.Outpoint)
	err := batch.Write(func(walletdb.ReadWriteTx) error {
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	// The old credit survives, the new one never appeared.
	require.True(t, store.Index().HasCoin(existing.Coin.Outpoint))
	require.False(t, store.Index().HasCoin(testOutPoint(0x02, 0)))
	require.Equal(t, 1, store.Index().Len())
}

// TestReopenRebuildsIndex persists credits, reopens the store over the same
// database and checks the index is rebuilt from disk.
func TestReopenRebuildsIndex(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	store, err := Open(db)
	require.NoError(t, err)

	nameHash := bytes.Repeat([]byte{0x11}, covenant.NameHashSize)
	cov, err := covenant.NewBid(
		nameHash, 100, "example", bytes.Repeat([]byte{0x22}, 32),
	)
	require.NoError(t, err)

	bid := testCredit(0x01, 0, 7, 1_000_000)
	bid.Coin.Covenant = cov
	bid.Coin.Coinbase = true
	bid.Spent = true

	plain := testCredit(0x02, 3, 7, 25_000)

	batch := store.Batch()
	batch.PutCredit(bid)
	batch.PutCredit(plain)
	require.NoError(t, batch.Write(nil))

	reopened, err := Open(db)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Index().Len())

	got, err := reopened.Index().GetCredit(bid.Coin.Outpoint)
	require.NoError(t, err)
	require.Equal(t, bid.Coin.Value, got.Coin.Value)
	require.Equal(t, uint32(7), got.Coin.Account)
	require.True(t, got.Coin.Coinbase)
	require.True(t, got.Spent)
	require.True(t, got.Coin.Covenant.Equal(cov))
	require.True(t, got.Coin.Address.Equal(&bid.Coin.Address))
}

func TestAccountQueries(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	batch := store.Batch()
	batch.PutCredit(testCredit(0x01, 0, 0, 100))
	batch.PutCredit(testCredit(0x01, 1, 0, 200))
	batch.PutCredit(testCredit(0x02, 0, 5, 300))
	require.NoError(t, batch.Write(nil))

	require.Len(t, store.Index().CreditsForAccount(0), 2)
	require.Len(t, store.Index().CreditsForAccount(5), 1)
	require.Empty(t, store.Index().CreditsForAccount(9))

	ops := store.Index().OutpointsForAccount(0)
	require.ElementsMatch(t, []wire.OutPoint{
		testOutPoint(0x01, 0),
		testOutPoint(0x01, 1),
	}, ops)
}

func TestCovenantQueries(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	nameA := bytes.Repeat([]byte{0xaa}, covenant.NameHashSize)
	nameB := bytes.Repeat([]byte{0xbb}, covenant.NameHashSize)
	blind := bytes.Repeat([]byte{0x22}, 32)

	bidA1, err := covenant.NewBid(nameA, 100, "alpha", blind)
	require.NoError(t, err)
	bidA2, err := covenant.NewBid(nameA, 100, "alpha", blind)
	require.NoError(t, err)
	bidB, err := covenant.NewBid(nameB, 100, "beta", blind)
	require.NoError(t, err)
	revealA, err := covenant.NewReveal(
		nameA, 100, bytes.Repeat([]byte{0x33}, 32),
	)
	require.NoError(t, err)

	batch := store.Batch()
	for i, cov := range []*covenant.Covenant{bidA1, bidA2, bidB, revealA} {
		credit := testCredit(0x01, uint32(i), 0, 1_000)
		credit.Coin.Covenant = cov
		batch.PutCredit(credit)
	}
	batch.PutCredit(testCredit(0x02, 0, 0, 5_000))
	require.NoError(t, batch.Write(nil))

	require.Len(
		t, store.Index().CreditsByName(covenant.TypeBid, nameA), 2,
	)
	require.Len(
		t, store.Index().CreditsByName(covenant.TypeReveal, nameA), 1,
	)
	require.Empty(
		t, store.Index().CreditsByName(covenant.TypeReveal, nameB),
	)

	grouped := store.Index().CreditsByType(covenant.TypeBid)
	require.Len(t, grouped, 2)
	require.Len(t, grouped[string(nameA)], 2)
	require.Len(t, grouped[string(nameB)], 1)
}

func TestCreditSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	cov, err := covenant.NewRedeem(
		bytes.Repeat([]byte{0x11}, covenant.NameHashSize), 42,
	)
	require.NoError(t, err)

	credit := &Credit{
		Coin: Coin{
			Outpoint: testOutPoint(0x01, 9),
			Value:    123_456_789,
			Address: hnswire.Address{
				Version: 0,
				Hash:    bytes.Repeat([]byte{0x44}, 32),
			},
			Covenant: cov,
			Height:   65_000,
			Coinbase: true,
			Account:  3,
		},
		Spent: true,
		Own:   true,
	}

	var buf bytes.Buffer
	require.NoError(t, credit.serialize(&buf))

	var decoded Credit
	require.NoError(t, decoded.deserialize(bytes.NewReader(buf.Bytes())))
	decoded.Coin.Outpoint = credit.Coin.Outpoint

	require.Equal(t, credit.Coin.Value, decoded.Coin.Value)
	require.Equal(t, credit.Coin.Height, decoded.Coin.Height)
	require.Equal(t, credit.Coin.Account, decoded.Coin.Account)
	require.Equal(t, credit.Coin.Coinbase, decoded.Coin.Coinbase)
	require.Equal(t, credit.Spent, decoded.Spent)
	require.Equal(t, credit.Own, decoded.Own)
	require.True(t, credit.Coin.Address.Equal(&decoded.Coin.Address))
	require.True(t, credit.Coin.Covenant.Equal(decoded.Coin.Covenant))
}
