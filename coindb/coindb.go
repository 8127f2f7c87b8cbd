// Package coindb tracks the wallet's credits: unspent outputs plus the
// local metadata the engine needs for coin selection. Credits persist in a
// walletdb namespace and are mirrored by an in-memory index for O(1)
// outpoint lookup and account filtering. All mutation flows through a
// CachedBatch so the index is only updated after the underlying database
// batch commits.
package coindb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"

	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/hnswire"
)

var (
	// namespaceKey is the top level bucket for this package.
	namespaceKey = []byte("coindb")

	// bucketCredits maps txid || output index to a credit record.
	bucketCredits = []byte("credits")

	// bucketAcctIndex maps account || txid || output index to nil; the
	// secondary index backing per-account queries.
	bucketAcctIndex = []byte("acctindex")

	// ErrNoCredit is returned when a credit does not exist for the
	// requested outpoint.
	ErrNoCredit = errors.New("no credit for outpoint")
)

// Big endian keys keep cursor scans ordered by account then outpoint.
var byteOrder = binary.BigEndian

// Coin is the chain-visible half of a credit.
type Coin struct {
	// Outpoint locates the output on chain.
	Outpoint wire.OutPoint

	// Value is the output amount.
	Value btcutil.Amount

	// Address is the output's destination.
	Address hnswire.Address

	// Covenant constrains how the output may be spent.
	Covenant *covenant.Covenant

	// Height is the confirmation height, zero while unconfirmed.
	Height uint32

	// Coinbase marks coinbase (and claim) outputs, which are subject to
	// maturity.
	Coinbase bool

	// Account is the wallet account that owns the derivation path of
	// Address.
	Account uint32
}

// Confirmed reports whether the coin has a confirmation height.
func (c *Coin) Confirmed() bool {
	return c.Height != 0
}

// Credit is a coin plus local bookkeeping.
type Credit struct {
	Coin Coin

	// Spent marks the credit as committed to a pending transaction that
	// has not confirmed yet. The engine must not select it again.
	Spent bool

	// Own marks credits produced by our own transactions. The smart
	// selection policy only accepts unconfirmed inputs that are Own.
	Own bool
}

// Clone returns a deep copy so callers cannot mutate index state.
func (c *Credit) Clone() *Credit {
	cp := *c
	cp.Coin.Address = c.Coin.Address.Clone()
	cp.Coin.Covenant = c.Coin.Covenant.Clone()

	return &cp
}

// serialize writes the credit record value.
func (c *Credit) serialize(w io.Writer) error {
	var scratch [8]byte

	byteOrder.PutUint64(scratch[:], uint64(c.Coin.Value))
	if _, err := w.Write(scratch[:]); err != nil {
		return err
	}

	byteOrder.PutUint32(scratch[:4], c.Coin.Height)
	if _, err := w.Write(scratch[:4]); err != nil {
		return err
	}

	byteOrder.PutUint32(scratch[:4], c.Coin.Account)
	if _, err := w.Write(scratch[:4]); err != nil {
		return err
	}

	var flags byte
	if c.Coin.Coinbase {
		flags |= 1 << 0
	}
	if c.Spent {
		flags |= 1 << 1
	}
	if c.Own {
		flags |= 1 << 2
	}
	if _, err := w.Write([]byte{flags}); err != nil {
		return err
	}

	if err := c.Coin.Address.Serialize(w); err != nil {
		return err
	}

	return c.Coin.Covenant.Serialize(w)
}

// deserialize reads a credit record value. The outpoint comes from the key.
func (c *Credit) deserialize(r io.Reader) error {
	var scratch [8]byte

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return err
	}
	c.Coin.Value = btcutil.Amount(byteOrder.Uint64(scratch[:]))

	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return err
	}
	c.Coin.Height = byteOrder.Uint32(scratch[:4])

	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return err
	}
	c.Coin.Account = byteOrder.Uint32(scratch[:4])

	if _, err := io.ReadFull(r, scratch[:1]); err != nil {
		return err
	}
	flags := scratch[0]
	c.Coin.Coinbase = flags&(1<<0) != 0
	c.Spent = flags&(1<<1) != 0
	c.Own = flags&(1<<2) != 0

	if err := c.Coin.Address.Deserialize(r); err != nil {
		return err
	}

	c.Coin.Covenant = new(covenant.Covenant)

	return c.Coin.Covenant.Deserialize(r)
}

// creditKey builds the primary bucket key for an outpoint.
func creditKey(op wire.OutPoint) []byte {
	k := make([]byte, chainhash.HashSize+4)
	copy(k, op.Hash[:])
	byteOrder.PutUint32(k[chainhash.HashSize:], op.Index)

	return k
}

// acctKey builds the secondary index key for an account and outpoint.
func acctKey(account uint32, op wire.OutPoint) []byte {
	k := make([]byte, 4+chainhash.HashSize+4)
	byteOrder.PutUint32(k, account)
	copy(k[4:], op.Hash[:])
	byteOrder.PutUint32(k[4+chainhash.HashSize:], op.Index)

	return k
}

// Store persists credits and keeps the in-memory index consistent with the
// database.
type Store struct {
	db    walletdb.DB
	index *CoinIndex
}

// Open creates the buckets if needed and populates the in-memory index by
// scanning every persisted credit.
func Open(db walletdb.DB) (*Store, error) {
	s := &Store{
		db:    db,
		index: newCoinIndex(),
	}

	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(namespaceKey)
		if err != nil {
			return err
		}
		if _, err := ns.CreateBucketIfNotExists(
			bucketCredits,
		); err != nil {
			return err
		}
		_, err = ns.CreateBucketIfNotExists(bucketAcctIndex)

		return err
	})
	if err != nil {
		return nil, err
	}

	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		credits := tx.ReadBucket(namespaceKey).
			NestedReadBucket(bucketCredits)

		return credits.ForEach(func(k, v []byte) error {
			if len(k) != chainhash.HashSize+4 {
				return errors.New("malformed credit key")
			}

			var op wire.OutPoint
			copy(op.Hash[:], k[:chainhash.HashSize])
			op.Index = byteOrder.Uint32(k[chainhash.HashSize:])

			credit := new(Credit)
			err := credit.deserialize(bytes.NewReader(v))
			if err != nil {
				return err
			}
			credit.Coin.Outpoint = op

			s.index.put(credit)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Coin index loaded: %d credits", s.index.Len())

	return s, nil
}

// Index exposes the in-memory index for read-only queries.
func (s *Store) Index() *CoinIndex {
	return s.index
}
