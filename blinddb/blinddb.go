// Package blinddb persists the wallet's blind commitments: the mapping from
// a BID covenant's blind hash back to the bid value and nonce needed to
// later reveal it. Losing a record here means losing the lockup, so writes
// are always coupled to the credit batch that records the bid itself.
package blinddb

import (
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/walletdb"
)

var (
	// namespaceKey is the top level bucket for this package.
	namespaceKey = []byte("blinddb")

	// bucketBlinds maps blind (32 bytes) to value || nonce.
	bucketBlinds = []byte("blinds")

	// ErrBlindNotFound is returned when no record exists for a blind.
	ErrBlindNotFound = errors.New("blind value not found")
)

// BlindValue is the opening of a blind commitment.
type BlindValue struct {
	// Value is the true bid amount hidden by the commitment.
	Value btcutil.Amount

	// Nonce is the deterministic nonce the commitment hashes.
	Nonce [32]byte
}

// Store provides access to the blind bucket.
type Store struct {
	db walletdb.DB
}

// Open creates the buckets if needed.
func Open(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(namespaceKey)
		if err != nil {
			return err
		}
		_, err = ns.CreateBucketIfNotExists(bucketBlinds)

		return err
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// serializeBlindValue packs value (u64 BE) followed by the 32 byte nonce.
func serializeBlindValue(bv *BlindValue) []byte {
	v := make([]byte, 8+32)
	binary.BigEndian.PutUint64(v, uint64(bv.Value))
	copy(v[8:], bv.Nonce[:])

	return v
}

// deserializeBlindValue unpacks a record written by serializeBlindValue.
func deserializeBlindValue(v []byte) (*BlindValue, error) {
	if len(v) != 8+32 {
		return nil, errors.New("malformed blind record")
	}

	bv := &BlindValue{
		Value: btcutil.Amount(binary.BigEndian.Uint64(v)),
	}
	copy(bv.Nonce[:], v[8:])

	return bv, nil
}

// PutBlind writes the record inside an existing database transaction,
// allowing callers to couple it atomically with credit writes.
func PutBlind(tx walletdb.ReadWriteTx, blind [32]byte,
	bv *BlindValue) error {

	blinds := tx.ReadWriteBucket(namespaceKey).
		NestedReadWriteBucket(bucketBlinds)

	return blinds.Put(blind[:], serializeBlindValue(bv))
}

// Put writes the record in its own transaction.
func (s *Store) Put(blind [32]byte, bv *BlindValue) error {
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		return PutBlind(tx, blind, bv)
	})
}

// Get resolves a blind to its value and nonce, or ErrBlindNotFound.
func (s *Store) Get(blind [32]byte) (*BlindValue, error) {
	var bv *BlindValue
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		blinds := tx.ReadBucket(namespaceKey).
			NestedReadBucket(bucketBlinds)

		v := blinds.Get(blind[:])
		if v == nil {
			return ErrBlindNotFound
		}

		var err error
		bv, err = deserializeBlindValue(v)

		return err
	})
	if err != nil {
		return nil, err
	}

	return bv, nil
}

// Has reports whether a record exists for the blind.
func (s *Store) Has(blind [32]byte) bool {
	_, err := s.Get(blind)

	return err == nil
}
