// Package keyring provides a deterministic in-memory key ring: address
// derivation, account public keys and transaction signing backed by a
// single seed. It backs tests, tools and single-machine deployments;
// hardware-backed or remote key material plugs in behind the same wallet
// interfaces.
package keyring

import (
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"

	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/wallet"
)

// Derivation branches, mirroring BIP44 change levels.
const (
	branchReceive uint32 = 0
	branchChange  uint32 = 1

	// branchAccount holds the keys exposed as account public keys for
	// blind nonce derivation.
	branchAccount uint32 = 2
)

// addrHashSize is the size of a v0 witness address hash.
const addrHashSize = 20

// KeyRing derives keys and addresses from a seed.
type KeyRing struct {
	mtx sync.Mutex

	seed [32]byte

	// watchOnly rings refuse to sign.
	watchOnly bool

	// receiveIdx and changeIdx track the next unused index per account.
	receiveIdx map[uint32]uint32
	changeIdx  map[uint32]uint32

	// byAddr maps address hash to owning account for reverse lookup.
	byAddr map[string]uint32
}

// New builds a key ring over the given seed.
func New(seed [32]byte) *KeyRing {
	return &KeyRing{
		seed:       seed,
		receiveIdx: make(map[uint32]uint32),
		changeIdx:  make(map[uint32]uint32),
		byAddr:     make(map[string]uint32),
	}
}

// NewWatchOnly builds a ring that can derive addresses but not sign.
func NewWatchOnly(seed [32]byte) *KeyRing {
	r := New(seed)
	r.watchOnly = true

	return r
}

// deriveKey derives the private key at (account, branch, index).
func (r *KeyRing) deriveKey(account, branch,
	index uint32) *secp256k1.PrivateKey {

	h, _ := blake2b.New256(nil)
	h.Write(r.seed[:])

	var scratch [12]byte
	binary.BigEndian.PutUint32(scratch[0:4], account)
	binary.BigEndian.PutUint32(scratch[4:8], branch)
	binary.BigEndian.PutUint32(scratch[8:12], index)
	h.Write(scratch[:])

	priv := secp256k1.PrivKeyFromBytes(h.Sum(nil))

	return priv
}

// addressFor returns the v0 witness address of a public key: the first
// 20 bytes of a BLAKE2b-256 digest of the compressed key.
func addressFor(pub *secp256k1.PublicKey) hnswire.Address {
	digest := blake2b.Sum256(pub.SerializeCompressed())

	return hnswire.Address{
		Version: 0,
		Hash:    append([]byte(nil), digest[:addrHashSize]...),
	}
}

// addressAt derives and registers the address at the derivation path.
// Callers hold the lock.
func (r *KeyRing) addressAt(account, branch, index uint32) hnswire.Address {
	priv := r.deriveKey(account, branch, index)
	addr := addressFor(priv.PubKey())
	r.byAddr[string(addr.Hash)] = account

	return addr
}

// ReceiveAddress returns the account's current receive address.
func (r *KeyRing) ReceiveAddress(account uint32) (hnswire.Address, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return r.addressAt(account, branchReceive, r.receiveIdx[account]), nil
}

// FreshReceiveAddress advances the account's external chain and returns
// the new address.
func (r *KeyRing) FreshReceiveAddress(account uint32) (hnswire.Address,
	error) {

	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.receiveIdx[account]++

	return r.addressAt(account, branchReceive, r.receiveIdx[account]), nil
}

// ChangeAddress advances the account's internal chain and returns the new
// address.
func (r *KeyRing) ChangeAddress(account uint32) (hnswire.Address, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.changeIdx[account]++

	return r.addressAt(account, branchChange, r.changeIdx[account]), nil
}

// AccountKey returns the serialized public key at the account's given
// index, used for blind nonce derivation.
func (r *KeyRing) AccountKey(account, index uint32) ([]byte, error) {
	priv := r.deriveKey(account, branchAccount, index)

	return priv.PubKey().SerializeCompressed(), nil
}

// LookupAddress resolves a previously derived address to its account.
func (r *KeyRing) LookupAddress(addr hnswire.Address) (uint32, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	account, ok := r.byAddr[string(addr.Hash)]

	return account, ok
}

// sigHash is the digest signed per input: the witnessless txid bound to
// the outpoint being spent.
func sigHash(tx *hnswire.MsgTx, op wire.OutPoint) [32]byte {
	txid := tx.TxHash()

	h, _ := blake2b.New256(nil)
	h.Write(txid[:])
	h.Write(op.Hash[:])

	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], op.Index)
	h.Write(scratch[:])

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return digest
}

// SignTx fills each input's witness with a signature and the compressed
// public key matching the spent coin's address. Watch-only rings return
// an error without touching the transaction.
func (r *KeyRing) SignTx(tx *hnswire.MsgTx,
	coins map[wire.OutPoint]*coindb.Coin) error {

	if r.watchOnly {
		return wallet.ErrWatchOnly
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, in := range tx.TxIn {
		coin, ok := coins[in.PrevOutPoint]
		if !ok {
			return coindb.ErrNoCredit
		}

		priv, err := r.keyForAddress(coin.Account, coin.Address)
		if err != nil {
			return err
		}

		digest := sigHash(tx, in.PrevOutPoint)
		sig := ecdsa.Sign(priv, digest[:])

		in.Witness = [][]byte{
			sig.Serialize(),
			priv.PubKey().SerializeCompressed(),
		}
	}

	return nil
}

// keyForAddress scans the account's derived chains for the key behind the
// address. Callers hold the lock.
func (r *KeyRing) keyForAddress(account uint32,
	addr hnswire.Address) (*secp256k1.PrivateKey, error) {

	for _, branch := range []uint32{branchReceive, branchChange} {
		limit := r.receiveIdx[account]
		if branch == branchChange {
			limit = r.changeIdx[account]
		}

		for index := uint32(0); index <= limit; index++ {
			priv := r.deriveKey(account, branch, index)
			candidate := addressFor(priv.PubKey())
			if candidate.Equal(&addr) {
				return priv, nil
			}
		}
	}

	return nil, coindb.ErrNoCredit
}
