package rules

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/handshake-org/hswd/hnsparams"
)

// ErrInvalidName is returned for labels that fail syntactic validation.
var ErrInvalidName = errors.New("invalid name")

// HashName returns the protocol identifier for a readable name: a SHA3-256
// digest of the lowercased ASCII label.
func HashName(name string) []byte {
	digest := sha3.Sum256([]byte(name))

	return digest[:]
}

// IsNameValid performs syntactic validation: lowercase ASCII letters,
// digits, hyphen and underscore, non-empty, bounded length, and no leading
// or trailing hyphen.
func IsNameValid(p *hnsparams.Params, name string) bool {
	if len(name) == 0 || len(name) > p.MaxNameLen {
		return false
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
			if i == 0 || i == len(name)-1 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// CheckName returns ErrInvalidName when the label fails validation.
func CheckName(p *hnsparams.Params, name string) error {
	if !IsNameValid(p, name) {
		return ErrInvalidName
	}

	return nil
}

// IsReserved reports whether the name belongs to the reserved (ICANN) set.
// Reserved names may only enter the chain via claims while the claim period
// is active.
func IsReserved(p *hnsparams.Params, height uint32, name string) bool {
	if height >= p.ClaimPeriod {
		return false
	}

	_, ok := reservedNames[name]

	return ok
}

// IsLockedUp reports whether the name is still inside the ICANN lockup, i.e.
// reserved and not yet claimable by open auction.
func IsLockedUp(p *hnsparams.Params, height uint32, name string) bool {
	return IsReserved(p, height, name)
}

// RolloutHeight returns the first height at which the name may be opened.
// Names roll out in 52 weekly tranches keyed by name hash.
func RolloutHeight(p *hnsparams.Params, nameHash []byte) uint32 {
	week := modHash(nameHash, 52)

	return p.AuctionStart + week*p.RolloutInterval
}

// HasRollout reports whether the name has reached its rollout tranche at the
// given height.
func HasRollout(p *hnsparams.Params, height uint32, nameHash []byte) bool {
	return height >= RolloutHeight(p, nameHash)
}

// modHash interprets the hash as a big endian integer and reduces it modulo
// num, without materializing the big integer.
func modHash(hash []byte, num uint32) uint32 {
	var rem uint64
	for _, b := range hash {
		rem = (rem<<8 | uint64(b)) % uint64(num)
	}

	return uint32(rem)
}

// NonceIndex derives the key index committed to by a bid value:
// (value_hi xor value_lo) & 0x7fffffff. The masking keeps the index in the
// non-hardened derivation range.
func NonceIndex(value uint64) uint32 {
	hi := uint32(value >> 32)
	lo := uint32(value)

	return (hi ^ lo) & 0x7fffffff
}

// CreateNonce derives the deterministic reveal nonce for a bid:
// BLAKE2b-256(addr_hash || account_pubkey(idx) || name_hash). Determinism
// lets a wallet regenerate nonces it has lost as long as it still holds the
// account key.
func CreateNonce(addrHash, accountPub, nameHash []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(addrHash)
	h.Write(accountPub)
	h.Write(nameHash)

	var nonce [32]byte
	copy(nonce[:], h.Sum(nil))

	return nonce
}

// CreateBlind commits to a bid value and nonce:
// BLAKE2b-256(value_u64le || nonce).
func CreateBlind(value uint64, nonce [32]byte) [32]byte {
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], value)

	h, _ := blake2b.New256(nil)
	h.Write(v[:])
	h.Write(nonce[:])

	var blind [32]byte
	copy(blind[:], h.Sum(nil))

	return blind
}
