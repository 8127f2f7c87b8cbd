package hnswire

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxAddressHashSize is the largest witness program the address
	// encoding accepts (a 32 byte script hash).
	MaxAddressHashSize = 32

	// MinAddressHashSize is the smallest witness program the address
	// encoding accepts (a 20 byte key hash).
	MinAddressHashSize = 20
)

// Address is a Handshake witness address: a version byte plus a 20 or 32
// byte hash. Address derivation lives with the key collaborator; the engine
// only ever moves addresses around.
type Address struct {
	Version uint8
	Hash    []byte
}

// IsNull reports whether the address carries no hash at all.
func (a *Address) IsNull() bool {
	return len(a.Hash) == 0
}

// Equal reports whether two addresses are identical.
func (a *Address) Equal(o *Address) bool {
	return a.Version == o.Version && bytes.Equal(a.Hash, o.Hash)
}

// Clone returns a deep copy of the address.
func (a *Address) Clone() Address {
	return Address{
		Version: a.Version,
		Hash:    append([]byte(nil), a.Hash...),
	}
}

// String renders the address for log output.
func (a *Address) String() string {
	return fmt.Sprintf("v%d:%s", a.Version, hex.EncodeToString(a.Hash))
}

// Serialize writes the address as version byte plus length-prefixed hash.
func (a *Address) Serialize(w io.Writer) error {
	if _, err := w.Write([]byte{a.Version}); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, a.Hash)
}

// Deserialize reads an address written by Serialize.
func (a *Address) Deserialize(r io.Reader) error {
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return err
	}

	hash, err := wire.ReadVarBytes(r, 0, MaxAddressHashSize, "address")
	if err != nil {
		return err
	}

	a.Version = version[0]
	a.Hash = hash

	return nil
}

// SerializeSize returns the number of bytes Serialize will produce.
func (a *Address) SerializeSize() int {
	return 1 + wire.VarIntSerializeSize(uint64(len(a.Hash))) + len(a.Hash)
}

// Bytes returns the serialized address. Used for BIP69 comparisons.
func (a *Address) Bytes() []byte {
	var buf bytes.Buffer
	if err := a.Serialize(&buf); err != nil {
		panic(err)
	}

	return buf.Bytes()
}
