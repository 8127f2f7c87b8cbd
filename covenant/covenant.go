package covenant

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// Type is the numeric covenant type carried on the wire.
type Type uint8

const (
	// TypeNone marks a plain spendable output with no naming semantics.
	TypeNone Type = 0

	// TypeClaim commits a reserved name claim to the chain.
	TypeClaim Type = 1

	// TypeOpen starts an auction epoch for a name.
	TypeOpen Type = 2

	// TypeBid locks funds behind a blinded commitment during bidding.
	TypeBid Type = 3

	// TypeReveal opens a blind commitment during the reveal period.
	TypeReveal Type = 4

	// TypeRedeem releases the lockup of a losing reveal.
	TypeRedeem Type = 5

	// TypeRegister pays the second price and publishes the first
	// resource.
	TypeRegister Type = 6

	// TypeUpdate replaces the published resource.
	TypeUpdate Type = 7

	// TypeRenew extends the name's validity window.
	TypeRenew Type = 8

	// TypeTransfer begins moving ownership to a new address.
	TypeTransfer Type = 9

	// TypeFinalize completes a transfer after the lockup elapses.
	TypeFinalize Type = 10

	// TypeRevoke burns the name until the epoch ends.
	TypeRevoke Type = 11
)

// String returns the canonical upper-case name of the covenant type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeClaim:
		return "CLAIM"
	case TypeOpen:
		return "OPEN"
	case TypeBid:
		return "BID"
	case TypeReveal:
		return "REVEAL"
	case TypeRedeem:
		return "REDEEM"
	case TypeRegister:
		return "REGISTER"
	case TypeUpdate:
		return "UPDATE"
	case TypeRenew:
		return "RENEW"
	case TypeTransfer:
		return "TRANSFER"
	case TypeFinalize:
		return "FINALIZE"
	case TypeRevoke:
		return "REVOKE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

const (
	// maxItems bounds the number of items any covenant may carry. The
	// largest covenant defined by consensus (FINALIZE) carries seven.
	maxItems = 16

	// maxItemSize bounds the size of a single covenant item. Resources
	// are the largest legal item.
	maxItemSize = 1024

	// NameHashSize is the size of a name hash item.
	NameHashSize = 32

	// AnchorSize is the size of a renewal block anchor item.
	AnchorSize = 32
)

// Covenant is the wire form of the typed side-data attached to an output: a
// type tag plus an ordered list of byte items whose shape is dictated by the
// type. Instances should be produced through the typed constructors in this
// package so the item tuple is correct by construction.
type Covenant struct {
	Type  Type
	Items [][]byte
}

// IsName reports whether the covenant participates in the naming state
// machine at all.
func (c *Covenant) IsName() bool {
	return c.Type != TypeNone
}

// IsLinked reports whether the covenant must spend an existing naming output
// (everything past BID in the lifecycle).
func (c *Covenant) IsLinked() bool {
	return c.Type >= TypeReveal
}

// IsOwnership reports whether an output carrying this covenant represents
// current ownership of a closed name.
func (c *Covenant) IsOwnership() bool {
	switch c.Type {
	case TypeRegister, TypeUpdate, TypeRenew, TypeTransfer, TypeFinalize:
		return true
	}

	return false
}

// NameHash returns the name hash item shared by every naming covenant.
func (c *Covenant) NameHash() ([]byte, error) {
	if !c.IsName() || len(c.Items) == 0 {
		return nil, ErrBadItems
	}
	if len(c.Items[0]) != NameHashSize {
		return nil, ErrBadItems
	}

	return c.Items[0], nil
}

// Height returns the epoch height item shared by every naming covenant.
func (c *Covenant) Height() (uint32, error) {
	if !c.IsName() || len(c.Items) < 2 {
		return 0, ErrBadItems
	}
	if len(c.Items[1]) != 4 {
		return 0, ErrBadItems
	}

	return binary.LittleEndian.Uint32(c.Items[1]), nil
}

// Clone returns a deep copy of the covenant.
func (c *Covenant) Clone() *Covenant {
	items := make([][]byte, len(c.Items))
	for i, item := range c.Items {
		items[i] = append([]byte(nil), item...)
	}

	return &Covenant{Type: c.Type, Items: items}
}

// Equal reports whether two covenants serialize to the same bytes.
func (c *Covenant) Equal(o *Covenant) bool {
	if c.Type != o.Type || len(c.Items) != len(o.Items) {
		return false
	}
	for i := range c.Items {
		if !bytes.Equal(c.Items[i], o.Items[i]) {
			return false
		}
	}

	return true
}

// Serialize writes the covenant in its consensus encoding: a one byte type,
// a varint item count, then each item as length-prefixed bytes.
func (c *Covenant) Serialize(w io.Writer) error {
	if _, err := w.Write([]byte{byte(c.Type)}); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, 0, uint64(len(c.Items))); err != nil {
		return err
	}
	for _, item := range c.Items {
		if err := wire.WriteVarBytes(w, 0, item); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize reads a covenant from its consensus encoding.
func (c *Covenant) Deserialize(r io.Reader) error {
	var typ [1]byte
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return err
	}

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if count > maxItems {
		return ErrBadItems
	}

	items := make([][]byte, count)
	for i := range items {
		item, err := wire.ReadVarBytes(r, 0, maxItemSize, "item")
		if err != nil {
			return err
		}
		items[i] = item
	}

	c.Type = Type(typ[0])
	c.Items = items

	return nil
}

// Bytes returns the serialized covenant.
func (c *Covenant) Bytes() []byte {
	var buf bytes.Buffer
	if err := c.Serialize(&buf); err != nil {
		// Writing to a bytes.Buffer cannot fail.
		panic(err)
	}

	return buf.Bytes()
}

// SerializeSize returns the number of bytes Serialize will produce.
func (c *Covenant) SerializeSize() int {
	size := 1 + wire.VarIntSerializeSize(uint64(len(c.Items)))
	for _, item := range c.Items {
		size += wire.VarIntSerializeSize(uint64(len(item)))
		size += len(item)
	}

	return size
}

func uint32LE(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)

	return b[:]
}
