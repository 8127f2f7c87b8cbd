package covenant

import (
	"errors"
	"fmt"
)

var (
	// ErrBadItems is returned when a covenant's item tuple does not match
	// the shape its type dictates.
	ErrBadItems = errors.New("covenant items do not match type")

	// ErrWrongType is returned when parsing a covenant as a type it does
	// not carry.
	ErrWrongType = errors.New("unexpected covenant type")
)

// badTuple wraps ErrBadItems with the offending type for log output.
func badTuple(t Type) error {
	return fmt.Errorf("%w: %v", ErrBadItems, t)
}

// NewOpen builds an OPEN covenant: (name_hash, 0, raw_name). The epoch item
// of an OPEN is always zero since the OPEN itself starts the epoch.
func NewOpen(nameHash []byte, rawName string) (*Covenant, error) {
	if len(nameHash) != NameHashSize || rawName == "" {
		return nil, badTuple(TypeOpen)
	}

	return &Covenant{
		Type:  TypeOpen,
		Items: [][]byte{nameHash, uint32LE(0), []byte(rawName)},
	}, nil
}

// NewBid builds a BID covenant: (name_hash, epoch, raw_name, blind).
func NewBid(nameHash []byte, epoch uint32, rawName string,
	blind []byte) (*Covenant, error) {

	if len(nameHash) != NameHashSize || rawName == "" ||
		len(blind) != 32 {

		return nil, badTuple(TypeBid)
	}

	return &Covenant{
		Type: TypeBid,
		Items: [][]byte{
			nameHash, uint32LE(epoch), []byte(rawName), blind,
		},
	}, nil
}

// NewReveal builds a REVEAL covenant: (name_hash, epoch, nonce).
func NewReveal(nameHash []byte, epoch uint32, nonce []byte) (*Covenant,
	error) {

	if len(nameHash) != NameHashSize || len(nonce) != 32 {
		return nil, badTuple(TypeReveal)
	}

	return &Covenant{
		Type:  TypeReveal,
		Items: [][]byte{nameHash, uint32LE(epoch), nonce},
	}, nil
}

// NewRedeem builds a REDEEM covenant: (name_hash, epoch).
func NewRedeem(nameHash []byte, epoch uint32) (*Covenant, error) {
	if len(nameHash) != NameHashSize {
		return nil, badTuple(TypeRedeem)
	}

	return &Covenant{
		Type:  TypeRedeem,
		Items: [][]byte{nameHash, uint32LE(epoch)},
	}, nil
}

// NewRegister builds a REGISTER covenant:
// (name_hash, epoch, resource, renewal_block_hash).
func NewRegister(nameHash []byte, epoch uint32, resource,
	renewalHash []byte) (*Covenant, error) {

	if len(nameHash) != NameHashSize || len(renewalHash) != AnchorSize {
		return nil, badTuple(TypeRegister)
	}
	if resource == nil {
		resource = []byte{}
	}

	return &Covenant{
		Type: TypeRegister,
		Items: [][]byte{
			nameHash, uint32LE(epoch), resource, renewalHash,
		},
	}, nil
}

// NewUpdate builds an UPDATE covenant: (name_hash, epoch, resource). An
// empty resource is legal and doubles as the CANCEL form when it replaces a
// pending transfer.
func NewUpdate(nameHash []byte, epoch uint32, resource []byte) (*Covenant,
	error) {

	if len(nameHash) != NameHashSize {
		return nil, badTuple(TypeUpdate)
	}
	if resource == nil {
		resource = []byte{}
	}

	return &Covenant{
		Type:  TypeUpdate,
		Items: [][]byte{nameHash, uint32LE(epoch), resource},
	}, nil
}

// NewRenew builds a RENEW covenant: (name_hash, epoch, renewal_block_hash).
func NewRenew(nameHash []byte, epoch uint32, renewalHash []byte) (*Covenant,
	error) {

	if len(nameHash) != NameHashSize || len(renewalHash) != AnchorSize {
		return nil, badTuple(TypeRenew)
	}

	return &Covenant{
		Type:  TypeRenew,
		Items: [][]byte{nameHash, uint32LE(epoch), renewalHash},
	}, nil
}

// NewTransfer builds a TRANSFER covenant:
// (name_hash, epoch, addr_version, addr_hash).
func NewTransfer(nameHash []byte, epoch uint32, addrVersion uint8,
	addrHash []byte) (*Covenant, error) {

	if len(nameHash) != NameHashSize || len(addrHash) == 0 {
		return nil, badTuple(TypeTransfer)
	}

	return &Covenant{
		Type: TypeTransfer,
		Items: [][]byte{
			nameHash, uint32LE(epoch), {addrVersion}, addrHash,
		},
	}, nil
}

// FinalizeFlagWeak is set in a FINALIZE's flag item when the name was a
// weakly reserved claim.
const FinalizeFlagWeak uint8 = 1 << 0

// NewFinalize builds a FINALIZE covenant:
// (name_hash, epoch, raw_name, flags, claimed, renewals,
// renewal_block_hash).
func NewFinalize(nameHash []byte, epoch uint32, rawName string, flags uint8,
	claimed, renewals uint32, renewalHash []byte) (*Covenant, error) {

	if len(nameHash) != NameHashSize || rawName == "" ||
		len(renewalHash) != AnchorSize {

		return nil, badTuple(TypeFinalize)
	}

	return &Covenant{
		Type: TypeFinalize,
		Items: [][]byte{
			nameHash, uint32LE(epoch), []byte(rawName), {flags},
			uint32LE(claimed), uint32LE(renewals), renewalHash,
		},
	}, nil
}

// NewRevoke builds a REVOKE covenant: (name_hash, epoch).
func NewRevoke(nameHash []byte, epoch uint32) (*Covenant, error) {
	if len(nameHash) != NameHashSize {
		return nil, badTuple(TypeRevoke)
	}

	return &Covenant{
		Type:  TypeRevoke,
		Items: [][]byte{nameHash, uint32LE(epoch)},
	}, nil
}

// Bid is the decoded view of a BID covenant.
type Bid struct {
	NameHash []byte
	Epoch    uint32
	RawName  string
	Blind    [32]byte
}

// ParseBid validates the item tuple of a BID covenant and returns its
// decoded view.
func ParseBid(c *Covenant) (*Bid, error) {
	if c.Type != TypeBid {
		return nil, ErrWrongType
	}
	if len(c.Items) != 4 || len(c.Items[0]) != NameHashSize ||
		len(c.Items[1]) != 4 || len(c.Items[3]) != 32 {

		return nil, badTuple(TypeBid)
	}

	bid := &Bid{
		NameHash: c.Items[0],
		RawName:  string(c.Items[2]),
	}
	epoch, err := c.Height()
	if err != nil {
		return nil, err
	}
	bid.Epoch = epoch
	copy(bid.Blind[:], c.Items[3])

	return bid, nil
}

// Reveal is the decoded view of a REVEAL covenant.
type Reveal struct {
	NameHash []byte
	Epoch    uint32
	Nonce    [32]byte
}

// ParseReveal validates the item tuple of a REVEAL covenant and returns its
// decoded view.
func ParseReveal(c *Covenant) (*Reveal, error) {
	if c.Type != TypeReveal {
		return nil, ErrWrongType
	}
	if len(c.Items) != 3 || len(c.Items[0]) != NameHashSize ||
		len(c.Items[1]) != 4 || len(c.Items[2]) != 32 {

		return nil, badTuple(TypeReveal)
	}

	rev := &Reveal{NameHash: c.Items[0]}
	epoch, err := c.Height()
	if err != nil {
		return nil, err
	}
	rev.Epoch = epoch
	copy(rev.Nonce[:], c.Items[2])

	return rev, nil
}

// Transfer is the decoded view of a TRANSFER covenant.
type Transfer struct {
	NameHash    []byte
	Epoch       uint32
	AddrVersion uint8
	AddrHash    []byte
}

// ParseTransfer validates the item tuple of a TRANSFER covenant and returns
// its decoded view.
func ParseTransfer(c *Covenant) (*Transfer, error) {
	if c.Type != TypeTransfer {
		return nil, ErrWrongType
	}
	if len(c.Items) != 4 || len(c.Items[0]) != NameHashSize ||
		len(c.Items[1]) != 4 || len(c.Items[2]) != 1 ||
		len(c.Items[3]) == 0 {

		return nil, badTuple(TypeTransfer)
	}

	epoch, err := c.Height()
	if err != nil {
		return nil, err
	}

	return &Transfer{
		NameHash:    c.Items[0],
		Epoch:       epoch,
		AddrVersion: c.Items[2][0],
		AddrHash:    c.Items[3],
	}, nil
}
