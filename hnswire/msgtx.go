package hnswire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/blake2b"

	"github.com/handshake-org/hswd/covenant"
)

// ErrTxTooLarge is returned while decoding when a count field exceeds the
// package's sanity bounds.
var ErrTxTooLarge = errors.New("transaction exceeds sanity bounds")

// writeOutPoint writes an outpoint as the 32 byte txid followed by a little
// endian output index.
func writeOutPoint(w io.Writer, op *wire.OutPoint) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}

	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], op.Index)
	_, err := w.Write(idx[:])

	return err
}

// readOutPoint reads an outpoint written by writeOutPoint.
func readOutPoint(r io.Reader, op *wire.OutPoint) error {
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return err
	}

	var idx [4]byte
	if _, err := io.ReadFull(r, idx[:]); err != nil {
		return err
	}
	op.Index = binary.LittleEndian.Uint32(idx[:])

	return nil
}

const (
	// TxVersion is the only transaction version the engine produces.
	TxVersion uint32 = 0

	// MaxWitnessItems bounds the witness stack of a single input.
	MaxWitnessItems = 64

	// MaxWitnessItemSize bounds a single witness stack item.
	MaxWitnessItemSize = 4000

	// maxTxInputs is a sanity bound applied while decoding.
	maxTxInputs = 8192

	// maxTxOutputs is a sanity bound applied while decoding.
	maxTxOutputs = 8192
)

// TxIn is a transaction input: the outpoint being spent, a sequence number
// and a per-input witness stack.
type TxIn struct {
	PrevOutPoint wire.OutPoint
	Sequence     uint32
	Witness      [][]byte
}

// NewTxIn builds an input spending the given outpoint with the final
// sequence number.
func NewTxIn(op wire.OutPoint) *TxIn {
	return &TxIn{
		PrevOutPoint: op,
		Sequence:     0xffffffff,
	}
}

// TxOut is a transaction output: a value, a destination address and the
// covenant constraining future spends.
type TxOut struct {
	Value    btcutil.Amount
	Address  Address
	Covenant *covenant.Covenant
}

// NewTxOut builds an output. A nil covenant is normalized to TypeNone so
// serialization never sees a nil pointer.
func NewTxOut(value btcutil.Amount, addr Address,
	cov *covenant.Covenant) *TxOut {

	if cov == nil {
		cov = &covenant.Covenant{Type: covenant.TypeNone}
	}

	return &TxOut{Value: value, Address: addr, Covenant: cov}
}

// Clone returns a deep copy of the output.
func (o *TxOut) Clone() *TxOut {
	return &TxOut{
		Value:    o.Value,
		Address:  o.Address.Clone(),
		Covenant: o.Covenant.Clone(),
	}
}

// MsgTx is a Handshake transaction. Witness data is carried per input but
// excluded from the transaction id, mirroring the consensus wire format.
type MsgTx struct {
	Version  uint32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// NewMsgTx returns an empty transaction at the engine's version.
func NewMsgTx() *MsgTx {
	return &MsgTx{Version: TxVersion}
}

// AddTxIn appends an input.
func (tx *MsgTx) AddTxIn(in *TxIn) {
	tx.TxIn = append(tx.TxIn, in)
}

// AddTxOut appends an output.
func (tx *MsgTx) AddTxOut(out *TxOut) {
	tx.TxOut = append(tx.TxOut, out)
}

// TotalOut sums the output values.
func (tx *MsgTx) TotalOut() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range tx.TxOut {
		total += out.Value
	}

	return total
}

// serialize writes the transaction. Witness stacks are only included when
// withWitness is set; the txid commits to the witnessless form.
func (tx *MsgTx) serialize(w io.Writer, withWitness bool) error {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], tx.Version)
	if _, err := w.Write(scratch[:]); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(tx.TxIn))); err != nil {
		return err
	}
	for _, in := range tx.TxIn {
		if err := writeOutPoint(w, &in.PrevOutPoint); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(scratch[:], in.Sequence)
		if _, err := w.Write(scratch[:]); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(tx.TxOut))); err != nil {
		return err
	}
	for _, out := range tx.TxOut {
		var value [8]byte
		binary.LittleEndian.PutUint64(value[:], uint64(out.Value))
		if _, err := w.Write(value[:]); err != nil {
			return err
		}
		if err := out.Address.Serialize(w); err != nil {
			return err
		}
		if err := out.Covenant.Serialize(w); err != nil {
			return err
		}
	}

	binary.LittleEndian.PutUint32(scratch[:], tx.LockTime)
	if _, err := w.Write(scratch[:]); err != nil {
		return err
	}

	if !withWitness {
		return nil
	}

	for _, in := range tx.TxIn {
		err := wire.WriteVarInt(w, 0, uint64(len(in.Witness)))
		if err != nil {
			return err
		}
		for _, item := range in.Witness {
			if err := wire.WriteVarBytes(w, 0, item); err != nil {
				return err
			}
		}
	}

	return nil
}

// Serialize writes the full transaction including witness stacks.
func (tx *MsgTx) Serialize(w io.Writer) error {
	return tx.serialize(w, true)
}

// SerializeNoWitness writes the witnessless form the txid commits to.
func (tx *MsgTx) SerializeNoWitness(w io.Writer) error {
	return tx.serialize(w, false)
}

// Deserialize reads a transaction written by Serialize.
func (tx *MsgTx) Deserialize(r io.Reader) error {
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return err
	}
	tx.Version = binary.LittleEndian.Uint32(scratch[:])

	inCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if inCount > maxTxInputs {
		return ErrTxTooLarge
	}
	tx.TxIn = make([]*TxIn, inCount)
	for i := range tx.TxIn {
		in := new(TxIn)
		if err := readOutPoint(r, &in.PrevOutPoint); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return err
		}
		in.Sequence = binary.LittleEndian.Uint32(scratch[:])
		tx.TxIn[i] = in
	}

	outCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if outCount > maxTxOutputs {
		return ErrTxTooLarge
	}
	tx.TxOut = make([]*TxOut, outCount)
	for i := range tx.TxOut {
		out := new(TxOut)
		var value [8]byte
		if _, err := io.ReadFull(r, value[:]); err != nil {
			return err
		}
		out.Value = btcutil.Amount(
			binary.LittleEndian.Uint64(value[:]),
		)
		if err := out.Address.Deserialize(r); err != nil {
			return err
		}
		out.Covenant = new(covenant.Covenant)
		if err := out.Covenant.Deserialize(r); err != nil {
			return err
		}
		tx.TxOut[i] = out
	}

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return err
	}
	tx.LockTime = binary.LittleEndian.Uint32(scratch[:])

	for _, in := range tx.TxIn {
		count, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return err
		}
		if count > MaxWitnessItems {
			return ErrTxTooLarge
		}
		in.Witness = make([][]byte, count)
		for i := range in.Witness {
			item, err := wire.ReadVarBytes(
				r, 0, MaxWitnessItemSize, "witness",
			)
			if err != nil {
				return err
			}
			in.Witness[i] = item
		}
	}

	return nil
}

// TxHash computes the transaction id: a BLAKE2b-256 digest of the
// witnessless serialization.
func (tx *MsgTx) TxHash() chainhash.Hash {
	var buf bytes.Buffer
	if err := tx.SerializeNoWitness(&buf); err != nil {
		panic(err)
	}

	digest := blake2b.Sum256(buf.Bytes())

	var hash chainhash.Hash
	copy(hash[:], digest[:])

	return hash
}

// WitnessHash computes a digest of the full serialization including
// witnesses.
func (tx *MsgTx) WitnessHash() chainhash.Hash {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		panic(err)
	}

	digest := blake2b.Sum256(buf.Bytes())

	var hash chainhash.Hash
	copy(hash[:], digest[:])

	return hash
}

// SerializeSize returns the byte size of the witnessless form.
func (tx *MsgTx) SerializeSize() int {
	size := 4 + 4
	size += wire.VarIntSerializeSize(uint64(len(tx.TxIn)))
	size += len(tx.TxIn) * (chainhash.HashSize + 4 + 4)
	size += wire.VarIntSerializeSize(uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		size += 8
		size += out.Address.SerializeSize()
		size += out.Covenant.SerializeSize()
	}

	return size
}

// WitnessSize returns the byte size of the witness section alone.
func (tx *MsgTx) WitnessSize() int {
	var size int
	for _, in := range tx.TxIn {
		size += wire.VarIntSerializeSize(uint64(len(in.Witness)))
		for _, item := range in.Witness {
			size += wire.VarIntSerializeSize(uint64(len(item)))
			size += len(item)
		}
	}

	return size
}

// Weight returns the consensus weight of the transaction: base size times
// four plus one weight unit per witness byte, matching segwit accounting.
func (tx *MsgTx) Weight() int64 {
	base := int64(tx.SerializeSize())
	witness := int64(tx.WitnessSize())

	return base*4 + witness
}

// SortMembers performs a BIP69-style canonical ordering: inputs by
// (txid, index), outputs by (value, address bytes, covenant bytes). Funding
// applies this unless the caller opts out.
func (tx *MsgTx) SortMembers() {
	sort.SliceStable(tx.TxIn, func(i, j int) bool {
		a, b := tx.TxIn[i].PrevOutPoint, tx.TxIn[j].PrevOutPoint
		if cmp := bytes.Compare(a.Hash[:], b.Hash[:]); cmp != 0 {
			return cmp < 0
		}

		return a.Index < b.Index
	})

	sort.SliceStable(tx.TxOut, func(i, j int) bool {
		a, b := tx.TxOut[i], tx.TxOut[j]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		if cmp := bytes.Compare(
			a.Address.Bytes(), b.Address.Bytes(),
		); cmp != 0 {
			return cmp < 0
		}

		return bytes.Compare(
			a.Covenant.Bytes(), b.Covenant.Bytes(),
		) < 0
	})
}

// Copy returns a deep copy of the transaction.
func (tx *MsgTx) Copy() *MsgTx {
	cp := &MsgTx{
		Version:  tx.Version,
		LockTime: tx.LockTime,
		TxIn:     make([]*TxIn, len(tx.TxIn)),
		TxOut:    make([]*TxOut, len(tx.TxOut)),
	}
	for i, in := range tx.TxIn {
		witness := make([][]byte, len(in.Witness))
		for j, item := range in.Witness {
			witness[j] = append([]byte(nil), item...)
		}
		cp.TxIn[i] = &TxIn{
			PrevOutPoint: in.PrevOutPoint,
			Sequence:     in.Sequence,
			Witness:      witness,
		}
	}
	for i, out := range tx.TxOut {
		cp.TxOut[i] = out.Clone()
	}

	return cp
}
