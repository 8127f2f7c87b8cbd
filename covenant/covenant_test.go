package covenant

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	testNameHash = bytes.Repeat([]byte{0x11}, NameHashSize)
	testAnchor   = bytes.Repeat([]byte{0x22}, AnchorSize)
	testBlind    = bytes.Repeat([]byte{0x33}, 32)
	testNonce    = bytes.Repeat([]byte{0x44}, 32)
)

// TestCovenantRoundTrip asserts that any covenant within the wire bounds
// survives a serialize/deserialize cycle byte for byte.
func TestCovenantRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		c := &Covenant{
			Type: Type(rapid.IntRange(0, 11).Draw(rt, "type")),
		}

		numItems := rapid.IntRange(0, 7).Draw(rt, "num_items")
		for i := 0; i < numItems; i++ {
			item := rapid.SliceOfN(
				rapid.Byte(), 0, 64,
			).Draw(rt, "item")
			c.Items = append(c.Items, item)
		}

		var buf bytes.Buffer
		require.NoError(rt, c.Serialize(&buf))
		encoded := buf.Bytes()

		var decoded Covenant
		require.NoError(rt, decoded.Deserialize(
			bytes.NewReader(encoded),
		))

		require.True(rt, c.Equal(&decoded))
		require.Equal(rt, encoded, decoded.Bytes())
		require.Len(rt, encoded, c.SerializeSize())
	})
}

// TestDeserializeTooManyItems asserts the decoder rejects item counts past
// the sanity bound instead of allocating for them.
func TestDeserializeTooManyItems(t *testing.T) {
	t.Parallel()

	// Type byte followed by a varint item count of 17.
	encoded := []byte{byte(TypeOpen), 17}

	var c Covenant
	err := c.Deserialize(bytes.NewReader(encoded))
	require.ErrorIs(t, err, ErrBadItems)
}

// TestTypedConstructors checks the item tuple each typed constructor
// produces, and that malformed arguments are rejected.
func TestTypedConstructors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		build    func() (*Covenant, error)
		typ      Type
		numItems int
		wantErr  bool
	}{{
		name: "open",
		build: func() (*Covenant, error) {
			return NewOpen(testNameHash, "example")
		},
		typ:      TypeOpen,
		numItems: 3,
	}, {
		name: "open short hash",
		build: func() (*Covenant, error) {
			return NewOpen(testNameHash[:16], "example")
		},
		wantErr: true,
	}, {
		name: "open empty name",
		build: func() (*Covenant, error) {
			return NewOpen(testNameHash, "")
		},
		wantErr: true,
	}, {
		name: "bid",
		build: func() (*Covenant, error) {
			return NewBid(testNameHash, 100, "example", testBlind)
		},
		typ:      TypeBid,
		numItems: 4,
	}, {
		name: "bid short blind",
		build: func() (*Covenant, error) {
			return NewBid(
				testNameHash, 100, "example", testBlind[:31],
			)
		},
		wantErr: true,
	}, {
		name: "reveal",
		build: func() (*Covenant, error) {
			return NewReveal(testNameHash, 100, testNonce)
		},
		typ:      TypeReveal,
		numItems: 3,
	}, {
		name: "redeem",
		build: func() (*Covenant, error) {
			return NewRedeem(testNameHash, 100)
		},
		typ:      TypeRedeem,
		numItems: 2,
	}, {
		name: "register",
		build: func() (*Covenant, error) {
			return NewRegister(
				testNameHash, 100, []byte{0x01}, testAnchor,
			)
		},
		typ:      TypeRegister,
		numItems: 4,
	}, {
		name: "register nil resource",
		build: func() (*Covenant, error) {
			return NewRegister(testNameHash, 100, nil, testAnchor)
		},
		typ:      TypeRegister,
		numItems: 4,
	}, {
		name: "update",
		build: func() (*Covenant, error) {
			return NewUpdate(testNameHash, 100, nil)
		},
		typ:      TypeUpdate,
		numItems: 3,
	}, {
		name: "renew",
		build: func() (*Covenant, error) {
			return NewRenew(testNameHash, 100, testAnchor)
		},
		typ:      TypeRenew,
		numItems: 3,
	}, {
		name: "renew short anchor",
		build: func() (*Covenant, error) {
			return NewRenew(testNameHash, 100, testAnchor[:8])
		},
		wantErr: true,
	}, {
		name: "transfer",
		build: func() (*Covenant, error) {
			return NewTransfer(
				testNameHash, 100, 0, testNameHash[:20],
			)
		},
		typ:      TypeTransfer,
		numItems: 4,
	}, {
		name: "transfer empty hash",
		build: func() (*Covenant, error) {
			return NewTransfer(testNameHash, 100, 0, nil)
		},
		wantErr: true,
	}, {
		name: "finalize",
		build: func() (*Covenant, error) {
			return NewFinalize(
				testNameHash, 100, "example",
				FinalizeFlagWeak, 0, 2, testAnchor,
			)
		},
		typ:      TypeFinalize,
		numItems: 7,
	}, {
		name: "revoke",
		build: func() (*Covenant, error) {
			return NewRevoke(testNameHash, 100)
		},
		typ:      TypeRevoke,
		numItems: 2,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, err := tc.build()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrBadItems)
				return
			}
			require.NoError(t, err)

			require.Equal(t, tc.typ, c.Type)
			require.Len(t, c.Items, tc.numItems)

			hash, err := c.NameHash()
			require.NoError(t, err)
			require.Equal(t, testNameHash, hash)
		})
	}
}

// TestSharedAccessors exercises the shared NameHash/Height accessors and
// their failure modes.
func TestSharedAccessors(t *testing.T) {
	t.Parallel()

	c, err := NewBid(testNameHash, 1234, "example", testBlind)
	require.NoError(t, err)

	height, err := c.Height()
	require.NoError(t, err)
	require.Equal(t, uint32(1234), height)

	// An OPEN always carries epoch zero, whatever started it.
	open, err := NewOpen(testNameHash, "example")
	require.NoError(t, err)
	height, err = open.Height()
	require.NoError(t, err)
	require.Zero(t, height)

	// Plain outputs expose neither accessor.
	none := &Covenant{Type: TypeNone}
	_, err = none.NameHash()
	require.ErrorIs(t, err, ErrBadItems)
	_, err = none.Height()
	require.ErrorIs(t, err, ErrBadItems)
}

// TestParsers round-trips the decoded views through their constructors and
// checks type confusion is rejected.
func TestParsers(t *testing.T) {
	t.Parallel()

	t.Run("bid", func(t *testing.T) {
		t.Parallel()

		c, err := NewBid(testNameHash, 77, "example", testBlind)
		require.NoError(t, err)

		bid, err := ParseBid(c)
		require.NoError(t, err)
		require.Equal(t, testNameHash, bid.NameHash)
		require.Equal(t, uint32(77), bid.Epoch)
		require.Equal(t, "example", bid.RawName)
		require.Equal(t, testBlind, bid.Blind[:])

		_, err = ParseReveal(c)
		require.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("reveal", func(t *testing.T) {
		t.Parallel()

		c, err := NewReveal(testNameHash, 78, testNonce)
		require.NoError(t, err)

		rev, err := ParseReveal(c)
		require.NoError(t, err)
		require.Equal(t, testNameHash, rev.NameHash)
		require.Equal(t, uint32(78), rev.Epoch)
		require.Equal(t, testNonce, rev.Nonce[:])

		_, err = ParseBid(c)
		require.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("transfer", func(t *testing.T) {
		t.Parallel()

		addrHash := testNameHash[:20]
		c, err := NewTransfer(testNameHash, 79, 0, addrHash)
		require.NoError(t, err)

		tr, err := ParseTransfer(c)
		require.NoError(t, err)
		require.Equal(t, testNameHash, tr.NameHash)
		require.Equal(t, uint32(79), tr.Epoch)
		require.Equal(t, uint8(0), tr.AddrVersion)
		require.Equal(t, addrHash, tr.AddrHash)

		_, err = ParseTransfer(&Covenant{Type: TypeTransfer})
		require.ErrorIs(t, err, ErrBadItems)
	})
}

// TestPredicates spot checks the lifecycle predicates per type.
func TestPredicates(t *testing.T) {
	t.Parallel()

	none := &Covenant{Type: TypeNone}
	require.False(t, none.IsName())
	require.False(t, none.IsLinked())
	require.False(t, none.IsOwnership())

	bid := &Covenant{Type: TypeBid}
	require.True(t, bid.IsName())
	require.False(t, bid.IsLinked())
	require.False(t, bid.IsOwnership())

	reveal := &Covenant{Type: TypeReveal}
	require.True(t, reveal.IsLinked())
	require.False(t, reveal.IsOwnership())

	for _, typ := range []Type{
		TypeRegister, TypeUpdate, TypeRenew, TypeTransfer,
		TypeFinalize,
	} {
		c := &Covenant{Type: typ}
		require.True(t, c.IsOwnership(), typ.String())
		require.True(t, c.IsLinked(), typ.String())
	}

	revoke := &Covenant{Type: TypeRevoke}
	require.True(t, revoke.IsLinked())
	require.False(t, revoke.IsOwnership())
}

// TestClone makes sure clones do not alias the original's item storage.
func TestClone(t *testing.T) {
	t.Parallel()

	c, err := NewRedeem(append([]byte(nil), testNameHash...), 5)
	require.NoError(t, err)

	clone := c.Clone()
	require.True(t, c.Equal(clone))

	clone.Items[0][0] ^= 0xff
	require.False(t, c.Equal(clone))
}
