package namestate

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/handshake-org/hswd/hnsparams"
)

func TestStateDerivation(t *testing.T) {
	t.Parallel()

	p := &hnsparams.MainNetParams

	const open = 10_000
	bidStart := open + p.OpenPeriod()
	revealStart := bidStart + p.BiddingPeriod
	closeStart := revealStart + p.RevealPeriod

	ns := &NameState{Height: open}

	testCases := []struct {
		name   string
		height uint32
		want   State
	}{
		{"at open", open, StateOpening},
		{"last opening block", bidStart - 1, StateOpening},
		{"first bidding block", bidStart, StateBidding},
		{"last bidding block", revealStart - 1, StateBidding},
		{"first reveal block", revealStart, StateReveal},
		{"last reveal block", closeStart - 1, StateReveal},
		{"first closed block", closeStart, StateClosed},
		{"long closed", closeStart + 100_000, StateClosed},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, ns.State(tc.height, p))
		})
	}

	require.Equal(t, revealStart, ns.RevealStart(p))
}

func TestStateOverrides(t *testing.T) {
	t.Parallel()

	p := &hnsparams.MainNetParams

	// A revoke pins the state regardless of the epoch windows.
	revoked := &NameState{Height: 10_000, Revoked: 12_000}
	require.Equal(t, StateRevoked, revoked.State(10_000, p))
	require.Equal(t, StateRevoked, revoked.State(500_000, p))

	// Claimed names never run an auction.
	claimed := &NameState{Height: 10_000, Claimed: 1}
	require.Equal(t, StateClosed, claimed.State(10_000, p))
}

func TestHasOwner(t *testing.T) {
	t.Parallel()

	var ns NameState
	require.False(t, ns.HasOwner())

	// A non-zero index alone is enough: output zero of the null hash
	// never exists, but index one of it would still be distinguishable.
	ns.Owner = wire.OutPoint{Index: 1}
	require.True(t, ns.HasOwner())

	var hash chainhash.Hash
	hash[0] = 0x01
	ns.Owner = wire.OutPoint{Hash: hash}
	require.True(t, ns.HasOwner())
}

func TestIsExpired(t *testing.T) {
	t.Parallel()

	p := &hnsparams.MainNetParams

	// Names that never renewed do not expire; the renewal clock only
	// starts with the first renewal event (the REGISTER).
	fresh := &NameState{Height: 10_000}
	require.False(t, fresh.IsExpired(10_000+10*p.RenewalWindow, p))

	renewed := &NameState{Height: 10_000, Renewal: 20_000}
	require.False(t, renewed.IsExpired(20_000+p.RenewalWindow-1, p))
	require.True(t, renewed.IsExpired(20_000+p.RenewalWindow, p))

	// A revoked name frees up once a full auction length has passed.
	revoked := &NameState{Height: 10_000, Revoked: 12_000}
	require.False(t, revoked.IsExpired(12_000+p.AuctionLength()-1, p))
	require.True(t, revoked.IsExpired(12_000+p.AuctionLength(), p))
}

func TestNeedsRenewal(t *testing.T) {
	t.Parallel()

	p := &hnsparams.MainNetParams

	ns := &NameState{Height: 10_000, Renewal: 20_000}
	require.False(t, ns.NeedsRenewal(20_000, p))
	require.False(t, ns.NeedsRenewal(20_000+p.TreeInterval-1, p))
	require.True(t, ns.NeedsRenewal(20_000+p.TreeInterval, p))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "OPENING", StateOpening.String())
	require.Equal(t, "BIDDING", StateBidding.String())
	require.Equal(t, "REVEAL", StateReveal.String())
	require.Equal(t, "CLOSED", StateClosed.String())
	require.Equal(t, "REVOKED", StateRevoked.String())
	require.Equal(t, "UNKNOWN(99)", State(99).String())
}
