package funding

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/handshake-org/hswd/coindb"
)

// SelectionPolicy names a coin arrangement strategy.
type SelectionPolicy string

const (
	// PolicyAge spends the oldest confirmed coins first. This is the
	// default since it keeps the UTXO set compact and ages out small
	// outputs.
	PolicyAge SelectionPolicy = "age"

	// PolicyRandom shuffles candidates to decorrelate selection.
	PolicyRandom SelectionPolicy = "random"

	// PolicyAll spends every candidate regardless of the target.
	PolicyAll SelectionPolicy = "all"

	// PolicySmart behaves like age but additionally admits unconfirmed
	// coins that our own transactions produced.
	PolicySmart SelectionPolicy = "smart"
)

// Valid reports whether the policy is one of the defined strategies.
func (p SelectionPolicy) Valid() bool {
	switch p {
	case PolicyAge, PolicyRandom, PolicyAll, PolicySmart:
		return true
	}

	return false
}

// arrangeCredits filters and orders candidate credits per the policy.
// Confirmed coins are always admitted; unconfirmed ones only under the
// smart policy and only when they are our own.
func arrangeCredits(credits []*coindb.Credit,
	policy SelectionPolicy) ([]*coindb.Credit, error) {

	if !policy.Valid() {
		return nil, fmt.Errorf("unknown selection policy %q", policy)
	}

	eligible := make([]*coindb.Credit, 0, len(credits))
	for _, credit := range credits {
		if !credit.Coin.Confirmed() {
			if policy != PolicySmart || !credit.Own {
				continue
			}
		}
		eligible = append(eligible, credit)
	}

	switch policy {
	case PolicyRandom:
		rand.Shuffle(len(eligible), func(i, j int) {
			eligible[i], eligible[j] = eligible[j], eligible[i]
		})

	// Age ordering: confirmed coins first, oldest height first.
	// PolicyAll consumes everything anyway but keeps the same stable
	// order for deterministic transactions.
	default:
		sort.SliceStable(eligible, func(i, j int) bool {
			hi := eligible[i].Coin.Height
			hj := eligible[j].Coin.Height
			if hi == 0 {
				return false
			}
			if hj == 0 {
				return true
			}

			return hi < hj
		})
	}

	return eligible, nil
}
