// Package planner packs per-name actions into batch transactions under
// the wallet's output budget. Oversized request sets are split into a
// transaction-sized plan plus per-name rejections the dispatcher reports
// back to the caller.
package planner

import (
	"errors"
	"sort"

	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/hnswire"
)

var (
	// ErrBatchFull is recorded for items that did not fit the budget.
	ErrBatchFull = errors.New("batch output budget exhausted")

	// ErrEmptyItem is returned for items carrying no units.
	ErrEmptyItem = errors.New("batch item has no outputs")

	// ErrEmptyBatch is returned when nothing at all fits.
	ErrEmptyBatch = errors.New("no batch items fit the output budget")
)

// Unit is one output of a batch item, paired with the coin it must spend
// when the action is input-coupled (reveals and redeems spend their BID
// outpoints one to one; opens and bids spend nothing specific).
type Unit struct {
	Input  *coindb.Coin
	Output *hnswire.TxOut
}

// Item is the complete set of units one name contributes to a batch.
type Item struct {
	Name  string
	Units []Unit
}

// Rejection reports a name the plan could not serve in full.
type Rejection struct {
	// Name is the affected name.
	Name string

	// Err explains the rejection.
	Err error

	// Leftover counts the units left unserved. For a partially included
	// name this is less than the item's unit count.
	Leftover int
}

// Plan is a packed batch: the included items in fill order plus the
// rejections for everything that did not fit.
type Plan struct {
	Included []*Item
	Rejected []Rejection
}

// NumOutputs counts the outputs the plan contributes to the transaction.
func (p *Plan) NumOutputs() int {
	var n int
	for _, item := range p.Included {
		n += len(item.Units)
	}

	return n
}

// arrange orders items largest first so the plan serves the heaviest
// names before the budget runs out, and validates them.
func arrange(items []*Item) ([]*Item, error) {
	for _, item := range items {
		if len(item.Units) == 0 {
			return nil, ErrEmptyItem
		}
	}

	sorted := make([]*Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Units) > len(sorted[j].Units)
	})

	return sorted, nil
}

// CreateBatch packs items into a plan of at most budget outputs. The
// first item that overflows the remaining budget is included partially,
// its remainder recorded as a rejection; every later item is rejected
// whole. Partial fills are legal because each unit is independently
// valid on chain.
func CreateBatch(items []*Item, budget int) (*Plan, error) {
	sorted, err := arrange(items)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	remaining := budget
	for _, item := range sorted {
		switch {
		case remaining == 0:
			plan.Rejected = append(plan.Rejected, Rejection{
				Name:     item.Name,
				Err:      ErrBatchFull,
				Leftover: len(item.Units),
			})

		case len(item.Units) <= remaining:
			plan.Included = append(plan.Included, item)
			remaining -= len(item.Units)

		// Overflow: take the partial share that still fits.
		default:
			partial := &Item{
				Name:  item.Name,
				Units: item.Units[:remaining],
			}
			plan.Included = append(plan.Included, partial)
			plan.Rejected = append(plan.Rejected, Rejection{
				Name:     item.Name,
				Err:      ErrBatchFull,
				Leftover: len(item.Units) - remaining,
			})
			remaining = 0
		}
	}

	if len(plan.Included) == 0 {
		return nil, ErrEmptyBatch
	}

	log.Debugf("Planned batch: %d names, %d outputs, %d rejections",
		len(plan.Included), plan.NumOutputs(), len(plan.Rejected))

	return plan, nil
}

// CreateStrictBatch packs whole items only: a name is either served in
// full or rejected. Used by actions whose units are not independently
// meaningful, like multi-output transfers.
func CreateStrictBatch(items []*Item, budget int) (*Plan, error) {
	sorted, err := arrange(items)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	remaining := budget
	for _, item := range sorted {
		if len(item.Units) > remaining {
			plan.Rejected = append(plan.Rejected, Rejection{
				Name:     item.Name,
				Err:      ErrBatchFull,
				Leftover: len(item.Units),
			})

			continue
		}

		plan.Included = append(plan.Included, item)
		remaining -= len(item.Units)
	}

	if len(plan.Included) == 0 {
		return nil, ErrEmptyBatch
	}

	log.Debugf("Planned strict batch: %d names, %d outputs, "+
		"%d rejections", len(plan.Included), plan.NumOutputs(),
		len(plan.Rejected))

	return plan, nil
}
