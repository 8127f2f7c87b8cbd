package coindb

import (
	"bytes"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/handshake-org/hswd/covenant"
)

// CoinIndex is the in-memory mirror of the credit bucket: a primary index
// keyed by outpoint and a secondary index keyed by account. Mutations only
// happen through a CachedBatch after its database write commits.
type CoinIndex struct {
	mtx sync.RWMutex

	// creditsByOutpoint maps txid -> output index -> credit.
	creditsByOutpoint map[chainhash.Hash]map[uint32]*Credit

	// creditsByAccount maps account -> txid -> set of output indexes.
	creditsByAccount map[uint32]map[chainhash.Hash]map[uint32]struct{}
}

func newCoinIndex() *CoinIndex {
	return &CoinIndex{
		creditsByOutpoint: make(
			map[chainhash.Hash]map[uint32]*Credit,
		),
		creditsByAccount: make(
			map[uint32]map[chainhash.Hash]map[uint32]struct{},
		),
	}
}

// put installs a credit in both indexes. Callers hold the write lock.
func (ci *CoinIndex) put(c *Credit) {
	op := c.Coin.Outpoint

	outputs, ok := ci.creditsByOutpoint[op.Hash]
	if !ok {
		outputs = make(map[uint32]*Credit)
		ci.creditsByOutpoint[op.Hash] = outputs
	}
	outputs[op.Index] = c

	txns, ok := ci.creditsByAccount[c.Coin.Account]
	if !ok {
		txns = make(map[chainhash.Hash]map[uint32]struct{})
		ci.creditsByAccount[c.Coin.Account] = txns
	}
	indexes, ok := txns[op.Hash]
	if !ok {
		indexes = make(map[uint32]struct{})
		txns[op.Hash] = indexes
	}
	indexes[op.Index] = struct{}{}
}

// del removes a credit from both indexes. Callers hold the write lock.
func (ci *CoinIndex) del(op wire.OutPoint) {
	outputs, ok := ci.creditsByOutpoint[op.Hash]
	if !ok {
		return
	}

	credit, ok := outputs[op.Index]
	if !ok {
		return
	}

	delete(outputs, op.Index)
	if len(outputs) == 0 {
		delete(ci.creditsByOutpoint, op.Hash)
	}

	acct := credit.Coin.Account
	if txns, ok := ci.creditsByAccount[acct]; ok {
		if indexes, ok := txns[op.Hash]; ok {
			delete(indexes, op.Index)
			if len(indexes) == 0 {
				delete(txns, op.Hash)
			}
		}
		if len(txns) == 0 {
			delete(ci.creditsByAccount, acct)
		}
	}
}

// Len returns the number of indexed credits.
func (ci *CoinIndex) Len() int {
	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	var n int
	for _, outputs := range ci.creditsByOutpoint {
		n += len(outputs)
	}

	return n
}

// GetCredit returns a defensive copy of the credit for the outpoint, or
// ErrNoCredit.
func (ci *CoinIndex) GetCredit(op wire.OutPoint) (*Credit, error) {
	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	outputs, ok := ci.creditsByOutpoint[op.Hash]
	if !ok {
		return nil, ErrNoCredit
	}
	credit, ok := outputs[op.Index]
	if !ok {
		return nil, ErrNoCredit
	}

	return credit.Clone(), nil
}

// HasCoin reports whether a credit exists for the outpoint.
func (ci *CoinIndex) HasCoin(op wire.OutPoint) bool {
	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	outputs, ok := ci.creditsByOutpoint[op.Hash]
	if !ok {
		return false
	}
	_, ok = outputs[op.Index]

	return ok
}

// HasCoinByAccount reports whether a credit exists for the outpoint under
// the given account.
func (ci *CoinIndex) HasCoinByAccount(account uint32,
	op wire.OutPoint) bool {

	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	txns, ok := ci.creditsByAccount[account]
	if !ok {
		return false
	}
	indexes, ok := txns[op.Hash]
	if !ok {
		return false
	}
	_, ok = indexes[op.Index]

	return ok
}

// CreditsForAccount returns defensive copies of every credit owned by the
// account.
func (ci *CoinIndex) CreditsForAccount(account uint32) []*Credit {
	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	txns := ci.creditsByAccount[account]
	credits := make([]*Credit, 0, len(txns))
	for txid, indexes := range txns {
		outputs := ci.creditsByOutpoint[txid]
		for index := range indexes {
			if credit, ok := outputs[index]; ok {
				credits = append(credits, credit.Clone())
			}
		}
	}

	return credits
}

// OutpointsForAccount returns every outpoint owned by the account.
func (ci *CoinIndex) OutpointsForAccount(account uint32) []wire.OutPoint {
	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	txns := ci.creditsByAccount[account]
	var ops []wire.OutPoint
	for txid, indexes := range txns {
		for index := range indexes {
			ops = append(ops, wire.OutPoint{
				Hash:  txid,
				Index: index,
			})
		}
	}

	return ops
}

// CreditsByName returns copies of every credit whose covenant carries the
// given type and name hash. Used to enumerate a name's bids and reveals.
func (ci *CoinIndex) CreditsByName(typ covenant.Type,
	nameHash []byte) []*Credit {

	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	var credits []*Credit
	for _, outputs := range ci.creditsByOutpoint {
		for _, credit := range outputs {
			cov := credit.Coin.Covenant
			if cov.Type != typ {
				continue
			}
			hash, err := cov.NameHash()
			if err != nil || !bytes.Equal(hash, nameHash) {
				continue
			}
			credits = append(credits, credit.Clone())
		}
	}

	return credits
}

// CreditsByType returns copies of every credit whose covenant carries the
// given type, grouped by name hash. Used by the reveal-all and redeem-all
// flows.
func (ci *CoinIndex) CreditsByType(
	typ covenant.Type) map[string][]*Credit {

	ci.mtx.RLock()
	defer ci.mtx.RUnlock()

	grouped := make(map[string][]*Credit)
	for _, outputs := range ci.creditsByOutpoint {
		for _, credit := range outputs {
			cov := credit.Coin.Covenant
			if cov.Type != typ {
				continue
			}
			hash, err := cov.NameHash()
			if err != nil {
				continue
			}
			key := string(hash)
			grouped[key] = append(grouped[key], credit.Clone())
		}
	}

	return grouped
}
