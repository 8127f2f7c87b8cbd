package coindb

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
)

// batchOp is a single deferred mutation.
type batchOp struct {
	// put holds the credit for put operations, nil for deletes.
	put *Credit

	// del holds the outpoint for delete operations.
	del wire.OutPoint
}

// CachedBatch records intended credit mutations and applies them in two
// phases: first to the database inside a single walletdb transaction, then
// to the in-memory index only once that transaction has committed. A failed
// database write therefore leaves the index exactly as it was.
type CachedBatch struct {
	store *Store
	ops   []batchOp
}

// Batch starts an empty batch against the store.
func (s *Store) Batch() *CachedBatch {
	return &CachedBatch{store: s}
}

// PutCredit records an insert-or-replace of the credit.
func (b *CachedBatch) PutCredit(c *Credit) {
	b.ops = append(b.ops, batchOp{put: c.Clone()})
}

// DelCredit records removal of the credit at the outpoint.
func (b *CachedBatch) DelCredit(op wire.OutPoint) {
	b.ops = append(b.ops, batchOp{del: op})
}

// SpendCredit records marking the credit at the outpoint as committed to a
// pending transaction. Returns ErrNoCredit if the outpoint is unknown.
func (b *CachedBatch) SpendCredit(op wire.OutPoint) error {
	credit, err := b.store.index.GetCredit(op)
	if err != nil {
		return err
	}
	credit.Spent = true
	b.PutCredit(credit)

	return nil
}

// Len returns the number of recorded operations.
func (b *CachedBatch) Len() int {
	return len(b.ops)
}

// Write applies the batch: database first, then memory. The extra closure,
// when non-nil, runs inside the same database transaction so callers can
// couple unrelated writes (e.g. blind records) to the batch atomically.
func (b *CachedBatch) Write(extra func(tx walletdb.ReadWriteTx) error) error {
	err := walletdb.Update(b.store.db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(namespaceKey)
		credits := ns.NestedReadWriteBucket(bucketCredits)
		acctIdx := ns.NestedReadWriteBucket(bucketAcctIndex)

		for _, op := range b.ops {
			if op.put != nil {
				c := op.put

				var buf bytes.Buffer
				if err := c.serialize(&buf); err != nil {
					return err
				}

				k := creditKey(c.Coin.Outpoint)
				if err := credits.Put(
					k, buf.Bytes(),
				); err != nil {
					return err
				}

				ak := acctKey(
					c.Coin.Account, c.Coin.Outpoint,
				)
				if err := acctIdx.Put(ak, nil); err != nil {
					return err
				}

				continue
			}

			// Deleting from the account index requires the old
			// credit's account, which may only live in memory.
			old, err := b.store.index.GetCredit(op.del)
			if err == nil {
				ak := acctKey(old.Coin.Account, op.del)
				if err := acctIdx.Delete(ak); err != nil {
					return err
				}
			}

			if err := credits.Delete(
				creditKey(op.del),
			); err != nil {
				return err
			}
		}

		if extra != nil {
			return extra(tx)
		}

		return nil
	})
	if err != nil {
		log.Errorf("Credit batch of %d ops aborted: %v",
			len(b.ops), err)

		return err
	}

	// The database transaction committed; it is now safe to mutate the
	// index.
	idx := b.store.index
	idx.mtx.Lock()
	for _, op := range b.ops {
		if op.put != nil {
			idx.del(op.put.Coin.Outpoint)
			idx.put(op.put)

			continue
		}
		idx.del(op.del)
	}
	idx.mtx.Unlock()

	return nil
}
