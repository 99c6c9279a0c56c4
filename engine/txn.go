package engine

import (
	"context"
	"errors"
)

// ErrTransactionDone is returned when a committed or rolled-back
// transaction is used again.
var ErrTransactionDone = errors.New("engine: transaction already finished")

// txnStore is the transaction-capable sub-handle resolved at open time.
// All global writes route through it so transactional and plain writes
// share one commit path.
type txnStore struct {
	s *store
}

func newTxnStore(s *store) *txnStore {
	if s == nil {
		return nil
	}
	return &txnStore{s: s}
}

func (t *txnStore) write(ctx context.Context, b *WriteBatch, wo WriteOptions) error {
	return t.s.apply(ctx, b, wo)
}

// TransactionOptions configures a transaction.
type TransactionOptions struct {
	// SetSnapshot is reserved for conflict detection by the wrapped
	// transaction machinery; this layer only threads it through.
	SetSnapshot bool
}

// Transaction is an optimistic transaction: writes are buffered in a batch
// with read-your-writes visibility and applied atomically on Commit.
// A Transaction is not safe for concurrent use.
type Transaction struct {
	db      *DB
	wo      WriteOptions
	to      TransactionOptions
	batch   *WriteBatch
	overlay map[string]memEntry
	done    bool
}

// Transaction begins a transaction with default options.
func (db *DB) Transaction() *Transaction {
	return db.TransactionOpt(WriteOptions{}, TransactionOptions{})
}

// TransactionOpt begins a transaction with the given write and transaction
// options.
func (db *DB) TransactionOpt(wo WriteOptions, to TransactionOptions) *Transaction {
	return &Transaction{
		db:      db,
		wo:      wo,
		to:      to,
		batch:   NewWriteBatch(),
		overlay: make(map[string]memEntry),
	}
}

// Put buffers a write to the default column family.
func (t *Transaction) Put(key, value []byte) error {
	return t.PutCF(nil, key, value)
}

// PutCF buffers a write to cf.
func (t *Transaction) PutCF(cf *ColumnFamilyHandle, key, value []byte) error {
	if t.done {
		return ErrTransactionDone
	}
	t.batch.PutCF(cf, key, value)
	t.overlay[encodeKey(cf.familyName(), key)] = memEntry{value: append([]byte(nil), value...)}
	return nil
}

// Delete buffers a delete of the default column family's key.
func (t *Transaction) Delete(key []byte) error {
	return t.DeleteCF(nil, key)
}

// DeleteCF buffers a delete of cf's key.
func (t *Transaction) DeleteCF(cf *ColumnFamilyHandle, key []byte) error {
	if t.done {
		return ErrTransactionDone
	}
	t.batch.DeleteCF(cf, key)
	t.overlay[encodeKey(cf.familyName(), key)] = memEntry{tombstone: true}
	return nil
}

// Get reads a key with read-your-writes visibility.
func (t *Transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	return t.GetCF(ctx, nil, key)
}

// GetCF reads cf's key with read-your-writes visibility.
func (t *Transaction) GetCF(ctx context.Context, cf *ColumnFamilyHandle, key []byte) ([]byte, error) {
	if t.done {
		return nil, ErrTransactionDone
	}
	if entry, ok := t.overlay[encodeKey(cf.familyName(), key)]; ok {
		if entry.tombstone {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return t.db.GetCF(ctx, cf, key)
}

// Commit applies the buffered writes atomically through the transaction
// store.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return ErrTransactionDone
	}
	if err := t.db.checkOpen(); err != nil {
		return err
	}
	t.done = true
	return t.db.txn.write(ctx, t.batch, t.wo)
}

// Rollback discards the buffered writes.
func (t *Transaction) Rollback() error {
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	t.batch.Clear()
	t.overlay = nil
	return nil
}
