package engine

import "encoding/binary"

type opKind byte

const (
	opPut opKind = iota + 1
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind opKind
	cf   string
	key  []byte
	// value holds the value for puts and the exclusive range end for range
	// deletes.
	value []byte
}

// WriteBatch collects writes that are applied atomically under one
// sequence-number block. A batch is not safe for concurrent use.
type WriteBatch struct {
	ops []batchOp
}

// NewWriteBatch creates an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put records a put against the default column family.
func (b *WriteBatch) Put(key, value []byte) {
	b.PutCF(nil, key, value)
}

// PutCF records a put against cf. A nil handle targets the default column
// family.
func (b *WriteBatch) PutCF(cf *ColumnFamilyHandle, key, value []byte) {
	b.ops = append(b.ops, batchOp{
		kind:  opPut,
		cf:    cf.familyName(),
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete records a point delete against the default column family.
func (b *WriteBatch) Delete(key []byte) {
	b.DeleteCF(nil, key)
}

// DeleteCF records a point delete against cf.
func (b *WriteBatch) DeleteCF(cf *ColumnFamilyHandle, key []byte) {
	b.ops = append(b.ops, batchOp{
		kind: opDelete,
		cf:   cf.familyName(),
		key:  append([]byte(nil), key...),
	})
}

// DeleteRangeCF records a range delete of ["from", "to") against cf.
func (b *WriteBatch) DeleteRangeCF(cf *ColumnFamilyHandle, from, to []byte) {
	b.ops = append(b.ops, batchOp{
		kind:  opDeleteRange,
		cf:    cf.familyName(),
		key:   append([]byte(nil), from...),
		value: append([]byte(nil), to...),
	})
}

// Len returns the number of operations in the batch.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}

// Clear empties the batch for reuse.
func (b *WriteBatch) Clear() {
	b.ops = b.ops[:0]
}

// encodeKey prefixes key with the column family name so all families share
// one keyspace: uvarint(len(cf)) || cf || key.
func encodeKey(cf string, key []byte) string {
	buf := make([]byte, 0, binary.MaxVarintLen32+len(cf)+len(key))
	buf = binary.AppendUvarint(buf, uint64(len(cf)))
	buf = append(buf, cf...)
	buf = append(buf, key...)
	return string(buf)
}
