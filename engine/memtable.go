package engine

import "bytes"

type memEntry struct {
	seq       uint64
	value     []byte
	tombstone bool
}

type rangeTombstone struct {
	cf    string
	start []byte
	end   []byte // exclusive
	seq   uint64
}

func (r *rangeTombstone) covers(cf string, key []byte) bool {
	return r.cf == cf &&
		bytes.Compare(r.start, key) <= 0 &&
		bytes.Compare(key, r.end) < 0
}

// memtable holds the unflushed writes: the latest point entry per key plus
// the range tombstones, all tagged with sequence numbers. It carries no
// internal lock; the owning store serializes access.
type memtable struct {
	entries map[string]memEntry
	ranges  []rangeTombstone
}

func newMemtable() *memtable {
	return &memtable{entries: make(map[string]memEntry)}
}

func (m *memtable) put(cf string, key, value []byte, seq uint64) {
	m.entries[encodeKey(cf, key)] = memEntry{seq: seq, value: value}
}

func (m *memtable) delete(cf string, key []byte, seq uint64) {
	m.entries[encodeKey(cf, key)] = memEntry{seq: seq, tombstone: true}
}

func (m *memtable) deleteRange(cf string, start, end []byte, seq uint64) {
	m.ranges = append(m.ranges, rangeTombstone{
		cf:    cf,
		start: append([]byte(nil), start...),
		end:   append([]byte(nil), end...),
		seq:   seq,
	})
}

// lookup returns the latest point entry for the key, whether one exists,
// and the highest sequence number of a range tombstone covering the key.
func (m *memtable) lookup(cf string, key []byte) (memEntry, bool, uint64) {
	entry, ok := m.entries[encodeKey(cf, key)]
	var tombSeq uint64
	for i := range m.ranges {
		if m.ranges[i].covers(cf, key) && m.ranges[i].seq > tombSeq {
			tombSeq = m.ranges[i].seq
		}
	}
	return entry, ok, tombSeq
}

func (m *memtable) empty() bool {
	return len(m.entries) == 0 && len(m.ranges) == 0
}

func (m *memtable) applyOp(op batchOp, seq uint64) {
	switch op.kind {
	case opPut:
		m.put(op.cf, op.key, op.value, seq)
	case opDelete:
		m.delete(op.cf, op.key, seq)
	case opDeleteRange:
		m.deleteRange(op.cf, op.key, op.value, seq)
	}
}
