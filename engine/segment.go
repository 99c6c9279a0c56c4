package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/google/uuid"
)

// segmentPrefix names segment files: seg-<seq>-<epoch uuid>. The
// zero-padded hex sequence number makes lexicographic name order equal
// write order.
const segmentPrefix = "seg-"

var segmentMagic = []byte("DSEG1")

func segmentName(seq uint64) string {
	return fmt.Sprintf("%s%016x-%s", segmentPrefix, seq, uuid.NewString())
}

// segment is one immutable sorted run flushed from a memtable. Segments are
// small enough at this layer to be held decoded in memory; the file is the
// durable form mirrored through the storage environment.
type segment struct {
	name    string
	entries map[string]memEntry
	ranges  []rangeTombstone
	maxSeq  uint64
}

// buildSegment snapshots a memtable into a segment.
func buildSegment(name string, mem *memtable) *segment {
	s := &segment{
		name:    name,
		entries: make(map[string]memEntry, len(mem.entries)),
		ranges:  append([]rangeTombstone(nil), mem.ranges...),
	}
	for key, entry := range mem.entries {
		s.entries[key] = entry
		if entry.seq > s.maxSeq {
			s.maxSeq = entry.seq
		}
	}
	for i := range s.ranges {
		if s.ranges[i].seq > s.maxSeq {
			s.maxSeq = s.ranges[i].seq
		}
	}
	return s
}

// lookup mirrors memtable.lookup over the segment's contents.
func (s *segment) lookup(cf string, key []byte) (memEntry, bool, uint64) {
	entry, ok := s.entries[encodeKey(cf, key)]
	var tombSeq uint64
	for i := range s.ranges {
		if s.ranges[i].covers(cf, key) && s.ranges[i].seq > tombSeq {
			tombSeq = s.ranges[i].seq
		}
	}
	return entry, ok, tombSeq
}

// encode serializes the segment: magic, entry count, sorted entries, range
// tombstone count, tombstones, then a crc32c of everything before it.
func (s *segment) encode() []byte {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buf := append([]byte(nil), segmentMagic...)
	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, key := range keys {
		entry := s.entries[key]
		buf = binary.AppendUvarint(buf, uint64(len(key)))
		buf = append(buf, key...)
		buf = binary.AppendUvarint(buf, entry.seq)
		if entry.tombstone {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.AppendUvarint(buf, uint64(len(entry.value)))
		buf = append(buf, entry.value...)
	}
	buf = binary.AppendUvarint(buf, uint64(len(s.ranges)))
	for _, r := range s.ranges {
		buf = binary.AppendUvarint(buf, uint64(len(r.cf)))
		buf = append(buf, r.cf...)
		buf = binary.AppendUvarint(buf, uint64(len(r.start)))
		buf = append(buf, r.start...)
		buf = binary.AppendUvarint(buf, uint64(len(r.end)))
		buf = append(buf, r.end...)
		buf = binary.AppendUvarint(buf, r.seq)
	}

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc32.Checksum(buf, crc32cTable))
	return append(buf, sum[:]...)
}

// writeFile persists the segment atomically: write to a temp file, fsync,
// rename into place.
func (s *segment) writeFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not create segment file: %w", err)
	}
	if _, err := f.Write(s.encode()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not write segment file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func decodeSegment(name string, data []byte) (*segment, error) {
	if len(data) < len(segmentMagic)+4 {
		return nil, errors.New("segment too short")
	}
	body, sum := data[:len(data)-4], data[len(data)-4:]
	if crc32.Checksum(body, crc32cTable) != binary.LittleEndian.Uint32(sum) {
		return nil, errors.New("segment checksum mismatch")
	}
	for i := range segmentMagic {
		if body[i] != segmentMagic[i] {
			return nil, errors.New("segment magic mismatch")
		}
	}
	body = body[len(segmentMagic):]

	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(body)
		if n <= 0 {
			return 0, errors.New("truncated segment")
		}
		body = body[n:]
		return v, nil
	}
	readBytes := func() ([]byte, error) {
		l, err := readUvarint()
		if err != nil || uint64(len(body)) < l {
			return nil, errors.New("truncated segment")
		}
		field := append([]byte(nil), body[:l]...)
		body = body[l:]
		return field, nil
	}

	s := &segment{name: name, entries: make(map[string]memEntry)}

	entryCount, err := readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < entryCount; i++ {
		key, err := readBytes()
		if err != nil {
			return nil, err
		}
		seq, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if len(body) < 1 {
			return nil, errors.New("truncated segment")
		}
		tombstone := body[0] == 1
		body = body[1:]
		value, err := readBytes()
		if err != nil {
			return nil, err
		}
		s.entries[string(key)] = memEntry{seq: seq, value: value, tombstone: tombstone}
		if seq > s.maxSeq {
			s.maxSeq = seq
		}
	}

	rangeCount, err := readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < rangeCount; i++ {
		cf, err := readBytes()
		if err != nil {
			return nil, err
		}
		start, err := readBytes()
		if err != nil {
			return nil, err
		}
		end, err := readBytes()
		if err != nil {
			return nil, err
		}
		seq, err := readUvarint()
		if err != nil {
			return nil, err
		}
		s.ranges = append(s.ranges, rangeTombstone{
			cf: string(cf), start: start, end: end, seq: seq,
		})
		if seq > s.maxSeq {
			s.maxSeq = seq
		}
	}
	return s, nil
}

func loadSegment(name, path string) (*segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read segment %q: %w", name, err)
	}
	s, err := decodeSegment(name, data)
	if err != nil {
		return nil, fmt.Errorf("could not decode segment %q: %w", name, err)
	}
	return s, nil
}
