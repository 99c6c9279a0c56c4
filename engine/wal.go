package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// walFilename is the write-ahead log file inside the engine directory.
const walFilename = "WAL"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

type walRecord struct {
	seq uint64
	op  opKind
	cf  string
	key []byte
	// value holds the put value or the exclusive range end.
	value []byte
}

func encodeWALRecord(rec walRecord) []byte {
	buf := make([]byte, 0, 16+len(rec.cf)+len(rec.key)+len(rec.value))
	buf = binary.AppendUvarint(buf, rec.seq)
	buf = append(buf, byte(rec.op))
	buf = binary.AppendUvarint(buf, uint64(len(rec.cf)))
	buf = append(buf, rec.cf...)
	buf = binary.AppendUvarint(buf, uint64(len(rec.key)))
	buf = append(buf, rec.key...)
	buf = binary.AppendUvarint(buf, uint64(len(rec.value)))
	buf = append(buf, rec.value...)
	return buf
}

func decodeWALRecord(payload []byte) (walRecord, error) {
	var rec walRecord
	seq, n := binary.Uvarint(payload)
	if n <= 0 {
		return rec, errors.New("truncated record header")
	}
	payload = payload[n:]
	if len(payload) < 1 {
		return rec, errors.New("truncated record op")
	}
	rec.seq = seq
	rec.op = opKind(payload[0])
	payload = payload[1:]

	readBytes := func() ([]byte, error) {
		l, n := binary.Uvarint(payload)
		if n <= 0 || uint64(len(payload)-n) < l {
			return nil, errors.New("truncated record field")
		}
		field := payload[n : n+int(l)]
		payload = payload[n+int(l):]
		return field, nil
	}

	cf, err := readBytes()
	if err != nil {
		return rec, err
	}
	rec.cf = string(cf)
	if rec.key, err = readBytes(); err != nil {
		return rec, err
	}
	if rec.value, err = readBytes(); err != nil {
		return rec, err
	}
	return rec, nil
}

// wal is the append-only write-ahead log. Records are framed as a 4-byte
// little-endian payload length, a 4-byte crc32c of the payload, then the
// payload. Replay stops at the first torn or corrupt frame, treating the
// tail as an interrupted write.
type wal struct {
	f    *os.File
	path string
}

// openWAL opens (creating if needed) the log at path and replays the
// existing records into fn.
func openWAL(path string, fn func(walRecord)) (*wal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open WAL: %w", err)
	}

	valid, err := replayWAL(f, fn)
	if err != nil {
		f.Close()
		return nil, err
	}
	// Drop a torn tail so new records append to a clean frame boundary.
	if err := f.Truncate(valid); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not truncate WAL tail: %w", err)
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &wal{f: f, path: path}, nil
}

// replayWAL feeds every intact record to fn and returns the offset of the
// last intact frame.
func replayWAL(f *os.File, fn func(walRecord)) (int64, error) {
	var offset int64
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			return offset, nil // clean EOF or torn header
		}
		length := binary.LittleEndian.Uint32(header[:4])
		sum := binary.LittleEndian.Uint32(header[4:])
		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			return offset, nil // torn payload
		}
		if crc32.Checksum(payload, crc32cTable) != sum {
			return offset, nil // corrupt frame, stop here
		}
		rec, err := decodeWALRecord(payload)
		if err != nil {
			return offset, nil
		}
		fn(rec)
		offset += int64(8 + len(payload))
	}
}

// append writes the records as consecutive frames, fsyncing when sync is
// set.
func (w *wal) append(recs []walRecord, sync bool) error {
	var buf []byte
	for _, rec := range recs {
		payload := encodeWALRecord(rec)
		var header [8]byte
		binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
		binary.LittleEndian.PutUint32(header[4:], crc32.Checksum(payload, crc32cTable))
		buf = append(buf, header[:]...)
		buf = append(buf, payload...)
	}
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("could not append to WAL: %w", err)
	}
	if sync {
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("could not sync WAL: %w", err)
		}
	}
	return nil
}

// reset truncates the log after its records have been made durable in a
// segment.
func (w *wal) reset() error {
	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("could not reset WAL: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return nil
}

func (w *wal) close() error {
	if w == nil || w.f == nil {
		return nil
	}
	return w.f.Close()
}
