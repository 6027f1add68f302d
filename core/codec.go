package core

import (
	"encoding/binary"
	"errors"
	"io"
)

// tombstoneValue is the reserved sentinel written as a record's value to
// mark a logical delete. A user-supplied value byte-equal to this sentinel
// is indistinguishable from a delete; this revision does not carry a
// separate out-of-band tombstone flag.
const tombstoneValue = "%_%_%_%<!(R|E|M|O|V|E|D)!>%_%_%_%_"

func isTombstone(value []byte) bool {
	return string(value) == tombstoneValue
}

// record is the decoded form of one data-segment entry.
type record struct {
	timestamp uint64
	key       []byte
	value     []byte
}

// encodedLen returns the on-disk length of a record with the given key and
// value sizes, without allocating.
func encodedLen(keyLen, valLen int) int {
	return 8 + 8 + keyLen + 8 + valLen
}

// encodeRecord serializes (timestamp, key, value) into the canonical
// layout: [timestamp u64][keyLen u64][key][valLen u64][value]. All
// fixed-width integers are little-endian. The layout is self-delimiting:
// a reader positioned at byte 0 can decode the record and land exactly at
// the start of the next one.
func encodeRecord(timestamp uint64, key, value []byte) []byte {
	buf := make([]byte, encodedLen(len(key), len(value)))
	b := buf

	binary.LittleEndian.PutUint64(b, timestamp)
	b = b[8:]

	binary.LittleEndian.PutUint64(b, uint64(len(key)))
	b = b[8:]

	copy(b, key)
	b = b[len(key):]

	binary.LittleEndian.PutUint64(b, uint64(len(value)))
	b = b[8:]

	copy(b, value)

	return buf
}

// decodeRecord reads exactly one record from r, which must be positioned
// at the record's first byte, and leaves r positioned at the next one.
func decodeRecord(r io.Reader) (record, error) {
	var hdr [16]byte // timestamp + keyLen
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return record{}, err
	}
	timestamp := binary.LittleEndian.Uint64(hdr[0:8])
	keyLen := binary.LittleEndian.Uint64(hdr[8:16])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return record{}, err
	}

	var valLenBuf [8]byte
	if _, err := io.ReadFull(r, valLenBuf[:]); err != nil {
		return record{}, err
	}
	valLen := binary.LittleEndian.Uint64(valLenBuf[:])

	value := make([]byte, valLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return record{}, err
	}

	return record{timestamp: timestamp, key: key, value: value}, nil
}

// hintEntry is the decoded form of one hint-index entry.
type hintEntry struct {
	key       []byte
	fileID    uint64
	offset    uint64
	timestamp uint64
}

// encodeHintEntry serializes (key, fileID, offset, timestamp) into the
// layout: [keyLen u64][key][fileID u64][offset u64][timestamp u64].
func encodeHintEntry(key []byte, fileID, offset, timestamp uint64) []byte {
	buf := make([]byte, 8+len(key)+8+8+8)
	b := buf

	binary.LittleEndian.PutUint64(b, uint64(len(key)))
	b = b[8:]

	copy(b, key)
	b = b[len(key):]

	binary.LittleEndian.PutUint64(b, fileID)
	b = b[8:]

	binary.LittleEndian.PutUint64(b, offset)
	b = b[8:]

	binary.LittleEndian.PutUint64(b, timestamp)

	return buf
}

func decodeHintEntry(r io.Reader) (hintEntry, error) {
	var keyLenBuf [8]byte
	if _, err := io.ReadFull(r, keyLenBuf[:]); err != nil {
		return hintEntry{}, err
	}
	keyLen := binary.LittleEndian.Uint64(keyLenBuf[:])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return hintEntry{}, err
	}

	var rest [24]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return hintEntry{}, err
	}

	return hintEntry{
		key:       key,
		fileID:    binary.LittleEndian.Uint64(rest[0:8]),
		offset:    binary.LittleEndian.Uint64(rest[8:16]),
		timestamp: binary.LittleEndian.Uint64(rest[16:24]),
	}, nil
}

// isEOF reports whether err signals a clean end-of-stream, including a
// torn trailing write. This is the crash-tolerance contract: a partially
// written final record ends iteration silently rather than erroring.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
