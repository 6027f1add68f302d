package core

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	key := []byte("name")
	value := []byte("Peter")

	buf := encodeRecord(42, key, value)
	if len(buf) != encodedLen(len(key), len(value)) {
		t.Fatalf("encodedLen mismatch: got %d, want %d", encodedLen(len(key), len(value)), len(buf))
	}

	rec, err := decodeRecord(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("decodeRecord failed: %v", err)
	}

	if rec.timestamp != 42 || string(rec.key) != "name" || string(rec.value) != "Peter" {
		t.Errorf("round trip mismatch: %+v", rec)
	}
}

func TestEncodeRecordDeterministic(t *testing.T) {
	a := encodeRecord(7, []byte("k"), []byte("v"))
	b := encodeRecord(7, []byte("k"), []byte("v"))
	if !bytes.Equal(a, b) {
		t.Errorf("encodeRecord is not deterministic for identical input")
	}
}

func TestDecodeRecordStreamsTwoInARow(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeRecord(1, []byte("a"), []byte("1")))
	buf.Write(encodeRecord(2, []byte("b"), []byte("2")))

	first, err := decodeRecord(&buf)
	if err != nil {
		t.Fatalf("first decode failed: %v", err)
	}
	second, err := decodeRecord(&buf)
	if err != nil {
		t.Fatalf("second decode failed: %v", err)
	}

	if string(first.key) != "a" || string(second.key) != "b" {
		t.Errorf("records decoded out of order: %q, %q", first.key, second.key)
	}
}

func TestDecodeRecordTruncatedIsEOF(t *testing.T) {
	full := encodeRecord(1, []byte("key"), []byte("value"))

	for cut := 0; cut < len(full); cut++ {
		_, err := decodeRecord(bytes.NewReader(full[:cut]))
		if !isEOF(err) {
			t.Fatalf("truncated at %d: expected EOF-like error, got %v", cut, err)
		}
	}
}

func TestHintEntryRoundTrip(t *testing.T) {
	buf := encodeHintEntry([]byte("name"), 5, 128, 99)

	entry, err := decodeHintEntry(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("decodeHintEntry failed: %v", err)
	}

	if string(entry.key) != "name" || entry.fileID != 5 || entry.offset != 128 || entry.timestamp != 99 {
		t.Errorf("hint entry round trip mismatch: %+v", entry)
	}
}

func TestIsTombstone(t *testing.T) {
	if !isTombstone([]byte(tombstoneValue)) {
		t.Error("expected the sentinel value to be recognized as a tombstone")
	}
	if isTombstone([]byte("Peter")) {
		t.Error("did not expect an ordinary value to be recognized as a tombstone")
	}
}

func TestIsEOF(t *testing.T) {
	if !isEOF(io.EOF) {
		t.Error("io.EOF must be treated as end of stream")
	}
	if !isEOF(io.ErrUnexpectedEOF) {
		t.Error("io.ErrUnexpectedEOF must be treated as end of stream")
	}
}
