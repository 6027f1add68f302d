package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const segmentPrefix = "data"

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d", segmentPrefix, id))
}

// segment is one append-only data file: id, the descriptor it is opened
// under, and the current write offset (== file size, tracked in memory
// so appends never need an extra stat/seek round trip).
type segment struct {
	id   uint64
	path string
	file *os.File
	size int64
}

// createSegment creates a new, empty segment file named for id.
func createSegment(dir string, id uint64) (*segment, error) {
	return createSegmentAt(segmentPath(dir, id), id)
}

// createSegmentAt creates a new, empty segment file at an explicit path.
// Used both for ordinary "data.<id>" segments and for the transient
// "merge.<id>" segment written during compaction.
func createSegmentAt(path string, id uint64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSegmentOpen, path, err)
	}

	return &segment{id: id, path: path, file: f}, nil
}

// openSegment opens an existing segment file read-write, positioned for
// appends at its current end-of-file.
func openSegment(path string) (*segment, error) {
	id, err := parseFileID(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegmentOpen, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSegmentOpen, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrSegmentOpen, path, err)
	}

	return &segment{id: id, path: path, file: f, size: info.Size()}, nil
}

// write appends one record and returns the offset it was written at.
func (s *segment) write(timestamp uint64, key, value []byte) (int64, error) {
	offset := s.size

	buf := encodeRecord(timestamp, key, value)
	n, err := s.file.WriteAt(buf, offset)
	if err != nil {
		return 0, fmt.Errorf("%w: append to %s: %w", ErrIO, s.path, err)
	}

	s.size += int64(n)
	return offset, nil
}

// writeTombstone appends a delete marker for key and returns its offset.
func (s *segment) writeTombstone(timestamp uint64, key []byte) (int64, error) {
	return s.write(timestamp, key, []byte(tombstoneValue))
}

// read decodes the record stored at offset.
func (s *segment) read(offset int64) (record, error) {
	sr := io.NewSectionReader(s.file, offset, s.size-offset)
	rec, err := decodeRecord(sr)
	if err != nil {
		return record{}, fmt.Errorf("%w: read %s at %d: %w", ErrIO, s.path, offset, err)
	}
	return rec, nil
}

// sync flushes the segment's contents to stable storage.
func (s *segment) sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrIO, s.path, err)
	}
	return nil
}

// close closes the underlying descriptor. If the segment is still
// zero-length (e.g. an active segment opened but never written to before
// shutdown), its file is removed rather than left behind as debris.
func (s *segment) close() error {
	empty := s.size == 0

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, s.path, err)
	}

	if empty {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove empty segment %s: %w", ErrIO, s.path, err)
		}
	}

	return nil
}

// scannedRecord is one record yielded by iter, tagged with the byte
// offset it starts at so callers can build keydir entries from it.
type scannedRecord struct {
	offset int64
	record record
}

// iter streams every well-formed record in the segment in file order,
// calling f for each. A decode failure partway through a record - the
// signature of a crash mid-append - ends iteration silently instead of
// reporting an error: everything written before the torn tail remains
// valid and recoverable.
func (s *segment) iter(f func(scannedRecord) error) error {
	r := io.NewSectionReader(s.file, 0, s.size)
	br := bufio.NewReader(r)

	var offset int64
	for {
		rec, err := decodeRecord(br)
		if err != nil {
			if isEOF(err) {
				return nil
			}
			return fmt.Errorf("%w: scan %s at %d: %w", ErrIO, s.path, offset, err)
		}

		n := int64(encodedLen(len(rec.key), len(rec.value)))
		if err := f(scannedRecord{offset: offset, record: rec}); err != nil {
			return err
		}
		offset += n
	}
}
