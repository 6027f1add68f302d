package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const hintPrefix = "index"

func hintPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d", hintPrefix, id))
}

// hintFile is the sparse, fast-recovery companion to a data segment: one
// entry per live key as of the moment it was written, instead of one
// entry per write. Hint files are only ever written by merge, once, for
// the coalesced segment it produces; rollover writes none.
type hintFile struct {
	id   uint64
	path string
	file *os.File
	size int64
}

func createHintFile(dir string, id uint64) (*hintFile, error) {
	path := hintPath(dir, id)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSegmentOpen, path, err)
	}

	return &hintFile{id: id, path: path, file: f}, nil
}

func openHintFile(path string) (*hintFile, error) {
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

	return &hintFile{id: id, path: path, file: f, size: info.Size()}, nil
}

// write appends one hint entry pointing at (fileID, offset).
func (h *hintFile) write(key []byte, fileID, offset, timestamp uint64) error {
	buf := encodeHintEntry(key, fileID, offset, timestamp)

	n, err := h.file.WriteAt(buf, h.size)
	if err != nil {
		return fmt.Errorf("%w: append to %s: %w", ErrIO, h.path, err)
	}

	h.size += int64(n)
	return nil
}

func (h *hintFile) sync() error {
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrIO, h.path, err)
	}
	return nil
}

func (h *hintFile) close() error {
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, h.path, err)
	}
	return nil
}

// iter streams every well-formed entry in the hint file in write order.
// As with a data segment, a torn trailing entry ends iteration silently.
func (h *hintFile) iter(f func(hintEntry) error) error {
	r := io.NewSectionReader(h.file, 0, h.size)
	br := bufio.NewReader(r)

	for {
		entry, err := decodeHintEntry(br)
		if err != nil {
			if isEOF(err) {
				return nil
			}
			return fmt.Errorf("%w: scan %s: %w", ErrIO, h.path, err)
		}

		if err := f(entry); err != nil {
			return err
		}
	}
}
