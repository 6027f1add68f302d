package core

import "errors"

var (
	// ErrDirectorySetup indicates the base directory could not be created.
	ErrDirectorySetup = errors.New("create base directory")

	// ErrSegmentOpen indicates a segment or hint-index file could not be
	// opened or created, including id-parse failures on a malformed name.
	ErrSegmentOpen = errors.New("open segment")

	// ErrIO indicates a read, write, seek or sync failure against an
	// on-disk segment or hint file.
	ErrIO = errors.New("segment io")

	// ErrKeyNotFound is returned by Read for a key absent from the
	// keydir: it was never written, or its latest record is a tombstone.
	ErrKeyNotFound = errors.New("key not found")

	// ErrRecovery aggregates per-segment failures encountered while
	// rebuilding the keydir at open.
	ErrRecovery = errors.New("recovery")
)
