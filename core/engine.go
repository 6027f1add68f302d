package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDataFileLimit int64 = 16 << 20 // 16 MiB

const readHandleCacheSize = 128

// Options configures a Database at Open time. It is passed in as a plain
// struct by the caller; no configuration file parsing happens here.
type Options struct {
	dataFileLimit int64
}

// Option mutates an Options during Open.
type Option func(*Options)

// WithDataFileLimit sets the byte threshold that triggers rollover of the
// active segment. See Database.Write for the exact comparison semantics.
func WithDataFileLimit(limit int64) Option {
	return func(o *Options) {
		o.dataFileLimit = limit
	}
}

func defaultOptions() Options {
	return Options{dataFileLimit: defaultDataFileLimit}
}

// segmentMeta is the plain-data record the engine keeps for each
// immutable segment: enough to reopen it on demand, nothing more.
type segmentMeta struct {
	id   uint64
	path string
}

// Stats reports a cheap, point-in-time summary of the engine's state.
type Stats struct {
	ImmutableSegmentCount int
	KeyCount              int
}

// Database is a single open handle onto a base directory. It owns the
// active segment, the metadata for every immutable segment, the in-memory
// keydir, and a bounded cache of read-only file handles. A Database is a
// single-writer structure: concurrent callers must supply their own
// external synchronization if they share one instance across goroutines
// beyond what its internal mutex provides for bookkeeping consistency.
type Database struct {
	mu   sync.RWMutex
	dir  string
	opts Options

	active    *segment
	immutable []segmentMeta
	index     *keydir
	cache     *lru.Cache[uint64, *segment]
}

// Open creates dir if missing, allocates a fresh active segment, recovers
// the keydir from whatever is already on disk, and runs cleanup.
func Open(dir string, opts ...Option) (*Database, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectorySetup, dir, err)
	}

	if err := removeStrayMergeFiles(dir); err != nil {
		return nil, err
	}

	activeID := uint64(now())
	active, err := createSegment(dir, activeID)
	if err != nil {
		return nil, err
	}

	cache, err := lru.NewWithEvict(readHandleCacheSize, func(id uint64, s *segment) {
		if err := s.close(); err != nil {
			log.Printf("close evicted read handle for segment %d: %v", id, err)
		}
	})
	if err != nil {
		active.close()
		return nil, fmt.Errorf("%w: build read handle cache: %w", ErrSegmentOpen, err)
	}

	db := &Database{
		dir:    dir,
		opts:   o,
		active: active,
		index:  newKeydir(),
		cache:  cache,
	}

	if err := db.recover(); err != nil {
		db.abortOpen()
		return nil, err
	}

	return db, nil
}

// abortOpen releases everything acquired by a failed Open so the caller
// is left with no dangling file descriptors.
func (db *Database) abortOpen() {
	db.cache.Purge()
	db.active.close()
}

func removeStrayMergeFiles(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, mergePrefix+".*"))
	if err != nil {
		return fmt.Errorf("%w: glob stray merge files: %w", ErrDirectorySetup, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove stray merge file %s: %w", ErrDirectorySetup, m, err)
		}
	}
	return nil
}

// listIDs returns, in ascending order, the numeric ids of every file in
// dir matching "<prefix>.<id>".
func listIDs(dir, prefix string) ([]uint64, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+".*"))
	if err != nil {
		return nil, fmt.Errorf("%w: glob %s.*: %w", ErrIO, prefix, err)
	}

	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		id, err := parseFileID(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRecovery, err)
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func hasHintFile(dir string, id uint64) bool {
	_, err := os.Stat(hintPath(dir, id))
	return err == nil
}

// recover rebuilds the keydir from every data segment in dir other than
// the just-created active one, then runs cleanup.
func (db *Database) recover() error {
	ids, err := listIDs(db.dir, segmentPrefix)
	if err != nil {
		return err
	}

	immutable := make([]segmentMeta, 0, len(ids))
	for _, id := range ids {
		if id == db.active.id {
			continue
		}

		path := segmentPath(db.dir, id)
		if err := db.recoverSegment(id, path); err != nil {
			return fmt.Errorf("%w: segment %s: %w", ErrRecovery, path, err)
		}

		immutable = append(immutable, segmentMeta{id: id, path: path})
	}

	db.immutable = immutable
	return db.cleanup()
}

// recoverSegment installs every key belonging to segment id into the
// keydir, preferring its hint index when one exists (authoritative,
// unconditional set) and falling back to a timestamp-guarded scan of the
// data file itself otherwise.
func (db *Database) recoverSegment(id uint64, path string) error {
	if hasHintFile(db.dir, id) {
		hf, err := openHintFile(hintPath(db.dir, id))
		if err != nil {
			return err
		}
		defer hf.close()

		return hf.iter(func(e hintEntry) error {
			db.index.set(e.key, e.fileID, e.offset, e.timestamp)
			return nil
		})
	}

	seg, err := openSegment(path)
	if err != nil {
		return err
	}
	defer seg.close()

	return seg.iter(func(sr scannedRecord) error {
		if isTombstone(sr.record.value) {
			db.index.remove(sr.record.key)
			return nil
		}
		db.index.setIfNewer(sr.record.key, id, uint64(sr.offset), sr.record.timestamp)
		return nil
	})
}

// removeIfEmpty deletes path if it currently exists and is zero bytes.
func removeIfEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	if info.Size() == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove empty segment %s: %w", ErrIO, path, err)
		}
	}
	return nil
}

// cleanup deletes every data segment, other than the active one, whose
// length is zero: the active segment left over from a prior crashed
// session, or debris from an interrupted rollover.
func (db *Database) cleanup() error {
	ids, err := listIDs(db.dir, segmentPrefix)
	if err != nil {
		return err
	}

	var kept []segmentMeta
	for _, meta := range db.immutable {
		stillPresent := false
		for _, id := range ids {
			if id == meta.id {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			continue
		}

		path := segmentPath(db.dir, meta.id)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
		}

		if info.Size() == 0 {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("%w: remove empty segment %s: %w", ErrIO, path, err)
			}
			continue
		}

		kept = append(kept, meta)
	}

	db.immutable = kept
	return nil
}

// Write appends (key, value) to the active segment and installs the new
// location into the keydir. If the pre-write offset had already reached
// the rollover threshold, the engine rolls over before returning.
func (db *Database) Write(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	timestamp := uint64(now())
	offset, err := db.active.write(timestamp, key, value)
	if err != nil {
		return err
	}

	db.index.set(key, db.active.id, uint64(offset), timestamp)

	if offset >= db.opts.dataFileLimit {
		return db.rollover()
	}
	return nil
}

// Read resolves key through the keydir and decodes its current value.
func (db *Database) Read(key []byte) ([]byte, error) {
	db.mu.RLock()
	entry, ok := db.index.get(key)
	active := db.active
	db.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}

	seg, err := db.resolveSegment(entry.fileID, active)
	if err != nil {
		return nil, err
	}

	rec, err := seg.read(int64(entry.offset))
	if err != nil {
		return nil, err
	}

	return rec.value, nil
}

// resolveSegment returns the segment owning fileID: the active segment
// itself, a cached read handle, or a freshly opened one (inserted into
// the cache for next time).
func (db *Database) resolveSegment(fileID uint64, active *segment) (*segment, error) {
	if fileID == active.id {
		return active, nil
	}

	if seg, ok := db.cache.Get(fileID); ok {
		return seg, nil
	}

	seg, err := openSegment(segmentPath(db.dir, fileID))
	if err != nil {
		return nil, err
	}

	db.cache.Add(fileID, seg)
	return seg, nil
}

// Remove appends a tombstone for key and removes it from the keydir.
// Removing an absent key is not an error: the tombstone is still
// durably appended, so a later recovery scan of this segment sees the
// delete and does not reinstall an earlier record for key.
func (db *Database) Remove(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	timestamp := uint64(now())
	if _, err := db.active.writeTombstone(timestamp, key); err != nil {
		return err
	}

	db.index.remove(key)
	return nil
}

// rollover seals the active segment as immutable and starts a fresh one.
// Callers must hold db.mu for writing.
func (db *Database) rollover() error {
	newID := uint64(now())
	next, err := createSegment(db.dir, newID)
	if err != nil {
		return err
	}

	old := db.active
	db.immutable = append(db.immutable, segmentMeta{id: old.id, path: old.path})
	db.active = next

	if err := old.sync(); err != nil {
		return err
	}
	return old.close()
}

// Keys returns every live key in ascending lexicographic order.
func (db *Database) Keys() [][]byte {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out [][]byte
	db.index.all(func(e keydirEntry) bool {
		out = append(out, e.key)
		return true
	})
	return out
}

// Range returns every live key k with min <= k <= max, in ascending order.
func (db *Database) Range(min, max []byte) [][]byte {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out [][]byte
	db.index.ascend(min, max, func(e keydirEntry) bool {
		out = append(out, e.key)
		return true
	})
	return out
}

// RangeFrom returns every live key k with min <= k, in ascending order.
func (db *Database) RangeFrom(min []byte) [][]byte {
	return db.Range(min, nil)
}

// RangeTo returns every live key k with k <= max, in ascending order.
func (db *Database) RangeTo(max []byte) [][]byte {
	return db.Range(nil, max)
}

// Sync forces durability of every record appended to the active segment
// so far.
func (db *Database) Sync() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.active.sync()
}

// Close flushes and releases every file owned by the engine.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.cache.Purge()

	if err := db.active.sync(); err != nil {
		return err
	}
	return db.active.close()
}

// Stats reports the current immutable segment count and live key count.
func (db *Database) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return Stats{
		ImmutableSegmentCount: len(db.immutable),
		KeyCount:              db.index.len(),
	}
}

// DiskSize returns the combined size, in bytes, of every data segment
// currently on disk, including the active one.
func (db *Database) DiskSize() (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids, err := listIDs(db.dir, segmentPrefix)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, id := range ids {
		info, err := os.Stat(segmentPath(db.dir, id))
		if err != nil {
			return 0, fmt.Errorf("%w: stat %s: %w", ErrIO, segmentPath(db.dir, id), err)
		}
		total += info.Size()
	}
	return total, nil
}
