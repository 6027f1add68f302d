package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deckarep/golang-set/v2"
)

const mergePrefix = "merge"

func mergePath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d", mergePrefix, id))
}

// Merge collapses every immutable segment into a single coalesced
// segment holding exactly one record per live key, plus a hint index,
// then atomically replaces the segments it superseded. It is a no-op
// when fewer than two immutable segments exist.
func (db *Database) Merge() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.immutable) < 2 {
		return nil
	}

	stale := make([]segmentMeta, len(db.immutable))
	copy(stale, db.immutable)

	if err := removeAllHintFiles(db.dir); err != nil {
		return err
	}

	mergeID := uint64(now())
	mergeSeg, err := createSegmentAt(mergePath(db.dir, mergeID), mergeID)
	if err != nil {
		return err
	}

	hintFile, err := createHintFile(db.dir, mergeID)
	if err != nil {
		mergeSeg.close()
		return err
	}

	written, writeErr := db.writeMergedSegment(mergeSeg, hintFile)
	if writeErr == nil {
		writeErr = mergeSeg.sync()
	}
	if writeErr == nil {
		writeErr = hintFile.sync()
	}

	// mergeSeg.close deletes a zero-length file on its own; hintFile.close
	// has no such behavior, so when nothing was written an empty index.<T>
	// stays on disk. Recovery only consults a hint file paired with an
	// existing data.<id>, and the next merge removes every index.* first.
	closeSegErr := mergeSeg.close()
	closeHintErr := hintFile.close()

	if writeErr != nil {
		return writeErr
	}
	if closeSegErr != nil {
		return closeSegErr
	}
	if closeHintErr != nil {
		return closeHintErr
	}

	if written == 0 {
		return db.deleteStaleSegments(stale)
	}

	finalPath := segmentPath(db.dir, mergeID)
	if err := os.Rename(mergeSeg.path, finalPath); err != nil {
		return fmt.Errorf("%w: rename %s to %s: %w", ErrIO, mergeSeg.path, finalPath, err)
	}

	if err := db.rebuildAfterMerge(stale); err != nil {
		return err
	}

	if err := db.deleteStaleSegments(stale); err != nil {
		return err
	}

	return db.cleanup()
}

// writeMergedSegment writes the current value of every live key not
// already covered by the active segment into mergeSeg, recording each
// new location into hint, in ascending key order. It returns the number
// of records written.
func (db *Database) writeMergedSegment(mergeSeg *segment, hint *hintFile) (int, error) {
	var (
		written int
		iterErr error
	)

	db.index.all(func(e keydirEntry) bool {
		if e.fileID == db.active.id {
			return true
		}

		seg, err := db.resolveSegment(e.fileID, db.active)
		if err != nil {
			iterErr = err
			return false
		}

		rec, err := seg.read(int64(e.offset))
		if err != nil {
			iterErr = err
			return false
		}

		newOffset, err := mergeSeg.write(e.timestamp, e.key, rec.value)
		if err != nil {
			iterErr = err
			return false
		}

		if err := hint.write(e.key, mergeSeg.id, uint64(newOffset), e.timestamp); err != nil {
			iterErr = err
			return false
		}

		written++
		return true
	})

	return written, iterErr
}

// rebuildAfterMerge discards the in-memory keydir and replays recovery
// over the segments that survive the merge, so every locator reflects
// the merged segment's offsets rather than the stale ones in S.
func (db *Database) rebuildAfterMerge(stale []segmentMeta) error {
	db.index = newKeydir()

	ids, err := listIDs(db.dir, segmentPrefix)
	if err != nil {
		return err
	}

	staleIDs := staleIDSet(stale)

	liveIDs := mapset.NewSet[uint64]()
	for _, id := range ids {
		liveIDs.Add(id)
	}
	survivingIDs := liveIDs.Difference(staleIDs)

	immutable := make([]segmentMeta, 0, survivingIDs.Cardinality())
	for _, id := range ids {
		if !survivingIDs.Contains(id) {
			continue
		}

		path := segmentPath(db.dir, id)

		// The rebuild scan, unlike ordinary recovery, is not handed a
		// list that already excludes the active segment: it is whatever
		// "data.*" looks like right after the rename. If the active
		// segment still happens to be empty at this point, it is swept
		// up and deleted here rather than surviving as an orphaned file,
		// same as any other zero-byte segment would be.
		if id == db.active.id {
			if err := removeIfEmpty(path); err != nil {
				return err
			}
			continue
		}

		if err := db.recoverSegment(id, path); err != nil {
			return fmt.Errorf("%w: segment %s: %w", ErrRecovery, path, err)
		}
		immutable = append(immutable, segmentMeta{id: id, path: path})
	}

	db.immutable = immutable
	return nil
}

func staleIDSet(stale []segmentMeta) mapset.Set[uint64] {
	ids := mapset.NewSet[uint64]()
	for _, m := range stale {
		ids.Add(m.id)
	}
	return ids
}

func (db *Database) deleteStaleSegments(stale []segmentMeta) error {
	for _, m := range stale {
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove superseded segment %s: %w", ErrIO, m.path, err)
		}
	}

	staleIDs := staleIDSet(stale)
	kept := make([]segmentMeta, 0, len(db.immutable))
	for _, m := range db.immutable {
		if !staleIDs.Contains(m.id) {
			kept = append(kept, m)
		}
	}
	db.immutable = kept
	return nil
}

func removeAllHintFiles(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, hintPrefix+".*"))
	if err != nil {
		return fmt.Errorf("%w: glob %s.*: %w", ErrIO, hintPrefix, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove stale hint file %s: %w", ErrIO, m, err)
		}
	}
	return nil
}
