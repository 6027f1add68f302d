package core

import (
	"bytes"

	"github.com/google/btree"
)

// keydirEntry is the in-memory record of a key's latest known location:
// which segment holds it, at what offset, and the write timestamp that
// arbitrates between conflicting entries seen during recovery or merge.
type keydirEntry struct {
	key       []byte
	fileID    uint64
	offset    uint64
	timestamp uint64
}

func (e *keydirEntry) Less(other btree.Item) bool {
	return bytes.Compare(e.key, other.(*keydirEntry).key) < 0
}

// keydir is the ordered, in-memory index over every live key: an
// append-only log on disk, a btree.BTree in memory. All key comparisons
// are lexicographic over the raw key bytes, which is what makes the
// range queries below meaningful.
type keydir struct {
	tree *btree.BTree
}

func newKeydir() *keydir {
	return &keydir{tree: btree.New(32)}
}

// set unconditionally inserts or overwrites the entry for key. Used when
// the caller already knows the write being applied is the newest one:
// a live write, or a hint-file entry (hint files are only ever written
// for a key's live position at the time the segment was sealed).
func (k *keydir) set(key []byte, fileID, offset, timestamp uint64) {
	k.tree.ReplaceOrInsert(&keydirEntry{key: key, fileID: fileID, offset: offset, timestamp: timestamp})
}

// setIfNewer inserts the entry only if no entry exists yet for key, or
// the existing one carries an older timestamp. Used while replaying a
// data segment's own records during recovery, where multiple writes to
// the same key can appear in one segment and only the last should win.
func (k *keydir) setIfNewer(key []byte, fileID, offset, timestamp uint64) {
	if existing, ok := k.get(key); ok && existing.timestamp >= timestamp {
		return
	}
	k.set(key, fileID, offset, timestamp)
}

func (k *keydir) get(key []byte) (keydirEntry, bool) {
	item := k.tree.Get(&keydirEntry{key: key})
	if item == nil {
		return keydirEntry{}, false
	}
	return *item.(*keydirEntry), true
}

func (k *keydir) remove(key []byte) {
	k.tree.Delete(&keydirEntry{key: key})
}

func (k *keydir) len() int {
	return k.tree.Len()
}

// ascend walks every entry with key >= min (or from the very first entry,
// if min is nil) in ascending order, stopping as soon as max is non-nil
// and the current key compares greater than it. Both bounds are
// inclusive, matching the range semantics every exported range query
// below is built on.
func (k *keydir) ascend(min, max []byte, f func(keydirEntry) bool) {
	iterator := func(item btree.Item) bool {
		e := item.(*keydirEntry)
		if max != nil && bytes.Compare(e.key, max) > 0 {
			return false
		}
		return f(*e)
	}

	if min == nil {
		k.tree.Ascend(iterator)
		return
	}
	k.tree.AscendGreaterOrEqual(&keydirEntry{key: min}, iterator)
}

// all walks every live entry in ascending key order.
func (k *keydir) all(f func(keydirEntry) bool) {
	k.ascend(nil, nil, f)
}
