package core

import (
	"os"
	"path/filepath"
	"testing"
)

// setupDB opens a Database rooted at a fresh temporary directory and
// registers its teardown with tb.Cleanup.
func setupDB(tb testing.TB, opts ...Option) (db *Database, dir string) {
	dir, err := os.MkdirTemp("", "bitcask_test_*")
	if err != nil {
		tb.Fatalf("MkdirTemp failed: %v", err)
	}

	db, err = Open(dir, opts...)
	if err != nil {
		_ = os.RemoveAll(dir)
		tb.Fatalf("Open(%q) failed: %v", dir, err)
	}

	tb.Cleanup(func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	})

	return db, dir
}

func countFiles(tb testing.TB, dir, pattern string) int {
	tb.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		tb.Fatalf("glob %s in %s failed: %v", pattern, dir, err)
	}
	return len(matches)
}
