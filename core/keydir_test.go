package core

import "testing"

func TestKeydirSetGet(t *testing.T) {
	k := newKeydir()
	k.set([]byte("name"), 1, 10, 100)

	entry, ok := k.get([]byte("name"))
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if entry.fileID != 1 || entry.offset != 10 || entry.timestamp != 100 {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestKeydirGetMissing(t *testing.T) {
	k := newKeydir()
	if _, ok := k.get([]byte("missing")); ok {
		t.Error("expected missing key to report absent")
	}
}

func TestKeydirSetOverwrites(t *testing.T) {
	k := newKeydir()
	k.set([]byte("name"), 1, 0, 1)
	k.set([]byte("name"), 2, 5, 2)

	entry, _ := k.get([]byte("name"))
	if entry.fileID != 2 || entry.offset != 5 || entry.timestamp != 2 {
		t.Errorf("set did not overwrite unconditionally: %+v", entry)
	}
}

func TestKeydirSetIfNewerKeepsLatest(t *testing.T) {
	k := newKeydir()
	k.setIfNewer([]byte("name"), 1, 0, 10)
	k.setIfNewer([]byte("name"), 2, 5, 5) // older, should be ignored

	entry, _ := k.get([]byte("name"))
	if entry.fileID != 1 || entry.timestamp != 10 {
		t.Errorf("setIfNewer overwrote with an older timestamp: %+v", entry)
	}

	k.setIfNewer([]byte("name"), 3, 9, 20) // newer, should win
	entry, _ = k.get([]byte("name"))
	if entry.fileID != 3 || entry.timestamp != 20 {
		t.Errorf("setIfNewer did not accept a newer timestamp: %+v", entry)
	}
}

func TestKeydirRemoveIsIdempotent(t *testing.T) {
	k := newKeydir()
	k.remove([]byte("never-set")) // must not panic

	k.set([]byte("name"), 1, 0, 1)
	k.remove([]byte("name"))
	k.remove([]byte("name"))

	if _, ok := k.get([]byte("name")); ok {
		t.Error("expected key to be absent after remove")
	}
}

func TestKeydirAllOrdersLexicographically(t *testing.T) {
	k := newKeydir()
	for _, key := range []string{"c", "a", "b"} {
		k.set([]byte(key), 1, 0, 1)
	}

	var got []string
	k.all(func(e keydirEntry) bool {
		got = append(got, string(e.key))
		return true
	})

	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestKeydirAscendInclusiveBounds(t *testing.T) {
	k := newKeydir()
	for _, key := range []string{"a", "b", "c"} {
		k.set([]byte(key), 1, 0, 1)
	}

	assertKeys := func(min, max []byte, want []string) {
		t.Helper()
		var got []string
		k.ascend(min, max, func(e keydirEntry) bool {
			got = append(got, string(e.key))
			return true
		})
		if len(got) != len(want) {
			t.Fatalf("ascend(%s,%s): expected %v, got %v", min, max, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("ascend(%s,%s): expected %v, got %v", min, max, want, got)
			}
		}
	}

	assertKeys([]byte("a"), []byte("b"), []string{"a", "b"})
	assertKeys([]byte("b"), nil, []string{"b", "c"})
	assertKeys(nil, []byte("b"), []string{"a", "b"})
	assertKeys(nil, nil, []string{"a", "b", "c"})
}

func TestKeydirLen(t *testing.T) {
	k := newKeydir()
	if k.len() != 0 {
		t.Fatalf("expected empty keydir to have length 0, got %d", k.len())
	}

	k.set([]byte("a"), 1, 0, 1)
	k.set([]byte("b"), 1, 0, 1)
	if k.len() != 2 {
		t.Errorf("expected length 2, got %d", k.len())
	}

	k.remove([]byte("a"))
	if k.len() != 1 {
		t.Errorf("expected length 1 after remove, got %d", k.len())
	}
}
