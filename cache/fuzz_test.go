package cache

import (
	"strings"
	"testing"
)

// Fuzz Set/Get/Add/Remove semantics under arbitrary keys and payloads with a
// small byte budget, so both admission and rejection paths are exercised.
func FuzzCache_SetGetRemove(f *testing.F) {
	f.Add("", "")
	f.Add("a.bin", "1")
	f.Add("dir/b.bin", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		const budget = 256
		c := New[string, []byte](Options[string, []byte]{
			Capacity: 16,
			MaxCost:  budget,
			Cost:     blobCost,
		})
		t.Cleanup(func() { _ = c.Close() })

		admitted := c.Set(k, []byte(v))
		if admitted != (len(v) <= budget) {
			t.Fatalf("Set admitted=%v for %d bytes", admitted, len(v))
		}
		got, ok := c.Get(k)
		if ok != admitted {
			t.Fatalf("Get presence %v, admitted %v", ok, admitted)
		}
		if ok && string(got) != v {
			t.Fatalf("after Set/Get: want %q, got %q", v, got)
		}

		if c.Add(k, []byte("other")) {
			if admitted {
				t.Fatal("Add over a resident key returned true")
			}
		} else if !admitted {
			t.Fatal("Add of a small value to an empty key must succeed")
		}

		if !c.Remove(k) {
			t.Fatal("Remove must return true for a resident key")
		}
		if _, ok := c.Get(k); ok {
			t.Fatal("key must be absent after Remove")
		}
		if err := c.Check(); err != nil {
			t.Fatal(err)
		}
	})
}
