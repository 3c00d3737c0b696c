package kinetic

import "testing"

func TestDataStore_InsertionOrder(t *testing.T) {
	ds := NewDataStore()
	ds.Set("c", 3)
	ds.Set("a", 1)
	ds.Set("b", 2)

	keys := ds.Keys()
	if len(keys) != 3 || keys[0] != "c" || keys[1] != "a" || keys[2] != "b" {
		t.Errorf("expected keys in insertion order [c a b], got %v", keys)
	}
}

func TestDataStore_OverwriteKeepsPosition(t *testing.T) {
	ds := NewDataStore()
	ds.Set("a", 1)
	ds.Set("b", 2)
	ds.Set("a", 10)

	if ds.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", ds.Len())
	}
	if keys := ds.Keys(); keys[0] != "a" {
		t.Errorf("overwriting must keep the original position, got %v", keys)
	}
	if v, _ := ds.Get("a"); v != 10 {
		t.Errorf("expected the overwritten value, got %v", v)
	}
}

func TestDataStore_Delete(t *testing.T) {
	ds := NewDataStore()
	ds.Set("a", 1)
	ds.Set("b", 2)
	ds.Delete("a")

	if _, ok := ds.Get("a"); ok {
		t.Error("expected a to be deleted")
	}
	if keys := ds.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Errorf("expected only b to remain, got %v", keys)
	}
	ds.Delete("missing") // no-op
}

func TestDataStore_RangeStopsEarly(t *testing.T) {
	ds := NewDataStore([2]any{"a", 1}, [2]any{"b", 2}, [2]any{"c", 3})

	visited := 0
	ds.Range(func(key, value any) bool {
		visited++
		return key != "b"
	})
	if visited != 2 {
		t.Errorf("expected Range to stop after b, visited %d", visited)
	}
}

func TestDataStore_SymbolicKeys(t *testing.T) {
	type ctxKey struct{}
	tag := NewTag[int]("count")

	ds := NewDataStore()
	ds.Set(ctxKey{}, "struct-keyed")
	ds.Set(tag, 5)

	if v, ok := ds.Get(ctxKey{}); !ok || v != "struct-keyed" {
		t.Error("expected struct keys to work")
	}
	if v, ok := ds.Get(tag); !ok || v != 5 {
		t.Error("expected tag keys to work")
	}
}
