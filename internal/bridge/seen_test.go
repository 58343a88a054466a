package bridge

import (
	"fmt"
	"testing"
)

func TestSeenCache_MarksAndReports(t *testing.T) {
	cache := NewSeenCache(8)

	if cache.Seen("a") {
		t.Error("first sighting reported as seen")
	}
	if !cache.Seen("a") {
		t.Error("second sighting not reported as seen")
	}
	if cache.Seen("b") {
		t.Error("unrelated id reported as seen")
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 tracked ids, got %d", cache.Len())
	}
}

func TestSeenCache_EvictsOldest(t *testing.T) {
	cache := NewSeenCache(3)

	for i := 0; i < 3; i++ {
		cache.Seen(fmt.Sprintf("id-%d", i))
	}

	// id-3 displaces id-0, the oldest entry.
	if cache.Seen("id-3") {
		t.Error("new id reported as seen")
	}
	if cache.Len() != 3 {
		t.Errorf("expected the cache to stay at capacity, got %d", cache.Len())
	}
	if cache.Seen("id-0") {
		t.Error("evicted id still reported as seen")
	}
	if !cache.Seen("id-2") {
		t.Error("id-2 should still be tracked")
	}
}

func TestSeenCache_DefaultCapacity(t *testing.T) {
	cache := NewSeenCache(0)
	for i := 0; i < DefaultSeenCapacity+10; i++ {
		cache.Seen(fmt.Sprintf("id-%d", i))
	}
	if cache.Len() != DefaultSeenCapacity {
		t.Errorf("expected %d tracked ids, got %d", DefaultSeenCapacity, cache.Len())
	}
}
