package domain

import (
	"sync"
	"testing"
	"time"
)

func TestNewTaskIDStrictlyIncreasing(t *testing.T) {
	t.Cleanup(func() { lastTaskID.Store(0) })
	lastTaskID.Store(time.Now().Add(time.Second).UnixMilli())

	first := NewTaskID()
	second := NewTaskID()
	if second-first != 1 {
		t.Fatalf("expected ids to increment by 1, got %d then %d", first, second)
	}
}

func TestNewTaskIDConcurrentUnique(t *testing.T) {
	const n = 2000
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewTaskID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
}
