package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_SerializesSameKey(t *testing.T) {
	var m Map[string]
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.With("acme", func() {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
			})
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder at a time, saw %d", maxInside)
	}
	if m.size() != 0 {
		t.Errorf("expected entries to be released, got %d", m.size())
	}
}

func TestMap_DifferentKeysParallel(t *testing.T) {
	var m Map[string]

	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		m.With("b", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind lock on a")
	}
}

func TestMap_UnlockIsIdempotent(t *testing.T) {
	var m Map[int]
	unlock := m.Lock(1)
	unlock()
	unlock()

	if m.size() != 0 {
		t.Errorf("expected no entries, got %d", m.size())
	}
}
