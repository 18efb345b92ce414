package locks

import (
	"sync"
	"testing"
	"time"
)

func TestSameKeySerializes(t *testing.T) {
	km := NewKeyedMutex()
	const workers = 20
	var counter, max int
	var track sync.Mutex
	var wg sync.WaitGroup

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			km.Lock("project-1")
			defer km.Unlock("project-1")
			track.Lock()
			counter++
			if counter > max {
				max = counter
			}
			track.Unlock()
			time.Sleep(time.Millisecond)
			track.Lock()
			counter--
			track.Unlock()
		}()
	}
	wg.Wait()
	if max != 1 {
		t.Errorf("critical section overlap: max concurrency %d", max)
	}
}

func TestDifferentKeysAreIndependent(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")
	defer km.Unlock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key must not block")
	}
}

func TestKeyIsReclaimedAfterLastUnlock(t *testing.T) {
	km := NewKeyedMutex()
	for i := 0; i < 100; i++ {
		km.Lock("cycle")
		km.Unlock("cycle")
	}
	km.mu.Lock()
	n := len(km.locks)
	km.mu.Unlock()
	if n != 0 {
		t.Errorf("%d entries left after all unlocks", n)
	}
}
