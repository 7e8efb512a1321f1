package tracker

import "sync"

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// pairLocks serializes work per pair. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[PairKey]*pairLock
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[PairKey]*pairLock)}
}

// lock blocks until the caller is the single writer for key and returns the
// matching unlock.
func (p *pairLocks) lock(key PairKey) func() {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

func (p *pairLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
