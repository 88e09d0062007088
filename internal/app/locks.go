package app

import "sync"

// keyedMutex serializes work per key. Entries are dropped once no goroutine
// holds or waits for them; onIdle, when set, runs for each dropped key and
// must not call back into the keyedMutex.
type keyedMutex struct {
	mu     sync.Mutex
	locks  map[string]*refLock
	seq    uint64
	onIdle func(key string)
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns its unlock func. ticket numbers
// the caller's arrival across all keys; it is issued when the caller queues.
func (k *keyedMutex) Lock(key string) (unlock func(), ticket uint64) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.seq++
	ticket = k.seq
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		defer k.mu.Unlock()
		l.refs--
		if l.refs > 0 {
			return
		}
		delete(k.locks, key)
		// Still under k.mu, so no new holder of key can run before onIdle.
		if k.onIdle != nil {
			k.onIdle(key)
		}
	}, ticket
}

// lastTicket returns the most recently issued ticket.
func (k *keyedMutex) lastTicket() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.seq
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
