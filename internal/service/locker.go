package service

import "sync"

// Locker serializes execute runs. A file import can touch any account, so
// it holds the household lock exclusively. A sync holds it shared plus its
// account's lock, so syncs of different accounts run in parallel.
type Locker struct {
	household sync.RWMutex

	mu       sync.Mutex
	accounts map[string]*sync.Mutex
}

// NewLocker returns an unlocked Locker.
func NewLocker() *Locker {
	return &Locker{accounts: make(map[string]*sync.Mutex)}
}

// LockHousehold takes the exclusive lock and returns its release.
func (l *Locker) LockHousehold() (unlock func()) {
	l.household.Lock()
	return l.household.Unlock
}

// LockAccount takes the shared household lock and the account lock.
func (l *Locker) LockAccount(accountID string) (unlock func()) {
	l.household.RLock()
	m := l.account(accountID)
	m.Lock()
	return func() {
		m.Unlock()
		l.household.RUnlock()
	}
}

func (l *Locker) account(accountID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.accounts[accountID]
	if !ok {
		m = &sync.Mutex{}
		l.accounts[accountID] = m
	}
	return m
}
