package service

import "sync"

// keyedMutex serializes read-modify-write cycles on a single user's files
// within this process
type keyedMutex struct {
	m sync.Map
}

func (k *keyedMutex) Lock(key string) func() {
	mu, _ := k.m.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()

	return mu.(*sync.Mutex).Unlock
}
