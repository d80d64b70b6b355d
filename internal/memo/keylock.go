// internal/memo/keylock.go

package memo

import "sync"

// keyLocks 提供以鍵為單位的互斥鎖。
// 每個鍵的鎖帶有參考計數，最後一個持有者釋放時即自索引表移除，
// 因此索引表大小只與「正在寫入的鍵數」相關。
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*refLock)}
}

// lock 取得 key 的鎖，回傳對應的解鎖函式。
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size 回傳目前被持有或等待中的鍵數。
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
