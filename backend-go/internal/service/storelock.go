package service

import "sync"

// =================================================================================
// 库级互斥锁：同一个库的写操作 (重建索引/删库) 串行化
// 抢不到锁直接失败返回 ConflictError，而不是排队，不同库之间互不影响
// 检索不加锁，重建索引期间继续打旧索引
// 条目按引用计数回收，库删了之后不在内存里留壳
// =================================================================================

type storeLock struct {
	mu   sync.Mutex
	refs int
}

type StoreLockSet struct {
	mu    sync.Mutex
	locks map[uint]*storeLock
}

func NewStoreLockSet() *StoreLockSet {
	return &StoreLockSet{locks: make(map[uint]*storeLock)}
}

// TryAcquire 非阻塞抢锁，成功返回释放函数
func (s *StoreLockSet) TryAcquire(storeID uint) (func(), bool) {
	s.mu.Lock()
	lock, ok := s.locks[storeID]
	if !ok {
		lock = &storeLock{}
		s.locks[storeID] = lock
	}
	// 先占引用再试锁，防止条目在判定期间被回收
	lock.refs++
	s.mu.Unlock()

	if !lock.mu.TryLock() {
		s.release(storeID, lock)
		return nil, false
	}

	return func() {
		lock.mu.Unlock()
		s.release(storeID, lock)
	}, true
}

// release 释放一个引用，没人用了就从表里摘掉
func (s *StoreLockSet) release(storeID uint, lock *storeLock) {
	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, storeID)
	}
	s.mu.Unlock()
}
