package db

import (
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
)

// The helpers below require the shard write lock unless stated otherwise.
// In fifo mode re-insertion keeps the original position.

func (sh *Shard) pushFrontUnlocked(key uint64) {
	if !sh.listed {
		return
	}
	if el := sh.idx[key]; el != nil {
		sh.order.MoveToFront(el)
		return
	}
	sh.idx[key] = sh.order.PushFront(key)
}

func (sh *Shard) moveToFrontUnlocked(key uint64) {
	if !sh.listed {
		return
	}
	if el := sh.idx[key]; el != nil && sh.lru {
		sh.order.MoveToFront(el)
	}
}

func (sh *Shard) unlinkUnlocked(key uint64) {
	if !sh.listed {
		return
	}
	if el := sh.idx[key]; el != nil {
		sh.order.Remove(el)
		delete(sh.idx, key)
	}
}

// touchLRU is thread safe and skips the move when the shard is contended.
func (sh *Shard) touchLRU(key uint64) {
	if !sh.listed || !sh.lru {
		return
	}
	if sh.TryLock() {
		if el := sh.idx[key]; el != nil {
			sh.order.MoveToFront(el)
		}
		sh.Unlock()
	}
}

func (sh *Shard) peekTail() (*model.Entry, bool) {
	if !sh.listed {
		return nil, false
	}
	sh.RLock()
	defer sh.RUnlock()
	el := sh.order.Back()
	if el == nil {
		return nil, false
	}
	e, ok := sh.items[el.Value.(uint64)]
	return e, ok
}

func (sh *Shard) popTail() (*model.Entry, bool) {
	if !sh.listed {
		return nil, false
	}
	sh.Lock()
	defer sh.Unlock()
	el := sh.order.Back()
	if el == nil {
		return nil, false
	}
	return sh.removeUnlocked(el.Value.(uint64))
}
