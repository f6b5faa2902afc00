package model

import (
	"encoding/binary"
	"errors"
	"github.com/infinispan/infinispan-subsystem/internal/shared/cachedtime"
	"sync/atomic"
	"unsafe"
)

var ErrMalformedEntry = errors.New("malformed entry")

// Entry is an immutable key with a swappable value and atomic access metadata.
// Lifespan and max idle are nanoseconds, negative meaning unbounded.
type Entry struct {
	key       Key
	value     atomic.Pointer[[]byte]
	created   int64 // unix nano
	touchedAt int64 // atomic: unix nano, LRU order and max idle
	lifespan  int64
	maxIdle   int64
	queued    int32 // atomic: 1 while sitting in an expiration queue
}

func NewEntry(key Key, value []byte, lifespan, maxIdle int64) *Entry {
	now := cachedtime.UnixNano()
	e := &Entry{key: key, created: now, touchedAt: now, lifespan: lifespan, maxIdle: maxIdle}
	e.value.Store(&value)
	return e
}

func (e *Entry) Key() Key         { return e.key }
func (e *Entry) Created() int64   { return e.created }
func (e *Entry) Lifespan() int64  { return e.lifespan }
func (e *Entry) MaxIdle() int64   { return e.maxIdle }
func (e *Entry) TouchedAt() int64 { return atomic.LoadInt64(&e.touchedAt) }
func (e *Entry) Touch()           { atomic.StoreInt64(&e.touchedAt, cachedtime.UnixNano()) }

func (e *Entry) Value() []byte {
	if p := e.value.Load(); p != nil {
		return *p
	}
	return nil
}

// SwapValue replaces the value and returns the weight delta.
func (e *Entry) SwapValue(v []byte) int64 {
	old := e.value.Swap(&v)
	e.Touch()
	if old == nil {
		return int64(cap(v))
	}
	return int64(cap(v)) - int64(cap(*old))
}

func (e *Entry) Weight() int64 {
	return int64(unsafe.Sizeof(*e)) + int64(len(e.key.raw)) + int64(cap(e.Value()))
}

// IsExpired reports whether the lifespan or the max idle time has passed at now.
func (e *Entry) IsExpired(now int64) bool {
	if e.lifespan >= 0 && now-e.created > e.lifespan {
		return true
	}
	return e.maxIdle >= 0 && now-e.TouchedAt() > e.maxIdle
}

// CanExpire is false for entries without lifespan and max idle.
func (e *Entry) CanExpire() bool { return e.lifespan >= 0 || e.maxIdle >= 0 }

func (e *Entry) Enqueue() bool { return atomic.CompareAndSwapInt32(&e.queued, 0, 1) }
func (e *Entry) Dequeue()      { atomic.StoreInt32(&e.queued, 0) }

// MarshalBinary lays the entry out as
// created | touched | lifespan | maxIdle | keyLen(u32) | key | value, little endian.
func (e *Entry) MarshalBinary() ([]byte, error) {
	key, val := bytesOf(e.key.raw), e.Value()
	buf := make([]byte, 36+len(key)+len(val))
	binary.LittleEndian.PutUint64(buf[0:], uint64(e.created))
	binary.LittleEndian.PutUint64(buf[8:], uint64(e.TouchedAt()))
	binary.LittleEndian.PutUint64(buf[16:], uint64(e.lifespan))
	binary.LittleEndian.PutUint64(buf[24:], uint64(e.maxIdle))
	binary.LittleEndian.PutUint32(buf[32:], uint32(len(key)))
	copy(buf[36:], key)
	copy(buf[36+len(key):], val)
	return buf, nil
}

func UnmarshalEntry(data []byte) (*Entry, error) {
	if len(data) < 36 {
		return nil, ErrMalformedEntry
	}
	keyLen := int(binary.LittleEndian.Uint32(data[32:]))
	if 36+keyLen > len(data) {
		return nil, ErrMalformedEntry
	}
	val := append([]byte(nil), data[36+keyLen:]...)
	e := &Entry{
		key:       NewKey(string(data[36 : 36+keyLen])),
		created:   int64(binary.LittleEndian.Uint64(data[0:])),
		touchedAt: int64(binary.LittleEndian.Uint64(data[8:])),
		lifespan:  int64(binary.LittleEndian.Uint64(data[16:])),
		maxIdle:   int64(binary.LittleEndian.Uint64(data[24:])),
	}
	e.value.Store(&val)
	return e, nil
}
