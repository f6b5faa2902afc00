package model

import (
	"github.com/zeebo/xxh3"
	"unsafe"
)

// Key is the 128 bit xxh3 digest of a cache key. Value selects the shard and map slot; the full
// digest and the raw key tell collisions apart.
type Key struct {
	v   uint64
	hi  uint64
	lo  uint64
	raw string
}

func NewKey(key string) Key {
	h := xxh3.HashString128(key)
	return Key{v: h.Lo ^ h.Hi, hi: h.Hi, lo: h.Lo, raw: key}
}

func (k Key) Value() uint64  { return k.v }
func (k Key) String() string { return k.raw }

func (k Key) IsTheSame(other Key) bool {
	return k.v == other.v && k.hi == other.hi && k.lo == other.lo && k.raw == other.raw
}

// bytesOf views s without copying.
func bytesOf(s string) []byte { return unsafe.Slice(unsafe.StringData(s), len(s)) }
