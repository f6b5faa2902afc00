package bloom

import (
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"sync"
)

type tinyLFU struct {
	mask   uint64
	shards []lfuShard
}

type lfuShard struct {
	mu      sync.Mutex
	sketch  sketch
	door    doorkeeper
	adds    uint64
	resetAt uint64
	_       [40]byte
}

func newTinyLFU(cfg *config.AdmissionControlCfg) *tinyLFU {
	shards := nextPow2(max(cfg.Shards, 1))
	perShard := nextPow2(max(cfg.Capacity/shards, 16))
	t := &tinyLFU{mask: uint64(shards - 1), shards: make([]lfuShard, shards)}
	for i := range t.shards {
		sh := &t.shards[i]
		sh.sketch.init(perShard)
		sh.door.init(perShard * max(cfg.DoorBitsPerCounter, 1))
		sh.resetAt = uint64(perShard * max(cfg.SampleMultiplier, 1))
	}
	return t
}

func (t *tinyLFU) shard(h uint64) *lfuShard { return &t.shards[h&t.mask] }

// Record counts an access. The first sighting only sets doorkeeper bits.
func (t *tinyLFU) Record(h uint64) {
	sh := t.shard(h)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if !sh.door.seenOrAdd(h) {
		return
	}
	sh.sketch.increment(h)
	if sh.adds++; sh.adds >= sh.resetAt {
		sh.sketch.halve()
		sh.door.reset()
		sh.adds = 0
	}
}

// Allow admits a candidate only when it is strictly more frequent than the victim.
func (t *tinyLFU) Allow(candidate, victim uint64) bool {
	if candidate == victim {
		return true
	}
	cs := t.shard(candidate)
	cs.mu.Lock()
	seen := cs.door.probablySeen(candidate)
	cf := cs.sketch.estimate(candidate)
	cs.mu.Unlock()
	if !seen {
		return false
	}
	vs := t.shard(victim)
	vs.mu.Lock()
	vf := vs.sketch.estimate(victim)
	vs.mu.Unlock()
	return cf > vf
}

func (t *tinyLFU) Estimate(h uint64) uint8 {
	sh := t.shard(h)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sketch.estimate(h)
}

func (t *tinyLFU) Reset() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		sh.sketch.clear()
		sh.door.reset()
		sh.adds = 0
		sh.mu.Unlock()
	}
}

// sketch packs sixteen 4 bit counters per word; each key touches four of them.
type sketch struct {
	words []uint64
	mask  uint64
}

func (s *sketch) init(counters int) {
	s.words = make([]uint64, (counters+15)/16)
	s.mask = uint64(counters - 1)
}

func (s *sketch) indexes(h uint64) [4]uint64 {
	var out [4]uint64
	for i := range out {
		out[i] = h & s.mask
		h = mix64(h)
	}
	return out
}

func (s *sketch) get(i uint64) uint8 {
	return uint8(s.words[i/16]>>((i%16)*4)) & 0xF
}

func (s *sketch) increment(h uint64) {
	for _, i := range s.indexes(h) {
		if s.get(i) < 15 {
			s.words[i/16] += 1 << ((i % 16) * 4)
		}
	}
}

func (s *sketch) estimate(h uint64) uint8 {
	m := uint8(15)
	for _, i := range s.indexes(h) {
		m = min(m, s.get(i))
	}
	return m
}

// halve ages every counter.
func (s *sketch) halve() {
	for i, w := range s.words {
		s.words[i] = (w >> 1) & 0x7777777777777777
	}
}

func (s *sketch) clear() { clear(s.words) }

type doorkeeper struct {
	bits []uint64
	mask uint64
}

func (d *doorkeeper) init(n int) {
	n = nextPow2(max(n, 64))
	d.bits = make([]uint64, n/64)
	d.mask = uint64(n - 1)
}

func (d *doorkeeper) positions(h uint64) [3]uint64 {
	return [3]uint64{h & d.mask, mix64(h) & d.mask, mix64(h^0xA5A5A5A5A5A5A5A5) & d.mask}
}

func (d *doorkeeper) probablySeen(h uint64) bool {
	for _, p := range d.positions(h) {
		if d.bits[p/64]&(1<<(p%64)) == 0 {
			return false
		}
	}
	return true
}

// seenOrAdd reports whether h was probably seen and marks it seen.
func (d *doorkeeper) seenOrAdd(h uint64) bool {
	seen := true
	for _, p := range d.positions(h) {
		if d.bits[p/64]&(1<<(p%64)) == 0 {
			seen = false
			d.bits[p/64] |= 1 << (p % 64)
		}
	}
	return seen
}

func (d *doorkeeper) reset() { clear(d.bits) }

func nextPow2(x int) int {
	p := 1
	for p < x {
		p <<= 1
	}
	return p
}

// mix64 is the SplitMix64 finalizer.
func mix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
