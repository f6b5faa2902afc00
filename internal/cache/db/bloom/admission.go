// Package bloom implements TinyLFU admission: a doorkeeper bitset filters one hit wonders and a
// count-min sketch of 4 bit counters estimates access frequency. A candidate replaces an eviction
// victim only when it was seen more often. Caches with the LIRS strategy use it in front of LRU.
package bloom

import "github.com/infinispan/infinispan-subsystem/internal/config"

type AdmissionControl interface {
	Record(h uint64)
	Allow(candidate, victim uint64) bool
	Estimate(h uint64) uint8
	Reset()
}

func NewAdmissionControl(cfg *config.AdmissionControlCfg) AdmissionControl {
	if !cfg.Enabled() {
		return noop{}
	}
	return newTinyLFU(cfg)
}

type noop struct{}

func (noop) Record(uint64)             {}
func (noop) Allow(uint64, uint64) bool { return true }
func (noop) Estimate(uint64) uint8     { return 0 }
func (noop) Reset()                    {}
