package embedded

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

const countersFile = "counters.yaml"

var (
	ErrUndefinedCounter = errors.New("undefined counter")
	ErrCounterBounds    = errors.New("counter value out of bounds")
	ErrNotStrongCounter = errors.New("operation requires a strong counter")
)

// CounterType is strong (bounded, compare-and-set) or weak.
type CounterType string

const (
	CounterStrong CounterType = "strong"
	CounterWeak   CounterType = "weak"
)

// CounterInfo describes a defined counter.
type CounterInfo struct {
	Name    string
	Type    CounterType
	Initial int64
	Value   int64
	Storage schema.StorageType
	Lower   *int64
	Upper   *int64
}

type counter struct {
	CounterInfo
}

// CounterManager holds the counters of a cache manager. Persistent counters are saved to the
// global state persistent location on stop and read back on start.
type CounterManager struct {
	mu       sync.Mutex
	counters map[string]*counter
	dir      string
}

func newCounterManager(cfg configuration.Counters, state configuration.GlobalState) *CounterManager {
	m := &CounterManager{counters: make(map[string]*counter)}
	if state.Enabled {
		m.dir = state.PersistentLocation
	}
	for _, s := range cfg.Strong {
		m.counters[s.Name] = &counter{CounterInfo{
			Name: s.Name, Type: CounterStrong, Initial: s.InitialValue, Value: s.InitialValue,
			Storage: s.Storage, Lower: s.LowerBound, Upper: s.UpperBound,
		}}
	}
	for _, w := range cfg.Weak {
		m.counters[w.Name] = &counter{CounterInfo{
			Name: w.Name, Type: CounterWeak, Initial: w.InitialValue, Value: w.InitialValue, Storage: w.Storage,
		}}
	}
	return m
}

func (m *CounterManager) get(name string) (*counter, error) {
	c, ok := m.counters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedCounter, name)
	}
	return c, nil
}

func (m *CounterManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.counters))
	for n := range m.counters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m *CounterManager) Info(name string) (CounterInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return CounterInfo{}, err
	}
	return c.CounterInfo, nil
}

func (m *CounterManager) Value(name string) (int64, error) {
	info, err := m.Info(name)
	return info.Value, err
}

// Add applies delta. A strong counter crossing a bound stops at the bound and reports ErrCounterBounds.
func (m *CounterManager) Add(name string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return 0, err
	}
	next := c.Value + delta
	if c.Lower != nil && next < *c.Lower {
		c.Value = *c.Lower
		return c.Value, fmt.Errorf("%w: %s lower bound %d", ErrCounterBounds, name, *c.Lower)
	}
	if c.Upper != nil && next > *c.Upper {
		c.Value = *c.Upper
		return c.Value, fmt.Errorf("%w: %s upper bound %d", ErrCounterBounds, name, *c.Upper)
	}
	c.Value = next
	return next, nil
}

func (m *CounterManager) Increment(name string) (int64, error) { return m.Add(name, 1) }
func (m *CounterManager) Decrement(name string) (int64, error) { return m.Add(name, -1) }

// CompareAndSet sets update when the strong counter holds expect.
func (m *CounterManager) CompareAndSet(name string, expect, update int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return false, err
	}
	if c.Type != CounterStrong {
		return false, fmt.Errorf("%w: %s", ErrNotStrongCounter, name)
	}
	if (c.Lower != nil && update < *c.Lower) || (c.Upper != nil && update > *c.Upper) {
		return false, fmt.Errorf("%w: %s", ErrCounterBounds, name)
	}
	if c.Value != expect {
		return false, nil
	}
	c.Value = update
	return true, nil
}

// Reset restores the initial value.
func (m *CounterManager) Reset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(name)
	if err != nil {
		return err
	}
	c.Value = c.Initial
	return nil
}

// Remove drops the counter state; the next access sees the initial value again.
func (m *CounterManager) Remove(name string) error { return m.Reset(name) }

type persistedCounters map[string]int64

func (m *CounterManager) path() string { return filepath.Join(m.dir, countersFile) }

func (m *CounterManager) load() error {
	if m.dir == "" {
		return nil
	}
	data, err := os.ReadFile(m.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("read counters: %w", err)
	}
	var values persistedCounters
	if err = yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("unmarshal counters from %s: %w", m.path(), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for n, v := range values {
		if c, ok := m.counters[n]; ok && c.Storage == schema.StoragePersistent {
			c.Value = v
		}
	}
	return nil
}

func (m *CounterManager) save() error {
	if m.dir == "" {
		return nil
	}
	m.mu.Lock()
	values := persistedCounters{}
	for n, c := range m.counters {
		if c.Storage == schema.StoragePersistent {
			values[n] = c.Value
		}
	}
	m.mu.Unlock()
	if len(values) == 0 {
		return nil
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	if err = os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", m.dir, err)
	}
	return os.WriteFile(m.path(), data, 0o644)
}
