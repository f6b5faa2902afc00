// Package dump is the file store of a cache: an in-memory index of stored entries that is
// snapshotted to a single file (length + crc32 framed records, optionally gzipped).
package dump

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/shared/cachedtime"
	"github.com/rs/zerolog"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrReadOnly     = errors.New("store is read only")
	ErrStoreStopped = errors.New("store is stopped")
)

// FileStore keeps entries keyed by their raw key and persists them on Sync.
type FileStore struct {
	cfg    *config.PersistenceCfg
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*model.Entry
	order   []string // insertion order, trimmed when MaxEntries is exceeded
	dirty   bool
	running bool
}

func New(cfg *config.PersistenceCfg, logger zerolog.Logger) *FileStore {
	return &FileStore{
		cfg:     cfg,
		logger:  logger.With().Str("component", "file-store").Str("path", pathOf(cfg)).Logger(),
		entries: make(map[string]*model.Entry),
	}
}

func pathOf(cfg *config.PersistenceCfg) string {
	name := cfg.Name + ".dat"
	if cfg.Gzip {
		name += ".gz"
	}
	return filepath.Join(cfg.Dir, name)
}

func (s *FileStore) Path() string { return pathOf(s.cfg) }

// Start reads the file, or deletes it when purging on startup.
func (s *FileStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*model.Entry)
	s.order = nil
	s.running = true
	if s.cfg.PurgeOnStartup {
		if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("purge store file: %w", err)
		}
		return nil
	}
	return s.load(ctx)
}

// Stop flushes pending modifications.
func (s *FileStore) Stop(ctx context.Context) error {
	err := s.Sync(ctx)
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return err
}

func (s *FileStore) Load(key string) (*model.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if ok && e.IsExpired(cachedtime.UnixNano()) {
		return nil, false
	}
	return e, ok
}

func (s *FileStore) Contains(key string) bool {
	_, ok := s.Load(key)
	return ok
}

func (s *FileStore) Store(e *model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	key := e.Key().String()
	if _, ok := s.entries[key]; !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = e
	s.dirty = true
	s.trimUnlocked()
	return nil
}

func (s *FileStore) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return false, err
	}
	if _, ok := s.entries[key]; !ok {
		return false, nil
	}
	delete(s.entries, key)
	s.dirty = true
	return true, nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.entries = make(map[string]*model.Entry)
	s.order = nil
	s.dirty = true
	return nil
}

func (s *FileStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Each visits every stored, unexpired entry.
func (s *FileStore) Each(fn func(*model.Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := cachedtime.UnixNano()
	for _, e := range s.entries {
		if !e.IsExpired(now) && !fn(e) {
			return
		}
	}
}

// PurgeExpired drops expired entries and returns how many were dropped.
func (s *FileStore) PurgeExpired(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, k)
			n++
		}
	}
	if n > 0 {
		s.dirty = true
	}
	return n
}

func (s *FileStore) writable() error {
	if !s.running {
		return ErrStoreStopped
	}
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// trimUnlocked drops the oldest entries above MaxEntries.
func (s *FileStore) trimUnlocked() {
	if s.cfg.MaxEntries <= 0 {
		return
	}
	for int64(len(s.entries)) > s.cfg.MaxEntries && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	if len(s.order) > 2*len(s.entries) {
		kept := s.order[:0]
		for _, k := range s.order {
			if _, ok := s.entries[k]; ok {
				kept = append(kept, k)
			}
		}
		s.order = kept
	}
}

// Sync writes the entries to a temporary file and renames it over the store file.
func (s *FileStore) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.cfg.ReadOnly {
		return nil
	}
	start := time.Now()
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := s.Path() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create store file: %w", err)
	}
	written, err := s.writeTo(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write store file: %w", err)
	}
	if err = os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("rename store file: %w", err)
	}
	s.dirty = false
	s.logger.Debug().Int("written", written).Str("elapsed", time.Since(start).String()).Msg("store synced")
	return nil
}

func (s *FileStore) writeTo(ctx context.Context, f io.Writer) (written int, err error) {
	var gw *gzip.Writer
	if s.cfg.Gzip {
		gw = gzip.NewWriter(f)
		f = gw
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	var meta [8]byte
	for _, e := range s.entries {
		if err = ctx.Err(); err != nil {
			return written, err
		}
		data, _ := e.MarshalBinary()
		var crc uint32
		if s.cfg.Crc32Control {
			crc = crc32.ChecksumIEEE(data)
		}
		binary.LittleEndian.PutUint32(meta[0:4], uint32(len(data)))
		binary.LittleEndian.PutUint32(meta[4:8], crc)
		if _, err = bw.Write(meta[:]); err != nil {
			return written, err
		}
		if _, err = bw.Write(data); err != nil {
			return written, err
		}
		written++
	}
	if err = bw.Flush(); err != nil {
		return written, err
	}
	if gw != nil {
		err = gw.Close()
	}
	return written, err
}

func (s *FileStore) load(ctx context.Context) error {
	start := time.Now()
	f, err := os.Open(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.cfg.Gzip {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip store file: %w", err)
		}
		defer gzr.Close()
		r = gzr
	}
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		meta              [8]byte
		restored, corrupt int
		now               = cachedtime.UnixNano()
	)
	for ctx.Err() == nil {
		if _, err = io.ReadFull(br, meta[:]); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("read record header: %w", err)
		}
		buf := make([]byte, binary.LittleEndian.Uint32(meta[0:4]))
		if _, err = io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		if s.cfg.Crc32Control && crc32.ChecksumIEEE(buf) != binary.LittleEndian.Uint32(meta[4:8]) {
			corrupt++
			continue
		}
		e, err := model.UnmarshalEntry(buf)
		if err != nil {
			corrupt++
			continue
		}
		if e.IsExpired(now) {
			continue
		}
		s.entries[e.Key().String()] = e
		s.order = append(s.order, e.Key().String())
		restored++
	}
	s.logger.Info().
		Int("restored", restored).
		Int("corrupt", corrupt).
		Str("elapsed", time.Since(start).String()).
		Msg("store loaded")
	return ctx.Err()
}
