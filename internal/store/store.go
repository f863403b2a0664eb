// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
)

var (
	// ErrNotFound is returned when a key or store does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned after Close.
	ErrClosed = fmt.Errorf("%w: store manager is closed", models.ErrPersistence)

	// ErrInvalidName is returned for empty names or names with control characters.
	ErrInvalidName = errors.New("invalid store name")

	// ErrFull is returned by Insert when the store already holds limit entries.
	ErrFull = fmt.Errorf("%w: store is full", models.ErrPersistence)

	// ErrExists is returned by Insert when the key is already present.
	ErrExists = fmt.Errorf("%w: key already exists", models.ErrPersistence)
)

const (
	prefixRegistration = "r\x00"
	prefixEntry        = "e\x00"
	sep                = '\x00'
)

// Options configures the underlying BadgerDB.
type Options struct {
	Path             string
	InMemory         bool
	SyncWrites       bool
	MemTableSize     int64
	ValueLogFileSize int64
	GCDiscardRatio   float64
	CloseTimeout     time.Duration
}

// OptionsFromConfig maps the cache section of the gateway configuration.
func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		Path:             cfg.Path,
		InMemory:         cfg.InMemory,
		SyncWrites:       cfg.SyncWrites,
		MemTableSize:     cfg.MemTableSize,
		ValueLogFileSize: cfg.ValueLogFileSize,
		GCDiscardRatio:   cfg.GCDiscardRatio,
		CloseTimeout:     30 * time.Second,
	}
}

type registration struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager owns the database and hands out Store handles.
type Manager struct {
	db   *badger.DB
	opts Options

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Manager, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("%w: path is required", models.ErrPersistence)
	}
	if opts.GCDiscardRatio <= 0 || opts.GCDiscardRatio >= 1 {
		opts.GCDiscardRatio = 0.5
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 30 * time.Second
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites
	if opts.MemTableSize > 0 {
		bopts.MemTableSize = opts.MemTableSize
	}
	if opts.ValueLogFileSize > 0 {
		bopts.ValueLogFileSize = opts.ValueLogFileSize
	}
	bopts.NumCompactors = 2
	bopts.Compression = options.Snappy
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", models.ErrPersistence, err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Cache stores opened")

	return &Manager{db: db, opts: opts}, nil
}

// OpenInMemory opens a throwaway manager for tests.
func OpenInMemory() (*Manager, error) {
	return Open(Options{InMemory: true, MemTableSize: 8 << 20})
}

func validName(name string) error {
	if name == "" || len(name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

func registrationKey(name string) []byte {
	return []byte(prefixRegistration + name)
}

func entryPrefix(name string) []byte {
	b := make([]byte, 0, len(prefixEntry)+len(name)+1)
	b = append(b, prefixEntry...)
	b = append(b, name...)
	return append(b, sep)
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// ensureRegistered writes the registration record inside txn if it is missing.
func ensureRegistered(txn *badger.Txn, name string) error {
	_, err := txn.Get(registrationKey(name))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	val, err := json.Marshal(registration{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return txn.Set(registrationKey(name), val)
}

// Open returns the named store, creating and registering it if needed.
func (m *Manager) Open(name string) (*Store, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		return ensureRegistered(txn, name)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: register store %s: %v", models.ErrPersistence, name, err)
	}
	return &Store{m: m, name: name, prefix: entryPrefix(name)}, nil
}

// Names lists registered stores in creation order.
func (m *Manager) Names() ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var regs []registration
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixRegistration)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var reg registration
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &reg)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable store registration")
				continue
			}
			regs = append(regs, reg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list stores: %v", models.ErrPersistence, err)
	}

	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].CreatedAt.Equal(regs[j].CreatedAt) {
			return regs[i].Name < regs[j].Name
		}
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.Name
	}
	return names, nil
}

// Has reports whether name is registered.
func (m *Manager) Has(name string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(registrationKey(name))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup store %s: %v", models.ErrPersistence, name, err)
	}
	return true, nil
}

// Delete drops the store and all of its entries. It reports whether the
// store existed.
func (m *Manager) Delete(name string) (bool, error) {
	existed, err := m.Has(name)
	if err != nil {
		return false, err
	}
	if err := validName(name); err != nil {
		return existed, err
	}

	if err := m.db.DropPrefix(entryPrefix(name)); err != nil {
		return existed, fmt.Errorf("%w: drop entries of %s: %v", models.ErrPersistence, name, err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(registrationKey(name))
	})
	if err != nil {
		return existed, fmt.Errorf("%w: unregister %s: %v", models.ErrPersistence, name, err)
	}
	if existed {
		logging.Info().Str("store", name).Msg("Cache store deleted")
	}
	return existed, nil
}

// Match searches every store in creation order and returns the first stored
// response for key along with the name of the store that held it. Entries
// that do not decode as a response are skipped.
func (m *Manager) Match(ctx context.Context, key string) (*models.Response, string, error) {
	names, err := m.Names()
	if err != nil {
		return nil, "", err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		s := &Store{m: m, name: name, prefix: entryPrefix(name)}
		resp, err := s.GetResponse(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if errors.Is(err, models.ErrParse) {
			// not a response, e.g. a queue entry under the same key
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return resp, name, nil
	}
	return nil, "", ErrNotFound
}

// Stats returns the number of entries per registered store.
func (m *Manager) Stats(ctx context.Context) (map[string]int, error) {
	names, err := m.Names()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(names))
	for _, name := range names {
		s := &Store{m: m, name: name, prefix: entryPrefix(name)}
		n, err := s.Len(ctx)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

// RunGC reclaims value log space until nothing is left to rewrite. It
// reports whether any file was rewritten.
func (m *Manager) RunGC() (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	if m.opts.InMemory {
		return false, nil
	}

	rewritten := false
	for {
		err := m.db.RunValueLogGC(m.opts.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			metrics.StoreGCRuns.WithLabelValues("error").Inc()
			return rewritten, fmt.Errorf("%w: value log gc: %v", models.ErrPersistence, err)
		}
		rewritten = true
	}
	if rewritten {
		metrics.StoreGCRuns.WithLabelValues("rewritten").Inc()
	} else {
		metrics.StoreGCRuns.WithLabelValues("nothing").Inc()
	}
	return rewritten, nil
}

// Close flushes and closes the database, giving up after the close timeout.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- m.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: close badger: %v", models.ErrPersistence, err)
		}
		logging.Info().Msg("Cache stores closed")
		return nil
	case <-time.After(m.opts.CloseTimeout):
		logging.Warn().Dur("timeout", m.opts.CloseTimeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("%w: close timed out after %v", models.ErrPersistence, m.opts.CloseTimeout)
	}
}

// Store is a handle on one named store. Handles are cheap and safe for
// concurrent use.
type Store struct {
	m      *Manager
	name   string
	prefix []byte
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

func (s *Store) entryKey(key string) []byte {
	b := make([]byte, 0, len(s.prefix)+len(key))
	b = append(b, s.prefix...)
	return append(b, key...)
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	if err := s.m.checkOpen(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.entryKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", models.ErrPersistence, s.name, key, err)
	}
	return out, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key string, value []byte) error {
	if err := s.m.checkOpen(); err != nil {
		return err
	}
	err := s.m.db.Update(func(txn *badger.Txn) error {
		if err := ensureRegistered(txn, s.name); err != nil {
			return err
		}
		return txn.Set(s.entryKey(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", models.ErrPersistence, s.name, key, err)
	}
	return nil
}

// Insert stores value under a key that must not exist yet, refusing when the
// store already holds limit entries (limit <= 0 means unbounded).
func (s *Store) Insert(key string, value []byte, limit int) error {
	if err := s.m.checkOpen(); err != nil {
		return err
	}
	err := s.m.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(s.entryKey(key)); err == nil {
			return ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if limit > 0 && countPrefix(txn, s.prefix, limit) >= limit {
			return ErrFull
		}
		if err := ensureRegistered(txn, s.name); err != nil {
			return err
		}
		return txn.Set(s.entryKey(key), value)
	})
	if errors.Is(err, ErrExists) || errors.Is(err, ErrFull) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: insert %s/%s: %v", models.ErrPersistence, s.name, key, err)
	}
	return nil
}

// countPrefix counts keys under prefix, stopping once stop is reached.
func countPrefix(txn *badger.Txn, prefix []byte, stop int) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
		if stop > 0 && n >= stop {
			break
		}
	}
	return n
}

// Update replaces the value of an existing key with fn(current) in a single
// transaction. A missing key yields ErrNotFound without calling fn.
func (s *Store) Update(key string, fn func(value []byte) ([]byte, error)) error {
	if err := s.m.checkOpen(); err != nil {
		return err
	}
	err := s.m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(s.entryKey(key))
		if err != nil {
			return err
		}
		cur, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		return txn.Set(s.entryKey(key), next)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: update %s/%s: %v", models.ErrPersistence, s.name, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.m.checkOpen(); err != nil {
		return err
	}
	err := s.m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.entryKey(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", models.ErrPersistence, s.name, key, err)
	}
	return nil
}

// Keys returns every key in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.iterate(ctx, false, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// Each calls fn for every entry in lexical key order. The value slice is only
// valid during the call.
func (s *Store) Each(ctx context.Context, fn func(key string, value []byte) error) error {
	return s.iterate(ctx, true, fn)
}

// Len returns the number of entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.iterate(ctx, false, func(string, []byte) error {
		n++
		return nil
	})
	return n, err
}

// Clear removes every entry but keeps the store registered.
func (s *Store) Clear() error {
	if err := s.m.checkOpen(); err != nil {
		return err
	}
	if err := s.m.db.DropPrefix(s.prefix); err != nil {
		return fmt.Errorf("%w: clear %s: %v", models.ErrPersistence, s.name, err)
	}
	return nil
}

func (s *Store) iterate(ctx context.Context, values bool, fn func(key string, value []byte) error) error {
	if err := s.m.checkOpen(); err != nil {
		return err
	}
	err := s.m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = values
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(bytes.TrimPrefix(item.Key(), s.prefix))
			if !values {
				if err := fn(key, nil); err != nil {
					return err
				}
				continue
			}
			err := item.Value(func(val []byte) error {
				return fn(key, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, models.ErrPersistence) || errors.Is(err, models.ErrParse) {
			return err
		}
		return fmt.Errorf("%w: iterate %s: %v", models.ErrPersistence, s.name, err)
	}
	return nil
}

// GetResponse reads a stored response.
func (s *Store) GetResponse(key string) (*models.Response, error) {
	raw, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordCacheLookup(s.name, false, nil)
		return nil, err
	}
	if err != nil {
		metrics.RecordCacheLookup(s.name, false, err)
		return nil, err
	}
	var resp models.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		metrics.RecordCacheLookup(s.name, false, err)
		return nil, fmt.Errorf("%w: decode %s/%s: %v", models.ErrParse, s.name, key, err)
	}
	if resp.Status == 0 {
		err := fmt.Errorf("%w: %s/%s is not a stored response", models.ErrParse, s.name, key)
		metrics.RecordCacheLookup(s.name, false, err)
		return nil, err
	}
	metrics.RecordCacheLookup(s.name, true, nil)
	resp.Source = models.SourceCache
	return &resp, nil
}

// PutResponse stores resp under key, stamping StoredAt.
func (s *Store) PutResponse(key string, resp *models.Response) error {
	c := resp.Clone()
	c.StoredAt = time.Now().UTC()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: encode response for %s: %v", models.ErrParse, key, err)
	}
	err = s.Put(key, raw)
	metrics.RecordCacheWrite(s.name, err)
	return err
}
