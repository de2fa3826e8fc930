// Package memory provides a sharded in-process RecordStore for
// single-instance deployments.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/phonegate/phonegate/internal/store"
	"github.com/sirupsen/logrus"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	records map[string]store.Record
}

// Store keeps records in sharded maps. A mutation for a given phone number
// always lands on the same shard, so per-key operations are serialized by
// the shard mutex without a global lock.
type Store struct {
	shards [shardCount]*shard
	logger *logrus.Logger

	stopOnce sync.Once
	stop     chan struct{}

	now func() time.Time
}

func New(logger *logrus.Logger) *Store {
	s := &Store{
		logger: logger,
		stop:   make(chan struct{}),
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]store.Record)}
	}
	return s
}

func (s *Store) shardFor(phoneNumber string) *shard {
	h := fnv.New32a()
	h.Write([]byte(phoneNumber))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) Put(_ context.Context, rec store.Record) error {
	sh := s.shardFor(rec.PhoneNumber)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.records[rec.PhoneNumber] = rec
	return nil
}

func (s *Store) Get(_ context.Context, phoneNumber string) (store.Record, bool, error) {
	sh := s.shardFor(phoneNumber)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[phoneNumber]
	return rec, ok, nil
}

func (s *Store) IncrementAttempts(_ context.Context, phoneNumber string) (int, error) {
	sh := s.shardFor(phoneNumber)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[phoneNumber]
	if !ok {
		return 0, store.ErrNotFound
	}
	rec.Attempts++
	sh.records[phoneNumber] = rec
	return rec.Attempts, nil
}

func (s *Store) Delete(_ context.Context, phoneNumber string) error {
	sh := s.shardFor(phoneNumber)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.records, phoneNumber)
	return nil
}

// StartSweep launches a background goroutine that evicts expired records at
// the given interval. Expiry is also checked lazily by callers on read; the
// sweep only bounds memory growth. Stop with Close.
func (s *Store) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) sweep() {
	now := s.now()
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for phone, rec := range sh.records {
			if rec.Expired(now) {
				delete(sh.records, phone)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		s.logger.WithField("evicted", evicted).Debug("Swept expired verification records")
	}
}
