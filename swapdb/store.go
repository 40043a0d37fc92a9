// Package swapdb implements the two-tier swap store: pending swaps live in
// a TTL-bounded keyed cache, accepted and settled swaps in a durable
// document store. The two tiers hide behind a single Store so the
// coordinator never touches either backend directly.
package swapdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"

	"github.com/lightningswap/subswapd/swap"
)

const (
	dbName           = "swaps.db"
	dbFilePermission = 0600

	// cacheKeyPrefix namespaces the pending tier's cache keys.
	cacheKeyPrefix = "sb."
)

// swapBucket is the top level bucket holding durable swap records, keyed by
// swap id, value the JSON-encoded record.
var swapBucket = []byte("swaps")

// Store is the dual-tier swap store.
type Store struct {
	cache *redis.Client
	db    *bbolt.DB
}

// A compile time check to ensure Store implements the store interface the
// coordinator and watcher are written against.
var _ swap.Store = (*Store)(nil)

// Open opens (creating if necessary) the durable store under dataDir and
// couples it with the passed cache client.
func Open(dataDir string, cache *redis.Client) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dataDir, dbName)
	db, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(swapBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		cache: cache,
		db:    db,
	}, nil
}

// Close releases the durable store. The cache client is owned by the caller.
func (s *Store) Close() error {
	return s.db.Close()
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

// PutPending writes a pending swap into the cache tier. The record expires
// after ttl, at which point lookups report swap.ErrSwapNotFound.
func (s *Store) PutPending(ctx context.Context, sw *swap.Swap,
	ttl time.Duration) error {

	record, err := json.Marshal(sw)
	if err != nil {
		return err
	}

	err = s.cache.Set(ctx, cacheKey(sw.ID), record, ttl).Err()
	if err != nil {
		return fmt.Errorf("unable to cache swap %v: %w", sw.ID, err)
	}

	return nil
}

// Get fetches a swap by id, preferring the cache tier. During the promote
// window a record may briefly exist in both tiers; the cache copy wins and
// the funding transition reconciles.
func (s *Store) Get(ctx context.Context, id string) (*swap.Swap, error) {
	record, err := s.cache.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		sw := &swap.Swap{}
		if err := json.Unmarshal(record, sw); err != nil {
			return nil, err
		}

		return sw, nil

	case err != redis.Nil:
		return nil, fmt.Errorf("cache lookup of swap %v: %w", id, err)
	}

	return s.GetDurable(ctx, id)
}

// GetDurable fetches a swap from the durable tier only.
func (s *Store) GetDurable(_ context.Context, id string) (*swap.Swap, error) {
	var record []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(swapBucket).Get([]byte(id))
		if value == nil {
			return swap.ErrSwapNotFound
		}

		record = make([]byte, len(value))
		copy(record, value)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sw := &swap.Swap{}
	if err := json.Unmarshal(record, sw); err != nil {
		return nil, err
	}

	return sw, nil
}

// Promote moves a swap from the pending tier to the durable tier: the
// durable insert happens strictly before the cache delete, so a crash in
// between leaves a temporary duplicate rather than a lost record. The call
// is idempotent and can be retried to finish a lost cache delete.
func (s *Store) Promote(ctx context.Context, sw *swap.Swap) error {
	if err := s.UpdateDurable(ctx, sw); err != nil {
		return err
	}

	err := s.cache.Del(ctx, cacheKey(sw.ID)).Err()
	if err != nil {
		return fmt.Errorf("unable to clear cached swap %v: %w",
			sw.ID, err)
	}

	return nil
}

// UpdateDurable overwrites the durable copy of the swap.
func (s *Store) UpdateDurable(_ context.Context, sw *swap.Swap) error {
	record, err := json.Marshal(sw)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(swapBucket).Put([]byte(sw.ID), record)
	})
}

// CancelPending rewrites the cache entry of a canceled swap under a short
// TTL, keeping the outcome observable for a little while.
func (s *Store) CancelPending(ctx context.Context, sw *swap.Swap,
	ttl time.Duration) error {

	return s.PutPending(ctx, sw, ttl)
}

// FindAccepted scans the durable tier for the accepted swap funded by the
// passed outpoint. The watcher calls this for every candidate spend, so a
// miss is the common case and reports swap.ErrSwapNotFound.
func (s *Store) FindAccepted(_ context.Context, fundingTxid string,
	fundingVout uint32) (*swap.Swap, error) {

	var match *swap.Swap
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(swapBucket).ForEach(func(_, value []byte) error {
			sw := &swap.Swap{}
			if err := json.Unmarshal(value, sw); err != nil {
				return err
			}

			if sw.Status != swap.StatusAccepted {
				return nil
			}
			if sw.FundingTxid != fundingTxid ||
				sw.FundingVout == nil ||
				*sw.FundingVout != fundingVout {

				return nil
			}

			match = sw
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, swap.ErrSwapNotFound
	}

	return match, nil
}
