// Package store persists the module catalog in Redis.
//
// # Layout
//
// Three key families share a configurable prefix:
//
//   - <prefix>mod:<name>: one JSON-encoded catalog record per module
//   - <prefix>index: a set of all module names with a persisted record
//   - <prefix>order: a list of identity strings, the published build order
//
// Record keys carry their own namespace so a module that happens to be
// named "index" or "order" can never collide with the reserved keys.
//
// # Reconnection
//
// The store owns a lazily-established connection handle. Any operation
// that fails with a transient error invalidates the handle; the next
// attempt transparently redials before retrying. Every operation is
// retried as a whole with a bounded attempt count and a fixed delay, so a
// dropped connection mid-write cannot leave a record without its index
// entry: the record write and the index add are re-issued together, and
// index membership is idempotent.
//
// # Corruption
//
// Bulk loads tolerate malformed stored payloads: the entry is surfaced as
// a nil record (the diff planner treats it as a cache miss) and logged,
// never fatal.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/zefline/pkg/catalog"
	"github.com/matzehuels/zefline/pkg/errors"
)

// Defaults for store tuning knobs.
const (
	DefaultPrefix        = "zefline:"
	DefaultBatchSize     = 50
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
)

// Key suffixes under the prefix. Records live under their own recordNS
// namespace so no module name can shadow the reserved index and order
// keys.
const (
	recordNS = "mod:"
	indexKey = "index"
	orderKey = "order"
)

// Options configures a Store.
type Options struct {
	Addr     string // Redis address, host:port
	Password string
	DB       int

	Prefix        string        // key prefix, DefaultPrefix if empty
	BatchSize     int           // bulk read/write batch size, DefaultBatchSize if 0
	RetryAttempts int           // attempts per operation, DefaultRetryAttempts if 0
	RetryDelay    time.Duration // fixed delay between attempts, DefaultRetryDelay if 0

	Logger *log.Logger // log.Default() if nil
}

// Store is the persistent mapping from module name to catalog record,
// plus the name index and the published build order list. Methods are
// safe for sequential use by a single goroutine; the pipeline is the only
// writer by design.
type Store struct {
	opts   Options
	logger *log.Logger

	mu     sync.Mutex
	client *redis.Client // nil when disconnected
}

// New creates a Store. No connection is established until the first
// operation needs one.
func New(opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Store{opts: opts, logger: logger}
}

// Close releases the connection, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// ensureConnected returns a live client, dialing if the handle was
// invalidated or never established.
func (s *Store) ensureConnected() *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{
			Addr:     s.opts.Addr,
			Password: s.opts.Password,
			DB:       s.opts.DB,
			// The store layers its own fixed-delay retry with reconnect
			// on top; the client should not retry underneath it.
			MaxRetries: -1,
		})
	}
	return s.client
}

// invalidate drops the connection handle so the next operation redials.
func (s *Store) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// do runs op with reconnect-and-retry semantics: each attempt gets a live
// client, and a transient failure invalidates the handle before the next
// attempt.
func (s *Store) do(ctx context.Context, op func(c *redis.Client) error) error {
	return retry(ctx, s.opts.RetryAttempts, s.opts.RetryDelay, func() error {
		err := op(s.ensureConnected())
		if err != nil && isTransient(err) {
			s.invalidate()
		}
		return err
	})
}

func (s *Store) recordKey(name string) string { return s.opts.Prefix + recordNS + name }

// BulkLoad reads every indexed record in batches. The returned map has one
// entry per indexed name; a nil value marks a malformed payload, which
// callers treat identically to absent. A batch that fails mid-flight
// triggers a reconnect and is retried whole, never silently dropped.
func (s *Store) BulkLoad(ctx context.Context) (map[string]*catalog.Record, error) {
	names, err := s.Members(ctx)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*catalog.Record, len(names))
	for batch := range sliceBatches(names, s.opts.BatchSize) {
		keys := make([]string, len(batch))
		for i, name := range batch {
			keys[i] = s.recordKey(name)
		}

		var vals []any
		err := s.do(ctx, func(c *redis.Client) error {
			var err error
			vals, err = c.MGet(ctx, keys...).Result()
			return err
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err,
				"bulk load batch of %d records", len(batch))
		}

		for i, v := range vals {
			name := batch[i]
			payload, ok := v.(string)
			if !ok {
				// Indexed but no record: transient gap reconciled by scrub.
				continue
			}
			var rec catalog.Record
			if err := json.Unmarshal([]byte(payload), &rec); err != nil || !rec.Valid() {
				s.logger.Warn("malformed cached record, treating as miss", "module", name)
				records[name] = nil
				continue
			}
			records[name] = &rec
		}
	}
	return records, nil
}

// Get returns the record for name, or nil when absent. A malformed payload
// is returned as nil with a logged warning, mirroring BulkLoad.
func (s *Store) Get(ctx context.Context, name string) (*catalog.Record, error) {
	var payload string
	err := s.do(ctx, func(c *redis.Client) error {
		var err error
		payload, err = c.Get(ctx, s.recordKey(name)).Result()
		return err
	})
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "get record %s", name)
	}

	var rec catalog.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil || !rec.Valid() {
		s.logger.Warn("malformed cached record, treating as miss", "module", name)
		return nil, nil
	}
	return &rec, nil
}

// Put writes the record and adds its name to the index as one logical
// unit. Both commands travel in a single pipeline and the pair is retried
// as a whole on transient failure; SADD is idempotent, so a replayed write
// cannot duplicate index entries.
func (s *Store) Put(ctx context.Context, rec catalog.Record) error {
	if err := errors.ValidateModuleName(rec.Name); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode record %s", rec.Name)
	}

	err = s.do(ctx, func(c *redis.Client) error {
		pipe := c.TxPipeline()
		pipe.Set(ctx, s.recordKey(rec.Name), payload, 0)
		pipe.SAdd(ctx, s.opts.Prefix+indexKey, rec.Name)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, err, "persist record %s", rec.Name)
	}
	return nil
}

// Delete removes a record and its index entry. Used by the scrub command
// for modules that no longer exist upstream.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.do(ctx, func(c *redis.Client) error {
		pipe := c.TxPipeline()
		pipe.Del(ctx, s.recordKey(name))
		pipe.SRem(ctx, s.opts.Prefix+indexKey, name)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, err, "delete record %s", name)
	}
	return nil
}

// Members returns every name in the index, sorted for deterministic
// processing order.
func (s *Store) Members(ctx context.Context) ([]string, error) {
	var names []string
	err := s.do(ctx, func(c *redis.Client) error {
		var err error
		names, err = c.SMembers(ctx, s.opts.Prefix+indexKey).Result()
		return err
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "load name index")
	}
	sort.Strings(names)
	return names, nil
}

// ScanRecords walks the record keyspace directly via SCAN, bypassing the
// index. Auditing and scrubbing use this when the index itself is
// untrusted. namePrefix narrows the walk to names starting with it; empty
// matches everything. Returns the bare module names, sorted.
func (s *Store) ScanRecords(ctx context.Context, namePrefix string) ([]string, error) {
	var names []string
	match := s.opts.Prefix + recordNS + namePrefix + "*"
	err := s.do(ctx, func(c *redis.Client) error {
		names = names[:0]
		iter := c.Scan(ctx, 0, match, int64(s.opts.BatchSize)).Iterator()
		for iter.Next(ctx) {
			names = append(names, iter.Val()[len(s.opts.Prefix)+len(recordNS):])
		}
		return iter.Err()
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "scan record keys")
	}
	sort.Strings(names)
	return names, nil
}

// OrderedList reads the published build order, front to back.
func (s *Store) OrderedList(ctx context.Context) ([]string, error) {
	var list []string
	err := s.do(ctx, func(c *redis.Client) error {
		var err error
		list, err = c.LRange(ctx, s.opts.Prefix+orderKey, 0, -1).Result()
		return err
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "read build order list")
	}
	return list, nil
}

// ReplaceOrderedList atomically swaps the published build order for the
// given identities. The old list is deleted and the new one pushed in
// fixed-size batches, each batch pipelined with the delete-or-append so a
// reader never observes a part-old/part-new mix larger than one batch.
func (s *Store) ReplaceOrderedList(ctx context.Context, identities []string) error {
	key := s.opts.Prefix + orderKey

	err := s.do(ctx, func(c *redis.Client) error {
		return c.Del(ctx, key).Err()
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWrite, err, "clear build order list")
	}

	for batch := range sliceBatches(identities, s.opts.BatchSize) {
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		err := s.do(ctx, func(c *redis.Client) error {
			return c.RPush(ctx, key, args...).Err()
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodeStoreWrite, err,
				"publish build order batch of %d", len(batch))
		}
	}
	return nil
}

// Ping verifies connectivity, reconnecting if needed.
func (s *Store) Ping(ctx context.Context) error {
	err := s.do(ctx, func(c *redis.Client) error {
		return c.Ping(ctx).Err()
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "ping store")
	}
	return nil
}

// sliceBatches yields s in consecutive chunks of at most size elements.
func sliceBatches[T any](s []T, size int) func(func([]T) bool) {
	return func(yield func([]T) bool) {
		for start := 0; start < len(s); start += size {
			end := min(start+size, len(s))
			if !yield(s[start:end]) {
				return
			}
		}
	}
}
