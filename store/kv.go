package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/language"
)

const (
	defaultKVTimeout  = 5 * time.Second
	defaultCacheSize  = 1024
	defaultBucketName = "skosprobe"
)

// KVOptions configures the NATS KV store.
type KVOptions struct {
	Timeout   time.Duration // per-operation timeout
	CacheSize int           // LRU read-cache entries
}

// DefaultKVOptions returns sensible defaults.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:   defaultKVTimeout,
		CacheSize: defaultCacheSize,
	}
}

// KV is a Store backed by a NATS JetStream KV bucket, with an LRU read
// cache in front. Writes are last-writer-wins; the orchestrator's
// generation guard already serializes competing analysis commits, so no CAS
// loop is needed here.
type KV struct {
	bucket  jetstream.KeyValue
	cache   *lru.Cache[string, []byte]
	options KVOptions
}

// EnsureBucket creates or opens the KV bucket for the store.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	if name == "" {
		name = defaultBucketName
	}
	return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "skosprobe endpoint analyses and language priorities",
		History:     1,
	})
}

// NewKV creates a KV store on the given bucket.
func NewKV(bucket jetstream.KeyValue, opts ...func(*KVOptions)) (*KV, error) {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	cache, err := lru.New[string, []byte](options.CacheSize)
	if err != nil {
		return nil, err
	}
	return &KV{bucket: bucket, cache: cache, options: options}, nil
}

func (kv *KV) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

func (kv *KV) get(ctx context.Context, key string, out any) error {
	if data, ok := kv.cache.Get(key); ok {
		return json.Unmarshal(data, out)
	}

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}

	kv.cache.Add(key, entry.Value())
	return json.Unmarshal(entry.Value(), out)
}

func (kv *KV) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if _, err := kv.bucket.Put(ctx, key, data); err != nil {
		return err
	}
	kv.cache.Add(key, data)
	return nil
}

// Analysis returns the persisted snapshot for an endpoint.
func (kv *KV) Analysis(ctx context.Context, endpointID string) (*endpoint.Analysis, error) {
	var a endpoint.Analysis
	if err := kv.get(ctx, analysisKeyPrefix+endpointID, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAnalysis persists the snapshot.
func (kv *KV) SaveAnalysis(ctx context.Context, endpointID string, a *endpoint.Analysis) error {
	return kv.put(ctx, analysisKeyPrefix+endpointID, a)
}

// Priorities returns the persisted priority list for an endpoint.
func (kv *KV) Priorities(ctx context.Context, endpointID string) (*language.PriorityList, error) {
	var p language.PriorityList
	if err := kv.get(ctx, prioritiesKeyPrefix+endpointID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePriorities persists the priority list.
func (kv *KV) SavePriorities(ctx context.Context, endpointID string, p *language.PriorityList) error {
	return kv.put(ctx, prioritiesKeyPrefix+endpointID, p)
}
