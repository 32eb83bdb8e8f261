package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
)

// ComponentGetter is the subset of internal/worker.ComponentSource
// CachingComponentSource fronts. Restated here instead of imported to
// avoid an import cycle (internal/worker does not, and should not, depend
// on this package).
type ComponentGetter interface {
	Get(ctx context.Context, id uuid.UUID, version uint64) ([]byte, domain.ComponentMetadata, error)
}

// componentTTL bounds how long a registered component can be overwritten
// in place before a stale cache entry is noticed. Versions are normally
// immutable, so this is not a correctness requirement, only a bound on how
// long a re-`Register` of the same (id, version) takes to become visible.
const componentTTL = 10 * time.Minute

// cachedComponent is the envelope stored per cache entry. Unlike
// codeloader.FSSource's own private byte-only cache (which still re-reads
// metadata.json from disk on every Get), this caches bytes and metadata
// together so a hit skips the backing source entirely.
type cachedComponent struct {
	Code []byte
	Meta domain.ComponentMetadata
}

// CachingComponentSource wraps a ComponentGetter with a read-through
// Cache, keyed by (component_id, version), fronting a slower backend.
// InMemoryCache places no bound on the number of entries it holds.
type CachingComponentSource struct {
	next  ComponentGetter
	cache Cache
}

// NewCachingComponentSource wraps next behind backing.
func NewCachingComponentSource(next ComponentGetter, backing Cache) *CachingComponentSource {
	return &CachingComponentSource{next: next, cache: backing}
}

// Get answers from the cache on a hit; on a miss it resolves through next
// and populates the cache for subsequent callers.
func (c *CachingComponentSource) Get(ctx context.Context, id uuid.UUID, version uint64) ([]byte, domain.ComponentMetadata, error) {
	key := componentCacheKey(id, version)

	if raw, err := c.cache.Get(ctx, key); err == nil {
		var entry cachedComponent
		if err := json.Unmarshal(raw, &entry); err == nil {
			return entry.Code, entry.Meta, nil
		}
	}

	code, meta, err := c.next.Get(ctx, id, version)
	if err != nil {
		return nil, domain.ComponentMetadata{}, err
	}

	if raw, err := json.Marshal(cachedComponent{Code: code, Meta: meta}); err == nil {
		_ = c.cache.Set(ctx, key, raw, componentTTL)
	}
	return code, meta, nil
}

func componentCacheKey(id uuid.UUID, version uint64) string {
	return fmt.Sprintf("component:%s:%d", id, version)
}
