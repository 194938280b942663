package datalayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finance-datalayer/internal/apiclient"
	"finance-datalayer/internal/cache"
	"finance-datalayer/internal/localstore"
	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/resource"
	syncmgr "finance-datalayer/internal/sync"
)

type readOptions struct {
	bypassCache bool
}

type ReadOption func(*readOptions)

// WithBypassCache skips the initial cache lookup. The cache is still used as
// a fallback when the backend cannot be reached.
func WithBypassCache() ReadOption {
	return func(o *readOptions) { o.bypassCache = true }
}

// offline reports whether operations should take the offline path.
func (d *DataLayer) offline() bool {
	return d.config().OfflineEnabled && !d.sync.IsOnline()
}

// Create stores a new resource. When no tier can be reached at all the
// failure never reaches the caller: the resource is kept locally, marked
// offline and queued for replay. Server and client errors are returned.
func (d *DataLayer) Create(ctx context.Context, kind resource.Kind, data map[string]any) (resource.Resource, error) {
	spec, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	if d.offline() {
		return d.createOffline(ctx, spec, data)
	}

	var lastErr, answered error
	for _, tier := range d.remoteTiers() {
		resp, err := tier.client.Post(ctx, spec.CollectionPath(), data)
		if err == nil {
			created, err := d.decode(kind, resp, true)
			if err != nil {
				return nil, fmt.Errorf("failed to decode created %s: %w", kind, err)
			}
			if created == nil {
				created = resource.Resource(data).Clone()
			}
			d.cacheResource(kind, created)
			d.cache.InvalidatePattern(cache.ListPattern(string(kind)))
			return created, nil
		}
		lastErr = err
		logger.Log.Warn("Create failed",
			zap.String("tier", tier.name),
			zap.String("resource", string(kind)),
			zap.Error(err),
		)
		switch {
		case unreachable(err):
		case transient(err):
			answered = err
		default:
			return nil, err
		}
	}

	// A tier that answered with a server error is not an outage.
	if answered != nil {
		return nil, answered
	}
	logger.Log.Info("Backend unreachable, keeping resource locally",
		zap.String("resource", string(kind)),
		zap.NamedError("cause", lastErr),
	)
	return d.createOffline(ctx, spec, data)
}

func (d *DataLayer) createOffline(ctx context.Context, spec resource.Spec, data map[string]any) (resource.Resource, error) {
	r := resource.Resource(data).Clone()
	if r.ID() == "" {
		r["id"] = TempIDPrefix + uuid.NewString()
	}
	r.Touch(d.now())

	payload := r.Clone()
	r[resource.OfflineMarker] = true

	d.cacheResource(spec.Kind, r)
	d.cache.InvalidatePattern(cache.ListPattern(string(spec.Kind)))

	if err := d.local.Append(ctx, spec.Kind, r); err != nil {
		logger.Log.Warn("Failed to store offline resource", zap.String("id", r.ID()), zap.Error(err))
	}
	if _, err := d.sync.QueueOperation(ctx, spec.Kind, syncmgr.OpCreate, payload, d.config().SyncMaxRetries); err != nil {
		return nil, fmt.Errorf("failed to queue offline create: %w", err)
	}
	return r, nil
}

// Read returns one resource when id is set, otherwise the collection. The
// result is the unwrapped JSON payload.
func (d *DataLayer) Read(ctx context.Context, kind resource.Kind, id string, params map[string]string, opts ...ReadOption) (json.RawMessage, error) {
	spec, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := d.config()
	key := cache.BuildKey(string(kind), id, params)

	cacheChecked := cfg.CacheEnabled && !o.bypassCache
	if cacheChecked {
		if raw, ok := d.cachedRaw(key); ok {
			return raw, nil
		}
	}

	if d.offline() {
		if !cacheChecked {
			if raw, ok := d.cachedRaw(key); ok {
				return raw, nil
			}
		}
		if raw, ok := d.readLocal(ctx, kind, id); ok {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNotAvailableOffline, key)
	}

	raw, err := d.fetch(ctx, spec, id, params)
	if err == nil {
		if cfg.CacheEnabled {
			d.cache.Set(key, raw, cfg.CacheTTL)
		}
		return raw, nil
	}

	logger.Log.Warn("Read failed, falling back",
		zap.String("resource", string(kind)),
		zap.String("key", key),
		zap.Error(err),
	)
	if !cacheChecked {
		if raw, ok := d.cachedRaw(key); ok {
			return raw, nil
		}
	}
	if raw, ok := d.readLocal(ctx, kind, id); ok {
		return raw, nil
	}
	return nil, err
}

// ReadInto decodes the result of Read into T.
func ReadInto[T any](ctx context.Context, d *DataLayer, kind resource.Kind, id string, params map[string]string, opts ...ReadOption) (T, error) {
	var out T
	raw, err := d.Read(ctx, kind, id, params, opts...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return out, nil
}

func (d *DataLayer) fetch(ctx context.Context, spec resource.Spec, id string, params map[string]string) (json.RawMessage, error) {
	cfg := d.config()
	endpoint := spec.CollectionPath()
	if id != "" {
		endpoint = spec.ItemPath(id)
	}

	var resp *apiclient.Response
	err := d.primary.Retry(ctx, func(ctx context.Context) error {
		r, err := d.primary.Get(ctx, endpoint, params)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, cfg.RetryAttempts, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty %s response", spec.Kind)
	}
	return spec.Unwrap(resp.Data, id != "")
}

func (d *DataLayer) cachedRaw(key string) (json.RawMessage, bool) {
	v, ok := d.cache.Get(key)
	if !ok {
		return nil, false
	}
	raw, ok := v.(json.RawMessage)
	return raw, ok
}

// readLocal serves a read from the local store. An empty collection counts
// as a miss.
func (d *DataLayer) readLocal(ctx context.Context, kind resource.Kind, id string) (json.RawMessage, bool) {
	var v any
	if id != "" {
		r, err := d.local.Get(ctx, kind, id)
		if err != nil {
			return nil, false
		}
		v = r
	} else {
		list, err := d.local.List(ctx, kind)
		if err != nil || len(list) == 0 {
			return nil, false
		}
		v = list
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Update patches a resource. Online failures are never applied locally: a
// transient failure is queued for replay and still returned to the caller.
// Offline, the patch is applied to the known copy and queued.
func (d *DataLayer) Update(ctx context.Context, kind resource.Kind, id string, data map[string]any) (resource.Resource, error) {
	spec, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	// A resource whose create is still queued has no backend copy to patch.
	if d.offline() || d.pendingCreate(kind, id) != "" {
		return d.updateOffline(ctx, spec, id, data)
	}

	var lastErr error
	for _, tier := range d.remoteTiers() {
		resp, err := tier.client.Put(ctx, spec.ItemPath(id), data)
		if err == nil {
			updated, err := d.decode(kind, resp, true)
			if err != nil {
				return nil, fmt.Errorf("failed to decode updated %s: %w", kind, err)
			}
			if updated == nil {
				updated = resource.Resource(data).Clone()
				updated["id"] = id
			}
			d.cacheResource(kind, updated)
			d.cache.InvalidatePattern(cache.ListPattern(string(kind)))
			return updated, nil
		}
		lastErr = err
		logger.Log.Warn("Update failed",
			zap.String("tier", tier.name),
			zap.String("resource", string(kind)),
			zap.String("id", id),
			zap.Error(err),
		)
		if !transient(err) {
			return nil, err
		}
	}

	payload := resource.Resource(data).Clone()
	payload["id"] = id
	if _, err := d.sync.QueueOperation(ctx, kind, syncmgr.OpUpdate, payload, d.config().SyncMaxRetries); err != nil {
		return nil, errors.Join(lastErr, err)
	}
	return nil, errors.Join(ErrQueuedForRetry, lastErr)
}

func (d *DataLayer) updateOffline(ctx context.Context, spec resource.Spec, id string, data map[string]any) (resource.Resource, error) {
	current, ok := d.cachedResource(spec.Kind, id)
	if !ok {
		r, err := d.local.Get(ctx, spec.Kind, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFoundInCache, spec.Kind, id)
		}
		current = r
	}

	updated := current.Merge(data)
	updated["id"] = id
	updated.Touch(d.now())
	d.cacheResource(spec.Kind, updated)
	d.cache.InvalidatePattern(cache.ListPattern(string(spec.Kind)))

	if _, err := d.local.Update(ctx, spec.Kind, id, updated); err != nil && !errors.Is(err, localstore.ErrNotFound) {
		logger.Log.Warn("Failed to update local copy", zap.String("id", id), zap.Error(err))
	}

	payload := updated.Clone()
	delete(payload, resource.OfflineMarker)

	// Fold the change into a create that has not been replayed yet, so the
	// backend receives the edited resource and no update targets a temp id.
	if opID := d.pendingCreate(spec.Kind, id); opID != "" {
		amended, err := d.sync.AmendOperation(ctx, opID, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to amend pending create: %w", err)
		}
		if amended {
			return updated, nil
		}
	}
	if _, err := d.sync.QueueOperation(ctx, spec.Kind, syncmgr.OpUpdate, payload, d.config().SyncMaxRetries); err != nil {
		return nil, fmt.Errorf("failed to queue offline update: %w", err)
	}
	return updated, nil
}

// Delete removes a resource. A failed online delete is queued when the
// failure is transient and still returned to the caller.
func (d *DataLayer) Delete(ctx context.Context, kind resource.Kind, id string) error {
	spec, err := lookup(kind)
	if err != nil {
		return err
	}
	if d.offline() || d.pendingCreate(kind, id) != "" {
		return d.deleteOffline(ctx, spec, id)
	}

	_, err = d.primary.Delete(ctx, spec.ItemPath(id))
	if err == nil {
		d.InvalidateCache(kind, id)
		if err := d.local.Delete(ctx, kind, id); err != nil {
			logger.Log.Warn("Failed to delete local copy", zap.String("id", id), zap.Error(err))
		}
		return nil
	}

	logger.Log.Warn("Delete failed",
		zap.String("resource", string(kind)),
		zap.String("id", id),
		zap.Error(err),
	)
	if d.offline() {
		return d.deleteOffline(ctx, spec, id)
	}
	if !transient(err) {
		return err
	}
	if _, qerr := d.sync.QueueOperation(ctx, kind, syncmgr.OpDelete, map[string]any{"id": id}, d.config().SyncMaxRetries); qerr != nil {
		return errors.Join(err, qerr)
	}
	return errors.Join(ErrQueuedForRetry, err)
}

func (d *DataLayer) deleteOffline(ctx context.Context, spec resource.Spec, id string) error {
	d.InvalidateCache(spec.Kind, id)
	if err := d.local.Delete(ctx, spec.Kind, id); err != nil {
		logger.Log.Warn("Failed to delete local copy", zap.String("id", id), zap.Error(err))
	}

	// A resource that never reached the backend only needs its pending
	// operations dropped.
	var related []syncmgr.PendingOperation
	createdOffline := false
	for _, op := range d.sync.PendingOperations() {
		if op.Resource != spec.Kind || op.ResourceID() != id {
			continue
		}
		related = append(related, op)
		if op.Operation == syncmgr.OpCreate {
			createdOffline = true
		}
	}
	if createdOffline {
		for _, op := range related {
			if _, err := d.sync.RemoveOperation(ctx, op.ID); err != nil {
				return fmt.Errorf("failed to drop pending %s: %w", op.Operation, err)
			}
		}
		return nil
	}

	if _, err := d.sync.QueueOperation(ctx, spec.Kind, syncmgr.OpDelete, map[string]any{"id": id}, d.config().SyncMaxRetries); err != nil {
		return fmt.Errorf("failed to queue offline delete: %w", err)
	}
	return nil
}

// pendingCreate returns the id of the queued create for kind/id, if any.
func (d *DataLayer) pendingCreate(kind resource.Kind, id string) string {
	for _, op := range d.sync.PendingOperations() {
		if op.Operation == syncmgr.OpCreate && op.Resource == kind && op.ResourceID() == id {
			return op.ID
		}
	}
	return ""
}

type tier struct {
	name   string
	client Client
}

func (d *DataLayer) remoteTiers() []tier {
	tiers := []tier{{name: "primary", client: d.primary}}
	if d.secondary != nil && d.config().SecondaryURL != "" {
		tiers = append(tiers, tier{name: "secondary", client: d.secondary})
	}
	return tiers
}
