// Package datalayer is the façade the application talks to. It composes the
// primary and secondary API clients, the cache, the local store and the sync
// manager into one CRUD surface that keeps working offline.
package datalayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"finance-datalayer/internal/apiclient"
	"finance-datalayer/internal/cache"
	"finance-datalayer/internal/localstore"
	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/resource"
	syncmgr "finance-datalayer/internal/sync"
)

// TempIDPrefix marks ids generated locally for resources created offline.
const TempIDPrefix = "temp_"

type Config struct {
	BaseURL        string
	SecondaryURL   string
	CacheEnabled   bool
	CacheTTL       time.Duration
	OfflineEnabled bool
	RetryAttempts  int
	RetryDelay     time.Duration
	SyncMaxRetries int
}

// ConfigPatch carries the fields UpdateConfig should change. Nil fields are
// left alone.
type ConfigPatch struct {
	BaseURL        *string
	SecondaryURL   *string
	CacheEnabled   *bool
	CacheTTL       *time.Duration
	OfflineEnabled *bool
	RetryAttempts  *int
	RetryDelay     *time.Duration
	SyncMaxRetries *int
}

// Client is the part of apiclient.Client the data layer uses.
type Client interface {
	Get(ctx context.Context, endpoint string, params map[string]string) (*apiclient.Response, error)
	Post(ctx context.Context, endpoint string, body any) (*apiclient.Response, error)
	Put(ctx context.Context, endpoint string, body any) (*apiclient.Response, error)
	Delete(ctx context.Context, endpoint string) (*apiclient.Response, error)
	Retry(ctx context.Context, op func(ctx context.Context) error, maxRetries int, delay time.Duration) error
	SetBaseURL(baseURL string)
	SetAuthToken(token string)
	ClearAuthToken()
}

var _ Client = (*apiclient.Client)(nil)

type Deps struct {
	Primary Client
	// Secondary is the local API tier. Optional.
	Secondary Client
	Local     *localstore.LocalStore
	Cache     *cache.Manager
	Sync      *syncmgr.Manager
	// Conflicts is optional; ResolveConflict falls back to last-write-wins
	// without a conflict log.
	Conflicts *syncmgr.ConflictManager
	Clock     func() time.Time
}

type DataLayer struct {
	mu  sync.RWMutex
	cfg Config

	primary   Client
	secondary Client
	local     *localstore.LocalStore
	cache     *cache.Manager
	sync      *syncmgr.Manager
	conflicts *syncmgr.ConflictManager
	now       func() time.Time

	closers   []func()
	destroyed bool
}

func New(cfg Config, deps Deps) (*DataLayer, error) {
	if deps.Primary == nil || deps.Local == nil || deps.Cache == nil || deps.Sync == nil {
		return nil, errors.New("data layer needs a primary client, local store, cache and sync manager")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.SyncMaxRetries <= 0 {
		cfg.SyncMaxRetries = syncmgr.DefaultMaxRetries
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}

	d := &DataLayer{
		cfg:       cfg,
		primary:   deps.Primary,
		secondary: deps.Secondary,
		local:     deps.Local,
		cache:     deps.Cache,
		sync:      deps.Sync,
		conflicts: deps.Conflicts,
		now:       deps.Clock,
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.sync.OnOperationSynced(d.reconcile)
	return d, nil
}

func (d *DataLayer) config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Config returns the current configuration.
func (d *DataLayer) Config() Config {
	return d.config()
}

// UpdateConfig live-patches the configuration.
func (d *DataLayer) UpdateConfig(patch ConfigPatch) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if patch.BaseURL != nil {
		d.cfg.BaseURL = *patch.BaseURL
		d.primary.SetBaseURL(*patch.BaseURL)
	}
	if patch.SecondaryURL != nil {
		d.cfg.SecondaryURL = *patch.SecondaryURL
		if d.secondary != nil {
			d.secondary.SetBaseURL(*patch.SecondaryURL)
		}
	}
	if patch.CacheEnabled != nil {
		d.cfg.CacheEnabled = *patch.CacheEnabled
	}
	if patch.CacheTTL != nil && *patch.CacheTTL > 0 {
		d.cfg.CacheTTL = *patch.CacheTTL
	}
	if patch.OfflineEnabled != nil {
		d.cfg.OfflineEnabled = *patch.OfflineEnabled
	}
	if patch.RetryAttempts != nil && *patch.RetryAttempts >= 0 {
		d.cfg.RetryAttempts = *patch.RetryAttempts
	}
	if patch.RetryDelay != nil && *patch.RetryDelay > 0 {
		d.cfg.RetryDelay = *patch.RetryDelay
	}
	if patch.SyncMaxRetries != nil && *patch.SyncMaxRetries > 0 {
		d.cfg.SyncMaxRetries = *patch.SyncMaxRetries
	}
	logger.Log.Info("Data layer config updated", zap.String("base_url", d.cfg.BaseURL))
}

func (d *DataLayer) SetAuthToken(token string) {
	d.primary.SetAuthToken(token)
	if d.secondary != nil {
		d.secondary.SetAuthToken(token)
	}
}

func (d *DataLayer) ClearAuthToken() {
	d.primary.ClearAuthToken()
	if d.secondary != nil {
		d.secondary.ClearAuthToken()
	}
}

// Local returns the local store shared with the rest of the process.
func (d *DataLayer) Local() *localstore.LocalStore {
	return d.local
}

func (d *DataLayer) IsOnline() bool {
	return d.sync.IsOnline()
}

func (d *DataLayer) SyncStatus() syncmgr.Status {
	return d.sync.Status()
}

func (d *DataLayer) PendingOperations() []syncmgr.PendingOperation {
	return d.sync.PendingOperations()
}

func (d *DataLayer) CacheStats() cache.Stats {
	return d.cache.Stats()
}

// SyncPendingOperations runs a replay pass if one is not already running.
func (d *DataLayer) SyncPendingOperations(ctx context.Context) error {
	return d.sync.ProcessQueue(syncmgr.WithTrigger(ctx, "manual"))
}

// ForceSyncAll runs a replay pass and fails when offline.
func (d *DataLayer) ForceSyncAll(ctx context.Context) error {
	return d.sync.ForceSyncAll(syncmgr.WithTrigger(ctx, "forced"))
}

// RemovePendingOperation drops a queued operation before it is replayed.
func (d *DataLayer) RemovePendingOperation(ctx context.Context, id string) (bool, error) {
	return d.sync.RemoveOperation(ctx, id)
}

// ResolveConflict picks the surviving copy of a resource by last write.
func (d *DataLayer) ResolveConflict(ctx context.Context, kind resource.Kind, local, remote resource.Resource) (resource.Resource, error) {
	if d.conflicts == nil {
		return syncmgr.LastWriteWinsStrategy{}.Resolve(local, remote), nil
	}
	return d.conflicts.ResolveConflict(ctx, kind, local, remote)
}

// InvalidateCache drops the cached copy of one resource and the kind's
// lists, or every key of the kind when id is empty.
func (d *DataLayer) InvalidateCache(kind resource.Kind, id string) {
	if id == "" {
		d.cache.InvalidatePattern(cache.KindPattern(string(kind)))
		return
	}
	d.cache.Invalidate(cache.BuildKey(string(kind), id, nil))
	d.cache.InvalidatePattern(cache.ListPattern(string(kind)))
}

// OnDestroy registers cleanup to run during Destroy.
func (d *DataLayer) OnDestroy(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closers = append(d.closers, fn)
}

// Destroy stops background work and clears the cache. It is safe to call
// more than once.
func (d *DataLayer) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	closers := d.closers
	d.mu.Unlock()

	d.sync.Stop()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	d.cache.Stop()
	d.cache.Clear()
	logger.Log.Info("Data layer destroyed")
}

// reconcile replaces a locally created resource with the backend's copy once
// its create has been replayed.
func (d *DataLayer) reconcile(op syncmgr.PendingOperation, resp *apiclient.Response) {
	kind := string(op.Resource)
	d.cache.InvalidatePattern(cache.ListPattern(kind))

	tempID := op.ResourceID()
	if op.Operation != syncmgr.OpCreate || !strings.HasPrefix(tempID, TempIDPrefix) {
		return
	}

	ctx := context.Background()
	d.cache.Invalidate(cache.BuildKey(kind, tempID, nil))
	if err := d.local.Delete(ctx, op.Resource, tempID); err != nil {
		logger.Log.Warn("Failed to drop local copy", zap.String("id", tempID), zap.Error(err))
	}

	created, err := d.decode(op.Resource, resp, true)
	if err != nil || created.ID() == "" {
		return
	}
	if n, err := d.sync.RemapResourceID(ctx, op.Resource, tempID, created.ID()); err != nil {
		logger.Log.Warn("Failed to remap queued operations", zap.String("id", tempID), zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Remapped queued operations", zap.String("temp_id", tempID), zap.Int("count", n))
	}
	if err := d.local.Append(ctx, op.Resource, created); err != nil {
		logger.Log.Warn("Failed to store synced copy", zap.String("id", created.ID()), zap.Error(err))
	}
	d.cacheResource(op.Resource, created)
	logger.Log.Info("Reconciled offline resource",
		zap.String("resource", kind),
		zap.String("temp_id", tempID),
		zap.String("id", created.ID()),
	)
}

func (d *DataLayer) decode(kind resource.Kind, resp *apiclient.Response, single bool) (resource.Resource, error) {
	if resp == nil || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, nil
	}
	spec, err := resource.Lookup(kind)
	if err != nil {
		return nil, err
	}
	raw, err := spec.Unwrap(resp.Data, single)
	if err != nil {
		return nil, err
	}
	return resource.Decode(raw)
}

func (d *DataLayer) cacheResource(kind resource.Kind, r resource.Resource) {
	cfg := d.config()
	if !cfg.CacheEnabled || r.ID() == "" {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		logger.Log.Warn("Failed to cache resource", zap.Error(err))
		return
	}
	d.cache.Set(cache.BuildKey(string(kind), r.ID(), nil), json.RawMessage(b), cfg.CacheTTL)
}

func (d *DataLayer) cachedResource(kind resource.Kind, id string) (resource.Resource, bool) {
	v, ok := d.cache.Get(cache.BuildKey(string(kind), id, nil))
	if !ok {
		return nil, false
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		return nil, false
	}
	r, err := resource.Decode(raw)
	if err != nil {
		return nil, false
	}
	return r, true
}

func lookup(kind resource.Kind) (resource.Spec, error) {
	spec, err := resource.Lookup(kind)
	if err != nil {
		return resource.Spec{}, fmt.Errorf("data layer: %w", err)
	}
	return spec, nil
}
