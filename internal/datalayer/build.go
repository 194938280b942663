package datalayer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"finance-datalayer/internal/apiclient"
	"finance-datalayer/internal/cache"
	"finance-datalayer/internal/config"
	"finance-datalayer/internal/localstore"
	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/store"
	syncmgr "finance-datalayer/internal/sync"
)

// FromConfig wires a DataLayer and its collaborators from cfg on top of st.
// Background work (cache sweep, connectivity probe, sync scheduler) is
// started and stopped again by Destroy. The store is not closed.
func FromConfig(ctx context.Context, cfg *config.Config, st store.Store) (*DataLayer, error) {
	clientOpts := []apiclient.Option{
		apiclient.WithTimeout(cfg.API.GetTimeout()),
		apiclient.WithHealthTimeout(cfg.API.GetHealthTimeout()),
	}
	primary := apiclient.New(cfg.API.BaseURL, clientOpts...)
	primary.OnError(func(err *apiclient.APIError) {
		logger.Log.Debug("Backend request failed", zap.String("code", err.Code), zap.String("message", err.Message))
	})

	var secondary *apiclient.Client
	if cfg.API.SecondaryURL != "" {
		secondary = apiclient.New(cfg.API.SecondaryURL, clientOpts...)
	}

	c := cache.New(
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithDefaultTTL(cfg.Cache.GetTTL()),
		cache.WithSweepInterval(cfg.Cache.GetSweepInterval()),
	)
	if cfg.Cache.Persist {
		if n, err := c.Restore(ctx, st); err != nil {
			logger.Log.Warn("Failed to restore cache snapshot", zap.Error(err))
		} else {
			logger.Log.Info("Restored cache snapshot", zap.Int("entries", n))
		}
	}
	if err := c.Start(); err != nil {
		return nil, err
	}

	probe := syncmgr.NewProbeConnectivity(primary, cfg.Sync.GetProbeInterval(), primary.HealthCheck(ctx))
	if err := probe.Start(); err != nil {
		c.Stop()
		return nil, err
	}

	sm, err := syncmgr.NewManager(ctx, primary, st, probe, syncmgr.WithInterval(cfg.Sync.GetInterval()))
	if err != nil {
		probe.Stop()
		c.Stop()
		return nil, fmt.Errorf("failed to init sync manager: %w", err)
	}
	if err := sm.Start(); err != nil {
		sm.Stop()
		probe.Stop()
		c.Stop()
		return nil, err
	}

	deps := Deps{
		Primary:   primary,
		Local:     localstore.New(st),
		Cache:     c,
		Sync:      sm,
		Conflicts: syncmgr.NewConflictManager(st),
	}
	if secondary != nil {
		deps.Secondary = secondary
	}

	dl, err := New(Config{
		BaseURL:        cfg.API.BaseURL,
		SecondaryURL:   cfg.API.SecondaryURL,
		CacheEnabled:   cfg.Cache.Enabled,
		CacheTTL:       cfg.Cache.GetTTL(),
		OfflineEnabled: cfg.Sync.OfflineEnabled,
		RetryAttempts:  cfg.API.RetryAttempts,
		RetryDelay:     cfg.API.GetRetryDelay(),
		SyncMaxRetries: cfg.Sync.MaxRetries,
	}, deps)
	if err != nil {
		sm.Stop()
		probe.Stop()
		c.Stop()
		return nil, err
	}
	if cfg.API.AuthToken != "" {
		dl.SetAuthToken(cfg.API.AuthToken)
	}

	dl.OnDestroy(probe.Stop)
	if cfg.Cache.Persist {
		dl.OnDestroy(func() {
			if _, err := c.Snapshot(context.Background(), st); err != nil {
				logger.Log.Warn("Failed to persist cache snapshot", zap.Error(err))
			}
		})
	}

	logger.Log.Info("Data layer ready",
		zap.String("base_url", cfg.API.BaseURL),
		zap.String("secondary_url", cfg.API.SecondaryURL),
		zap.Bool("online", sm.IsOnline()),
	)
	return dl, nil
}
