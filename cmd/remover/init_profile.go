package main

import (
	"fmt"
	"log/slog"

	"browsing-data/internal/adapter/diskdata"
	"browsing-data/internal/adapter/partition"
	"browsing-data/internal/adapter/policy"
	"browsing-data/internal/adapter/profile"
	"browsing-data/internal/domain"
	"browsing-data/internal/infra/config"
	"browsing-data/internal/infra/metrics"
	"browsing-data/internal/usecase/remover"
)

// ProfileComponents holds the stores of one browser profile.
type ProfileComponents struct {
	Policy          *policy.ProtectedOrigins
	Store           *profile.Store
	Partition       *partition.Store
	Cache           *diskdata.Cache
	PluginData      *diskdata.PluginData
	ContentLicenses *diskdata.ContentLicenses
}

// Deps returns the deletion backends for a remover.
func (p *ProfileComponents) Deps() remover.Deps {
	return remover.Deps{
		Partition:       p.Partition,
		History:         p.Store,
		Downloads:       p.Store,
		Autofill:        p.Store,
		Passwords:       p.Store,
		Certs:           p.Store,
		Cache:           p.Cache,
		PluginData:      p.PluginData,
		ContentLicenses: p.ContentLicenses,
		Policy:          p.Policy,
	}
}

// initProfile opens every store of the configured profile.
// Returns the components, a cleanup function, and any error.
func initProfile(cfg *config.Config, m *metrics.Metrics, bus domain.EventBus, log *slog.Logger) (*ProfileComponents, func(), error) {
	comp := &ProfileComponents{}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 1. Protected origins
	pol, err := policy.New(cfg.Policy.ProtectedOrigins)
	if err != nil {
		return nil, nil, fmt.Errorf("protected origins: %w", err)
	}
	comp.Policy = pol

	// 2. Profile database
	store, err := profile.Open(cfg.Profile.Database,
		profile.WithHistoryDeletionAllowed(cfg.Policy.AllowDeletingHistory),
		profile.WithLogger(log),
		profile.WithMetrics(m),
		profile.WithEventBus(bus),
	)
	if err != nil {
		return nil, nil, err
	}
	comp.Store = store
	cleanups = append(cleanups, func() {
		if err := store.Close(); err != nil {
			log.Warn("close profile database", "error", err)
		}
	})

	// 3. Storage partition
	part, err := partition.Open(cfg.Profile.StorageDB,
		partition.WithPolicy(pol),
		partition.WithLogger(log),
		partition.WithMetrics(m),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	comp.Partition = part
	cleanups = append(cleanups, func() {
		if err := part.Close(); err != nil {
			log.Warn("close storage database", "error", err)
		}
	})

	// 4. Files on disk
	diskOpts := []diskdata.Option{
		diskdata.WithLogger(log),
		diskdata.WithMetrics(m),
		diskdata.WithDeleteRate(cfg.Profile.DeleteRate),
	}
	comp.Cache = diskdata.NewCache(cfg.Profile.CacheDir, diskOpts...)
	comp.PluginData = diskdata.NewPluginData(cfg.Profile.PluginDataDir, diskOpts...)
	comp.ContentLicenses = diskdata.NewContentLicenses(cfg.Profile.LicenseDir, cfg.Profile.KeyDir, diskOpts...)
	cleanups = append(cleanups, func() {
		comp.Cache.Close()
		comp.PluginData.Close()
		comp.ContentLicenses.Close()
	})

	log.Info("profile opened",
		"database", cfg.Profile.Database,
		"storage", cfg.Profile.StorageDB,
		"protected_origins", len(pol.Origins()),
	)
	return comp, cleanup, nil
}
