// Package diskdata clears browsing data kept as plain files: the HTTP disk
// cache, plugin data and content licenses with their platform keys.
package diskdata

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/time/rate"

	"browsing-data/internal/domain"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
	"browsing-data/internal/security"
)

const subsystem = "diskdata"

// Option configures a cleaner.
type Option func(*base)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(b *base) { b.logger = l } }

// WithMetrics records deleted files and failures on m.
func WithMetrics(m *metrics.Metrics) Option { return func(b *base) { b.metrics = m } }

// WithDeleteRate caps file removals at perSecond. Cleaners built with the
// same option share the budget. Zero or less means unlimited.
func WithDeleteRate(perSecond int) Option {
	if perSecond <= 0 {
		return func(*base) {}
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	return func(b *base) { b.limiter = limiter }
}

type base struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

func (b *base) init(opts []Option) {
	b.logger = slog.Default()
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.Component(b.logger, subsystem)
}

// Close waits for in-flight deletions.
func (b *base) Close() error {
	b.wg.Wait()
	return nil
}

// run deletes in the background and calls done exactly once afterwards.
func (b *base) run(ctx context.Context, backend string, fn func(context.Context) (int64, error), done domain.DoneFunc) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer done()

		n, err := fn(ctx)
		if err != nil {
			err = domain.NewSubSystemError(subsystem, backend, domain.ErrBackendFailure, err.Error())
			b.logger.Error("disk data deletion failed",
				"backend", backend,
				"code", string(domain.ErrorCodeOf(err)),
				"error", err,
			)
			b.metrics.ObserveBackendFailure(backend)
		}
		b.metrics.ObserveDeleted(backend, n)
		b.logger.Debug("disk data deletion finished", "backend", backend, "files", n)
	}()
}

// removeFiles deletes every regular file under root that match accepts. A
// missing root holds nothing to delete, and no deletion resolves outside root.
func (b *base) removeFiles(ctx context.Context, root string, match func(name string, info fs.FileInfo) bool) (int64, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if match(d.Name(), info) {
			mu.Lock()
			paths = append(paths, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	guard, err := security.NewDeletionRoot(root)
	if err != nil {
		return 0, err
	}
	var removed int64
	var errs []error
	for _, p := range paths {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}
		resolved, err := guard.Resolve(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(resolved); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// modifiedIn reports whether info was last modified in [begin, end). A zero
// begin matches everything.
func modifiedIn(info fs.FileInfo, begin, end time.Time) bool {
	if begin.IsZero() {
		return true
	}
	mt := info.ModTime()
	if mt.Before(begin) {
		return false
	}
	return end.IsZero() || mt.Before(end)
}

// Cache clears the HTTP disk cache directory.
type Cache struct {
	base
	dir string
}

var _ domain.CacheBackend = (*Cache)(nil)

// NewCache returns a cleaner for the cache rooted at dir.
func NewCache(dir string, opts ...Option) *Cache {
	c := &Cache{dir: dir}
	c.init(opts)
	return c
}

// ClearCache deletes cache entries modified in range, or every entry when
// begin is zero.
func (c *Cache) ClearCache(ctx context.Context, begin, end time.Time, done domain.DoneFunc) {
	c.run(ctx, "cache", func(ctx context.Context) (int64, error) {
		return c.removeFiles(ctx, c.dir, func(_ string, info fs.FileInfo) bool {
			return modifiedIn(info, begin, end)
		})
	}, done)
}

// PluginData clears files plugins stored in the profile.
type PluginData struct {
	base
	dir string
}

var _ domain.PluginDataBackend = (*PluginData)(nil)

// NewPluginData returns a cleaner for the plugin data rooted at dir.
func NewPluginData(dir string, opts ...Option) *PluginData {
	p := &PluginData{dir: dir}
	p.init(opts)
	return p
}

// RemovePluginData deletes plugin files modified since begin.
func (p *PluginData) RemovePluginData(ctx context.Context, begin time.Time, done domain.DoneFunc) {
	p.run(ctx, "plugin_data", func(ctx context.Context) (int64, error) {
		return p.removeFiles(ctx, p.dir, func(_ string, info fs.FileInfo) bool {
			return modifiedIn(info, begin, time.Time{})
		})
	}, done)
}

// PlatformKeyPrefix marks platform keys that belong to content protection.
const PlatformKeyPrefix = "content-protection"

// ContentLicenses deauthorizes stored content licenses and deletes the
// content-protection platform keys.
type ContentLicenses struct {
	base
	licenseDir string
	keyDir     string
}

var _ domain.ContentLicenseBackend = (*ContentLicenses)(nil)

// NewContentLicenses returns a cleaner over the license and platform key directories.
func NewContentLicenses(licenseDir, keyDir string, opts ...Option) *ContentLicenses {
	c := &ContentLicenses{licenseDir: licenseDir, keyDir: keyDir}
	c.init(opts)
	return c
}

// ClearContentLicenses deletes every license file and every platform key whose
// name starts with PlatformKeyPrefix, in one pass.
func (c *ContentLicenses) ClearContentLicenses(ctx context.Context, done domain.DoneFunc) {
	c.run(ctx, "content_licenses", func(ctx context.Context) (int64, error) {
		licenses, err := c.removeFiles(ctx, c.licenseDir, func(string, fs.FileInfo) bool { return true })
		if err != nil {
			return licenses, err
		}
		keys, err := c.removeFiles(ctx, c.keyDir, func(name string, _ fs.FileInfo) bool {
			return strings.HasPrefix(name, PlatformKeyPrefix)
		})
		return licenses + keys, err
	}, done)
}
