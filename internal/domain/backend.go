package domain

import (
	"context"
	"time"
)

// PartitionMask selects the storage-partition categories to clear.
type PartitionMask uint32

const (
	PartitionCookies PartitionMask = 1 << iota
	PartitionLocalStorage
	PartitionIndexedDB
	PartitionWebSQL
	PartitionAppCache
	PartitionFileSystems
	PartitionMediaLicenses

	PartitionAll = PartitionCookies | PartitionLocalStorage | PartitionIndexedDB |
		PartitionWebSQL | PartitionAppCache | PartitionFileSystems | PartitionMediaLicenses
)

// Has reports whether every bit of m is set.
func (p PartitionMask) Has(m PartitionMask) bool { return p&m == m }

// QuotaStorageMask selects which quota-managed storage types may be cleared.
type QuotaStorageMask uint32

const (
	QuotaTemporary QuotaStorageMask = 1 << iota
	QuotaPersistent
	QuotaSyncable

	QuotaAll = QuotaTemporary | QuotaPersistent | QuotaSyncable
)

// Has reports whether every bit of m is set.
func (q QuotaStorageMask) Has(m QuotaStorageMask) bool { return q&m == m }

// QuotaType is the storage type a single quota-managed record belongs to.
type QuotaType string

const (
	QuotaTypeTemporary  QuotaType = "temporary"
	QuotaTypePersistent QuotaType = "persistent"
	QuotaTypeSyncable   QuotaType = "syncable"
)

// Mask returns the QuotaStorageMask bit for t.
func (t QuotaType) Mask() QuotaStorageMask {
	switch t {
	case QuotaTypePersistent:
		return QuotaPersistent
	case QuotaTypeSyncable:
		return QuotaSyncable
	default:
		return QuotaTemporary
	}
}

// PartitionClearRequest is one coalesced call into a StoragePartition.
type PartitionClearRequest struct {
	RemoveMask PartitionMask
	QuotaMask  QuotaStorageMask
	// Origin, when set, restricts clearing to that origin. Matcher, when set, must
	// also accept every origin cleared. Cookies ignore Matcher.
	Origin  Origin
	Matcher OriginMatcher
	Begin   time.Time
	End     time.Time
}

// StoragePartition owns cookies, DOM storage and quota-managed storage.
// ClearData must call done exactly once.
type StoragePartition interface {
	ClearData(ctx context.Context, req PartitionClearRequest, done DoneFunc)
}

// HistoryBackend expires browsing history.
type HistoryBackend interface {
	// ExpireHistoryBetween deletes visits in [begin, end). A non-empty origins list
	// restricts deletion to those origins.
	ExpireHistoryBetween(ctx context.Context, origins []Origin, begin, end time.Time, done DoneFunc)
	// HistoryDeletionAllowed reports whether policy permits deleting history.
	HistoryDeletionAllowed() bool
}

// DownloadBackend removes entries from the download list.
type DownloadBackend interface {
	RemoveDownloadsBetween(ctx context.Context, begin, end time.Time, done DoneFunc)
}

// AutofillBackend removes form entries, addresses and payment cards.
type AutofillBackend interface {
	RemoveFormDataBetween(ctx context.Context, begin, end time.Time, done DoneFunc)
}

// PasswordBackend removes saved logins.
type PasswordBackend interface {
	RemoveLoginsCreatedBetween(ctx context.Context, begin, end time.Time, done DoneFunc)
}

// CertBackend removes server-bound (channel ID) certificates.
type CertBackend interface {
	DeleteCertsBetween(ctx context.Context, begin, end time.Time, done DoneFunc)
}

// CacheBackend clears the HTTP disk cache.
type CacheBackend interface {
	ClearCache(ctx context.Context, begin, end time.Time, done DoneFunc)
}

// PluginDataBackend clears data stored by plugins since begin.
type PluginDataBackend interface {
	RemovePluginData(ctx context.Context, begin time.Time, done DoneFunc)
}

// ContentLicenseBackend deauthorizes content licenses and deletes content-protection
// platform keys.
type ContentLicenseBackend interface {
	ClearContentLicenses(ctx context.Context, done DoneFunc)
}

// ConfigChangeObserver is told when a credential removal pass changed the TLS
// configuration inputs (open connections may hold deleted credentials).
type ConfigChangeObserver interface {
	OnConfigChanged()
}
