package remover

import (
	"time"

	"browsing-data/internal/domain"
)

// ResolveTimeRange maps a named period to the absolute range [now-window, now).
// PeriodEverything yields a zero Begin.
func ResolveTimeRange(period domain.TimePeriod, now time.Time) domain.TimeRange {
	window, ok := period.Window()
	if !ok {
		return domain.TimeRange{End: now}
	}
	return domain.TimeRange{Begin: now.Add(-window), End: now}
}

// QuotaMaskFor returns the quota storage types a range may touch. Persistent
// storage is only eligible when the range reaches back to the beginning of time.
func QuotaMaskFor(r domain.TimeRange) domain.QuotaStorageMask {
	if r.IncludesPersistent() {
		return domain.QuotaAll
	}
	return domain.QuotaAll &^ domain.QuotaPersistent
}
