package source

import "time"

// AnnualAfter returns true if a sync is needed for an annual source that
// releases after the given month. Syncs once per year after the release
// month.
func AnnualAfter(now time.Time, lastSync *time.Time, releaseMonth time.Month) bool {
	if lastSync == nil {
		return true
	}
	// Release date for the current year.
	releaseDate := time.Date(now.Year(), releaseMonth, 1, 0, 0, 0, 0, time.UTC)
	// Only sync if we're past the release date and haven't synced since it.
	return now.After(releaseDate) && lastSync.Before(releaseDate)
}
