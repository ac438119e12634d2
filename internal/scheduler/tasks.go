package scheduler

import (
	"context"
	"time"

	"github.com/openshelf/openshelf/internal/fetch"
	"github.com/openshelf/openshelf/internal/history"
	"github.com/openshelf/openshelf/internal/mirror"
)

// MirrorProbeTask probes the mirror list on a schedule so the memoized
// mirror stays fresh even between searches.
func MirrorProbeTask(manager *mirror.Manager) TaskConfig {
	return TaskConfig{
		ID:          "mirror-probe",
		Name:        "Mirror connectivity probe",
		Description: "Tests every configured mirror and memoizes the first working one",
		Cron:        "*/30 * * * *",
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			manager.Probe(ctx, nil)
			return nil
		},
	}
}

// CacheSweepTask evicts expired entries from the fetch response cache.
func CacheSweepTask(cache *fetch.Cache) TaskConfig {
	return TaskConfig{
		ID:          "cache-sweep",
		Name:        "Fetch cache sweep",
		Description: "Removes expired entries from the response cache",
		Cron:        "*/10 * * * *",
		Func: func(ctx context.Context) error {
			cache.Sweep()
			return nil
		},
	}
}

// HistoryPurgeTask trims old download history entries.
func HistoryPurgeTask(store *history.Store, keep time.Duration) TaskConfig {
	return TaskConfig{
		ID:          "history-purge",
		Name:        "Download history purge",
		Description: "Deletes download history entries past the retention window",
		Cron:        "0 3 * * *",
		Func: func(ctx context.Context) error {
			_, err := store.Purge(ctx, keep)
			return err
		},
	}
}
