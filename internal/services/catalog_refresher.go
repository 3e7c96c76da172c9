package services

import (
	"context"
	"log/slog"
	"time"

	applog "gastos/internal/log"
)

// CatalogRefresher keeps catalog-derived records dated on the first day of
// the current month.
type CatalogRefresher struct {
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger
}

func NewCatalogRefresher(tracker *Tracker, interval time.Duration, logger *slog.Logger) *CatalogRefresher {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogRefresher{
		tracker:  tracker,
		interval: interval,
		logger:   logger.With(applog.FieldComponent, applog.ComponentCatalog),
	}
}

// Refresh runs one pass and returns how many records moved.
func (r *CatalogRefresher) Refresh(ctx context.Context) (int, error) {
	n, err := r.tracker.RefreshCatalogDates(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Catalog refresh failed", applog.FieldError, err)
		return 0, err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Catalog records moved to current month", applog.FieldRecords, n)
	}
	return n, nil
}

// Run refreshes on every tick until ctx is cancelled.
func (r *CatalogRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
