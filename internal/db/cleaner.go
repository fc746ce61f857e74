package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StartAuditLogCleaner purges audit log entries older than retention every
// interval. It returns immediately; the work runs in a goroutine until ctx
// is canceled. The first purge happens after one interval.
func StartAuditLogCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	log = log.With(zap.Duration("retention", retention))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				cutoff := now.Add(-retention)
				removed, err := PurgeAuditLog(ctx, db, cutoff)
				if err != nil {
					log.Error("failed to clean audit log", zap.Time("cutoff", cutoff), zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("cleaned audit log", zap.Time("cutoff", cutoff), zap.Int64("removed", removed))
				} else {
					log.Debug("audit log already clean", zap.Time("cutoff", cutoff))
				}
			}
		}
	}()
}

// PurgeAuditLog deletes stamping_logs rows created before cutoff and
// reports how many were removed.
func PurgeAuditLog(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM stamping_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return removed, nil
}
