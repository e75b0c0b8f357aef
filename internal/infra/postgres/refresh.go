package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/spending-tracker/internal/logger"
	"gorm.io/gorm"
)

// AggregateViews are the materialized views derived from expenses.
var AggregateViews = []string{"mv_monthly_spending", "mv_top_beneficiaries"}

// ExecFunc runs one statement.
type ExecFunc func(ctx context.Context, sql string) error

// Refresher rebuilds the aggregate views. Each view is first refreshed
// concurrently so readers are not blocked; when that is unavailable (for
// example the unique index it needs is missing) it falls back to a
// blocking refresh.
type Refresher struct {
	exec  ExecFunc
	views []string
}

// NewRefresher creates a Refresher over db. SQLite has no materialized
// views, so the result is a no-op there.
func NewRefresher(db *gorm.DB) *Refresher {
	if IsSQLite(db) {
		return &Refresher{}
	}
	return NewRefresherWithExec(func(ctx context.Context, sql string) error {
		return db.WithContext(ctx).Exec(sql).Error
	}, AggregateViews...)
}

// NewRefresherWithExec creates a Refresher over an arbitrary executor.
func NewRefresherWithExec(exec ExecFunc, views ...string) *Refresher {
	return &Refresher{exec: exec, views: views}
}

// Refresh refreshes every view and joins the errors of views that could
// not be refreshed either way.
func (r *Refresher) Refresh(ctx context.Context) error {
	log := logger.FromContext(ctx)
	var errs []error
	for _, v := range r.views {
		err := r.exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+v)
		if err == nil {
			continue
		}
		log.Warn().Err(err).Str("view", v).Msg("concurrent refresh failed; falling back to blocking refresh")
		if ferr := r.exec(ctx, "REFRESH MATERIALIZED VIEW "+v); ferr != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", v, errors.Join(err, ferr)))
		}
	}
	return errors.Join(errs...)
}
