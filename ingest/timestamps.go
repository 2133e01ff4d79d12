package ingest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// LatestTimestamp returns the largest value of column over query, nil when
// query matches no row. It is how incremental crawls pick their since.
func LatestTimestamp(ctx context.Context, query *gorm.DB, column string) (*time.Time, error) {
	var stamps []time.Time
	err := query.WithContext(ctx).Order(column+" DESC").Limit(1).Pluck(column, &stamps).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to load latest timestamp")
	}
	if len(stamps) == 0 {
		return nil, nil
	}
	latest := stamps[0].UTC()
	return &latest, nil
}
