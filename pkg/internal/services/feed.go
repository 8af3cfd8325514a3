package services

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/uniwave/calling/pkg/internal/database"
	"github.com/uniwave/calling/pkg/internal/models"
)

// CallFeed is a live subscription over the pending side of the signaling
// store. Records arrive in the order the store delivers them; the error
// channel yields at most one error, after which the feed is dead.
type CallFeed interface {
	Subscribe(ctx context.Context) (<-chan models.CallRecord, <-chan error, error)
}

// StoreFeed polls the database for pending call records. The first pass
// delivers every invitation that is already pending, later passes only
// rows added since, which matches how the store's change feed behaves.
type StoreFeed struct {
	Interval time.Duration
	Cap      int
}

func NewStoreFeed() *StoreFeed {
	interval := viper.GetDuration("calling.feed_interval")
	if interval <= 0 {
		interval = time.Second
	}
	limit := viper.GetInt("calling.pending_cap")
	if limit <= 0 {
		limit = 100
	}
	return &StoreFeed{Interval: interval, Cap: limit}
}

func (f *StoreFeed) Subscribe(ctx context.Context) (<-chan models.CallRecord, <-chan error, error) {
	records := make(chan models.CallRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()

		var lastId uint
		for {
			var batch []models.CallRecord
			if err := database.C.
				Where("status = ? AND id > ?", models.CallStatusPending, lastId).
				Order("id ASC").
				Limit(f.Cap).
				Find(&batch).Error; err != nil {
				errs <- err
				return
			}

			for _, record := range batch {
				lastId = record.ID
				select {
				case records <- record:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return records, errs, nil
}
