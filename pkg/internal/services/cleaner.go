package services

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/uniwave/calling/pkg/internal/database"
	"github.com/uniwave/calling/pkg/internal/models"
)

// DoSweepStalePendingCalls is the backstop for callees that never saw the
// invitation at all: anything still pending past the ring window becomes
// missed, so the history stays honest even when no client was watching.
func DoSweepStalePendingCalls() {
	window := viper.GetDuration("calling.ring_timeout")
	if window <= 0 {
		window = 30 * time.Second
	}
	deadline := time.Now().Add(-window)

	tx := database.C.Model(&models.CallRecord{}).
		Where("status = ? AND started_at < ?", models.CallStatusPending, deadline).
		Update("status", models.CallStatusMissed)
	if tx.Error != nil {
		log.Error().Err(tx.Error).Msg("An error occurred when sweeping stale pending calls...")
		return
	}
	if tx.RowsAffected > 0 {
		log.Debug().Int64("affected", tx.RowsAffected).Msg("Swept stale pending calls into missed.")
	}
}

// DoAutoDatabaseCleanup hard-deletes soft-deleted rows past the grace
// window.
func DoAutoDatabaseCleanup() {
	deadline := time.Now().Add(-60 * time.Minute)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up entire database...")

	var count int64
	for _, model := range database.AutoMaintainRange {
		tx := database.C.Unscoped().Delete(model, "deleted_at IS NOT NULL AND deleted_at < ?", deadline)
		if tx.Error != nil {
			log.Error().Err(tx.Error).Msg("An error occurred when running database cleanup...")
		}
		count += tx.RowsAffected
	}

	log.Debug().Int64("affected", count).Msg("Clean up entire database accomplished.")
}
