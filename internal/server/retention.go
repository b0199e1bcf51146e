package server

import (
	"fmt"
	"log"
	"time"

	"github.com/kvistad/parley/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// purgeOnce deletes messages persisted before the retention window and
// returns how many were removed. A zero window keeps everything.
func purgeOnce(db *gorm.DB, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-window)
	res := db.Where("created_at < ?", cutoff).Delete(&models.ChatMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("server: purge messages before %s: %w", cutoff.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

// startRetention schedules a nightly purge of messages older than the
// retention window. Returns nil when retention is disabled; the caller stops
// the returned cron on shutdown.
func startRetention(db *gorm.DB, window time.Duration) *cron.Cron {
	if window <= 0 {
		return nil
	}
	c := cron.New()
	c.AddFunc("@daily", func() {
		n, err := purgeOnce(db, window)
		if err != nil {
			log.Printf("server: retention sweep: %v", err)
			return
		}
		if n > 0 {
			log.Printf("server: retention sweep removed %d messages", n)
		}
	})
	c.Start()
	return c
}
