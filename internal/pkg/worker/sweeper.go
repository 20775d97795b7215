package worker

import (
	"time"

	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
)

type gormSweeper struct {
	db *gorm.DB
}

// NewSweeper creates the lease-based recovery for retry attempts left in
// processing by a crashed worker run.
func NewSweeper(db *gorm.DB) Sweeper {
	return &gormSweeper{db: db}
}

// RequeueStuckAttempts moves attempts claimed before olderThan back to
// queued and clears their claim so the next run can pick them up.
func (s *gormSweeper) RequeueStuckAttempts(olderThan time.Time) (int64, error) {
	tx := s.db.Model(&models.RetryAttempt{}).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?",
			models.RetryStatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":      models.RetryStatusQueued,
			"claim_token": "",
			"started_at":  nil,
			"reason":      "requeued after processing lease expired",
		})
	return tx.RowsAffected, tx.Error
}
