package repository

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// DispatchRecord is the per-job audit row, upserted at every phase
// transition so operators can see where a broadcast stalled or how it ended.
type DispatchRecord struct {
	JobID          string `gorm:"primaryKey"`
	Phase          string
	TotalTokens    int
	Success        int
	Failed         int
	InvalidRemoved int
	Reason         string
	UpdatedAt      time.Time
}

// AuditStore persists dispatch progress to Postgres. All writes are
// best-effort: a failed audit write is logged and never affects the job.
type AuditStore struct {
	db        *gorm.DB
	tableName string
	logger    *slog.Logger
}

func NewAuditStore(db *gorm.DB, tableName string, logger *slog.Logger) (*AuditStore, error) {
	if tableName == "" {
		tableName = "dispatch_records"
	}
	if err := db.Table(tableName).AutoMigrate(&DispatchRecord{}); err != nil {
		return nil, err
	}
	return &AuditStore{db: db, tableName: tableName, logger: logger}, nil
}

// RecordPhase implements dispatch.Auditor.
func (s *AuditStore) RecordPhase(ctx context.Context, jobID string, phase models.Phase, resp *models.DispatchResponse) {
	record := DispatchRecord{
		JobID:     jobID,
		Phase:     phase.String(),
		UpdatedAt: time.Now(),
	}
	if resp != nil {
		record.TotalTokens = resp.TotalTokens
		record.Success = resp.Success
		record.Failed = resp.Failed
		record.InvalidRemoved = resp.InvalidRemoved
		record.Reason = resp.Reason
	}

	err := s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"phase", "total_tokens", "success", "failed", "invalid_removed", "reason", "updated_at",
			}),
		}).Create(&record).Error
	if err != nil {
		s.logger.Error("failed to record dispatch phase",
			slog.String("job_id", jobID), slog.String("phase", phase.String()), slog.Any("error", err))
	}
}
