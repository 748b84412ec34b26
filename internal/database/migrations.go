package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillSubmissionLocationKeys = "2026-08-20_backfill_submission_location_keys"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSubmissionLocationKeys, apply: backfillSubmissionLocationKeys},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillSubmissionLocationKeys derives the composite location key for
// rows written before the column existed. New rows receive the key at
// ingestion.
func backfillSubmissionLocationKeys(db *gorm.DB) error {
	return db.Exec(`UPDATE submissions
		SET location_key = CAST(latitude AS TEXT) || ',' || CAST(longitude AS TEXT)
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND location_key = ''`).Error
}
