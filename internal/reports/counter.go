package reports

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// recordAt creates or increments the verification counter for a location
// key. The increment and the threshold check run as a single conditional
// upsert so concurrent writers at the same key cannot lose updates.
func recordAt(tx *gorm.DB, locationKey, timestamp string) error {
	record := VerificationRecord{
		LocationKey: locationKey,
		ReportCount: 1,
		Verified:    false,
		LastUpdated: timestamp,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "location_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"report_count": gorm.Expr("report_count + 1"),
			"verified":     gorm.Expr("CASE WHEN report_count + 1 >= ? THEN 1 ELSE 0 END", verificationThreshold),
			"last_updated": timestamp,
		}),
	}).Create(&record).Error
}
