package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errEmptyIDSet      = errors.New("at least one submission id is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps a failure with a stable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "reports.service.new"
	opIngest         = "reports.ingest"
	opList           = "reports.list"
	opStats          = "reports.stats"
	opVerify         = "reports.verify_integrity"
	opSetApproval    = "reports.set_approval"
	opSetStatus      = "reports.set_status"
	opListByIDs      = "reports.list_by_ids"
	opAuditIntegrity = "reports.audit_integrity"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// PhotoStore persists decoded photo payloads and returns a retrievable reference.
type PhotoStore interface {
	Save(encoded string) (string, error)
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Photos   PhotoStore
	Logger   *zap.Logger
}

type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	photos PhotoStore
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		photos: cfg.Photos,
		logger: logger,
	}, nil
}

// Ingest assigns a server timestamp, computes the tamper-evidence digest
// and persists the submission together with its verification counter
// update in one transaction. A colliding digest is rejected, never
// overwritten.
func (s *Service) Ingest(ctx context.Context, request SubmissionRequest) (IngestResult, error) {
	if s.db == nil {
		s.logError(opIngest, "missing_database", errMissingDatabase)
		return IngestResult{}, newServiceError(opIngest, "missing_database", errMissingDatabase)
	}
	if err := request.Validate(); err != nil {
		return IngestResult{}, err
	}

	timestamp := s.clock().UTC().Format(time.RFC3339Nano)
	digest := ComputeDigest(request.ProjectName, request.Location, timestamp)

	photoRef := ""
	if s.photos != nil {
		ref, err := s.photos.Save(request.Photo)
		if err != nil {
			s.loggerOrDefault().Warn("photo payload not stored to media",
				zap.String("operation", opIngest), zap.Error(err))
		} else {
			photoRef = ref
		}
	}

	submission := Submission{
		ProjectName: request.ProjectName,
		Location:    request.Location,
		Latitude:    request.Latitude,
		Longitude:   request.Longitude,
		Description: request.Description,
		PhotoData:   request.Photo,
		PhotoRef:    photoRef,
		Timestamp:   timestamp,
		IPAddress:   request.RemoteAddr,
		DataHash:    digest,
		Status:      StatusIncomplete,
	}
	if lat, lng, ok := request.Coordinates(); ok {
		submission.LocationKey = LocationKey(lat, lng)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&submission).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: digest %s", ErrDuplicateSubmission, digest)
			}
			return newServiceError(opIngest, "submission_insert_failed", err)
		}
		if submission.LocationKey != "" {
			if err := recordAt(tx, submission.LocationKey, timestamp); err != nil {
				return newServiceError(opIngest, "verification_upsert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrDuplicateSubmission) {
			return IngestResult{}, txErr
		}
		s.logError(opIngest, "transaction_failed", txErr, zap.String("digest", digest))
		return IngestResult{}, txErr
	}

	return IngestResult{ID: submission.ID, Hash: digest}, nil
}

// List returns every submission enriched with its verification state,
// newest first.
func (s *Service) List(ctx context.Context) ([]EnrichedSubmission, error) {
	if s.db == nil {
		s.logError(opList, "missing_database", errMissingDatabase)
		return nil, newServiceError(opList, "missing_database", errMissingDatabase)
	}

	var rows []EnrichedSubmission
	err := s.db.WithContext(ctx).
		Table("submissions").
		Select("submissions.*, COALESCE(verifications.report_count, 1) AS report_count, COALESCE(verifications.verified, 0) AS verified").
		Joins("LEFT JOIN verifications ON verifications.location_key = submissions.location_key AND submissions.location_key <> ''").
		Order("submissions.timestamp DESC").
		Scan(&rows).Error
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}

	return rows, nil
}

// Stats aggregates store-wide counters.
func (s *Service) Stats(ctx context.Context) (StatsSummary, error) {
	if s.db == nil {
		s.logError(opStats, "missing_database", errMissingDatabase)
		return StatsSummary{}, newServiceError(opStats, "missing_database", errMissingDatabase)
	}

	var summary StatsSummary
	db := s.db.WithContext(ctx)
	if err := db.Model(&Submission{}).Count(&summary.Total).Error; err != nil {
		s.logError(opStats, "total_count_failed", err)
		return StatsSummary{}, newServiceError(opStats, "total_count_failed", err)
	}
	if err := db.Model(&VerificationRecord{}).Where("verified = ?", true).Count(&summary.Verified).Error; err != nil {
		s.logError(opStats, "verified_count_failed", err)
		return StatsSummary{}, newServiceError(opStats, "verified_count_failed", err)
	}
	if err := db.Model(&VerificationRecord{}).Where("verified = ?", false).Count(&summary.Pending).Error; err != nil {
		s.logError(opStats, "pending_count_failed", err)
		return StatsSummary{}, newServiceError(opStats, "pending_count_failed", err)
	}
	if err := db.Model(&Submission{}).Where("location_key <> ''").Distinct("location_key").Count(&summary.UniqueLocations).Error; err != nil {
		s.logError(opStats, "unique_locations_count_failed", err)
		return StatsSummary{}, newServiceError(opStats, "unique_locations_count_failed", err)
	}

	return summary, nil
}

// VerifyIntegrity looks up a submission by digest and recomputes the
// digest from the stored fields. A mismatch signals out-of-band mutation
// of the hashed fields; description, photo and coordinates are outside
// the digest and are not checked.
func (s *Service) VerifyIntegrity(ctx context.Context, digest string) (IntegrityResult, error) {
	if s.db == nil {
		s.logError(opVerify, "missing_database", errMissingDatabase)
		return IntegrityResult{}, newServiceError(opVerify, "missing_database", errMissingDatabase)
	}

	var stored Submission
	err := s.db.WithContext(ctx).Where("data_hash = ?", digest).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return IntegrityResult{}, fmt.Errorf("%w: %s", ErrHashNotFound, digest)
	}
	if err != nil {
		s.logError(opVerify, "query_failed", err, zap.String("digest", digest))
		return IntegrityResult{}, newServiceError(opVerify, "query_failed", err)
	}

	recomputed := ComputeDigest(stored.ProjectName, stored.Location, stored.Timestamp)
	valid := recomputed == stored.DataHash
	message := "Record is tamper-proof and valid"
	if !valid {
		message = "WARNING: Record may be tampered"
		s.loggerOrDefault().Warn("integrity mismatch detected",
			zap.String("operation", opVerify),
			zap.Int64("submission_id", stored.ID),
			zap.String("stored_digest", stored.DataHash),
			zap.String("recomputed_digest", recomputed))
	}

	return IntegrityResult{Valid: valid, Record: stored, Message: message}, nil
}

// SetApproval updates the approval flag on the identified submissions and
// returns how many rows changed.
func (s *Service) SetApproval(ctx context.Context, ids []int64, approved bool) (int64, error) {
	if s.db == nil {
		s.logError(opSetApproval, "missing_database", errMissingDatabase)
		return 0, newServiceError(opSetApproval, "missing_database", errMissingDatabase)
	}
	if len(ids) == 0 {
		return 0, newServiceError(opSetApproval, "empty_id_set", errEmptyIDSet)
	}

	result := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id IN ?", ids).
		Update("approved", approved)
	if result.Error != nil {
		s.logError(opSetApproval, "update_failed", result.Error)
		return 0, newServiceError(opSetApproval, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// SetStatus updates the completion status on the identified submissions
// and returns how many rows changed.
func (s *Service) SetStatus(ctx context.Context, ids []int64, status Status) (int64, error) {
	if s.db == nil {
		s.logError(opSetStatus, "missing_database", errMissingDatabase)
		return 0, newServiceError(opSetStatus, "missing_database", errMissingDatabase)
	}
	if len(ids) == 0 {
		return 0, newServiceError(opSetStatus, "empty_id_set", errEmptyIDSet)
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id IN ?", ids).
		Update("status", status)
	if result.Error != nil {
		s.logError(opSetStatus, "update_failed", result.Error)
		return 0, newServiceError(opSetStatus, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// ListByIDs loads the identified submissions, preserving id order from the store.
func (s *Service) ListByIDs(ctx context.Context, ids []int64) ([]Submission, error) {
	if s.db == nil {
		s.logError(opListByIDs, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListByIDs, "missing_database", errMissingDatabase)
	}
	if len(ids) == 0 {
		return nil, newServiceError(opListByIDs, "empty_id_set", errEmptyIDSet)
	}

	var submissions []Submission
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&submissions).Error; err != nil {
		s.logError(opListByIDs, "query_failed", err)
		return nil, newServiceError(opListByIDs, "query_failed", err)
	}
	return submissions, nil
}

// AuditIntegrity recomputes the digest of every stored submission and
// collects the digests that no longer match.
func (s *Service) AuditIntegrity(ctx context.Context) (AuditReport, error) {
	if s.db == nil {
		s.logError(opAuditIntegrity, "missing_database", errMissingDatabase)
		return AuditReport{}, newServiceError(opAuditIntegrity, "missing_database", errMissingDatabase)
	}

	var submissions []Submission
	if err := s.db.WithContext(ctx).Find(&submissions).Error; err != nil {
		s.logError(opAuditIntegrity, "query_failed", err)
		return AuditReport{}, newServiceError(opAuditIntegrity, "query_failed", err)
	}

	report := AuditReport{Checked: len(submissions)}
	for _, submission := range submissions {
		recomputed := ComputeDigest(submission.ProjectName, submission.Location, submission.Timestamp)
		if recomputed != submission.DataHash {
			report.Mismatched = append(report.Mismatched, submission.DataHash)
		}
	}
	return report, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("reports service error", attrs...)
}
