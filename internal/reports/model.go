package reports

import (
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the completion states an administrator can assign to a report.
type Status string

const (
	// StatusComplete marks the reported project as finished.
	StatusComplete Status = "complete"
	// StatusIncomplete marks the reported project as unfinished.
	StatusIncomplete Status = "incomplete"
)

// verificationThreshold is the number of corroborating reports at one
// location that flips the verified flag.
const verificationThreshold = 4

var (
	// ErrMissingField indicates a required submission field is absent or blank.
	ErrMissingField = errors.New("reports: missing required field")
	// ErrDuplicateSubmission indicates the computed digest already exists in the store.
	ErrDuplicateSubmission = errors.New("reports: duplicate submission")
	// ErrHashNotFound indicates no submission matches the requested digest.
	ErrHashNotFound = errors.New("reports: hash not found")
	// ErrInvalidStatus indicates an unknown report status value.
	ErrInvalidStatus = errors.New("reports: invalid status")
)

// ParseStatus validates raw input and returns a Status.
func ParseStatus(rawInput string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(StatusComplete):
		return StatusComplete, nil
	case string(StatusIncomplete):
		return StatusIncomplete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// Submission models a persisted citizen report. The digest stored in
// DataHash covers project name, location label and timestamp only; the
// remaining columns are outside the tamper-evidence boundary.
type Submission struct {
	ID          int64    `gorm:"column:id;primaryKey;autoIncrement"`
	ProjectName string   `gorm:"column:project_name;size:190;not null"`
	Location    string   `gorm:"column:location;size:320;not null"`
	Latitude    *float64 `gorm:"column:latitude"`
	Longitude   *float64 `gorm:"column:longitude"`
	LocationKey string   `gorm:"column:location_key;size:96;not null;default:'';index:idx_submissions_location_key"`
	Description string   `gorm:"column:description;type:text;not null"`
	PhotoData   string   `gorm:"column:photo_data;type:text;not null"`
	PhotoRef    string   `gorm:"column:photo_ref;size:190;not null;default:''"`
	Timestamp   string   `gorm:"column:timestamp;size:64;not null;index:idx_submissions_timestamp"`
	IPAddress   string   `gorm:"column:ip_address;size:64"`
	DataHash    string   `gorm:"column:data_hash;size:64;not null;uniqueIndex:idx_submissions_data_hash"`
	Approved    bool     `gorm:"column:approved;not null;default:false"`
	Status      Status   `gorm:"column:status;size:20;not null;default:'incomplete'"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}

// VerificationRecord tracks crowd corroboration for one coordinate pair.
type VerificationRecord struct {
	LocationKey string `gorm:"column:location_key;primaryKey;size:96;not null"`
	ReportCount int64  `gorm:"column:report_count;not null;default:1"`
	Verified    bool   `gorm:"column:verified;not null;default:false"`
	LastUpdated string `gorm:"column:last_updated;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (VerificationRecord) TableName() string {
	return "verifications"
}

// SubmissionRequest describes the input supplied by a citizen at ingestion.
type SubmissionRequest struct {
	ProjectName string
	Location    string
	Description string
	Photo       string
	Latitude    *float64
	Longitude   *float64
	RemoteAddr  string
}

// Validate checks that every required field carries a non-blank value.
func (r SubmissionRequest) Validate() error {
	if strings.TrimSpace(r.ProjectName) == "" {
		return fmt.Errorf("%w: projectName", ErrMissingField)
	}
	if strings.TrimSpace(r.Location) == "" {
		return fmt.Errorf("%w: location", ErrMissingField)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description", ErrMissingField)
	}
	if strings.TrimSpace(r.Photo) == "" {
		return fmt.Errorf("%w: photo", ErrMissingField)
	}
	return nil
}

// Coordinates reports the submitted coordinate pair when both values are present.
func (r SubmissionRequest) Coordinates() (float64, float64, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// EnrichedSubmission pairs a submission with its crowd-verification state.
// Submissions without a verification record default to a count of one.
type EnrichedSubmission struct {
	Submission  `gorm:"embedded"`
	ReportCount int64 `gorm:"column:report_count"`
	Verified    bool  `gorm:"column:verified"`
}

// StatsSummary aggregates store-wide counters for the stats endpoint.
type StatsSummary struct {
	Total           int64
	Verified        int64
	Pending         int64
	UniqueLocations int64
}

// IngestResult reports the identifier and digest assigned to a new submission.
type IngestResult struct {
	ID   int64
	Hash string
}

// IntegrityResult carries the outcome of a tamper-evidence check.
type IntegrityResult struct {
	Valid   bool
	Record  Submission
	Message string
}

// AuditReport summarizes a full integrity sweep over stored submissions.
type AuditReport struct {
	Checked    int
	Mismatched []string
}
