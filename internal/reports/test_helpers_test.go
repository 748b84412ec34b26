package reports

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// stepClock hands out strictly increasing timestamps so repeated ingests
// never collide on the digest unless a test wants them to.
type stepClock struct {
	current time.Time
	step    time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

type fakePhotoStore struct {
	saved []string
	err   error
}

func (f *fakePhotoStore) Save(encoded string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, encoded)
	return fmt.Sprintf("photo-%d.jpg", len(f.saved)), nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:zeroghost_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Submission{}, &VerificationRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, clock func() time.Time) (*Service, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	if clock == nil {
		stepper := &stepClock{current: time.Unix(1700000000, 0).UTC(), step: time.Second}
		clock = stepper.Now
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock,
		Photos:   &fakePhotoStore{},
	})
	if err != nil {
		t.Fatalf("failed to construct reports service: %v", err)
	}

	return service, db
}

func floatPtr(value float64) *float64 {
	return &value
}

func validRequest(projectName string) SubmissionRequest {
	return SubmissionRequest{
		ProjectName: projectName,
		Location:    "Town A",
		Description: "pothole",
		Photo:       "AQID",
		Latitude:    floatPtr(14.1),
		Longitude:   floatPtr(121.1),
		RemoteAddr:  "192.0.2.10",
	}
}

func mustIngest(t *testing.T, service *Service, request SubmissionRequest) IngestResult {
	t.Helper()
	result, err := service.Ingest(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	return result
}
