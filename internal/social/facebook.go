package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeroghost-ph/zeroghost/backend/internal/reports"
	"go.uber.org/zap"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com/v18.0"
	defaultTimeout      = 30 * time.Second

	// Graph API error codes treated as throttling.
	graphCodeTooManyCalls    = 4
	graphCodeUserRateLimited = 17
	graphCodePageRateLimited = 32
	graphCodeCustomRateLimit = 613
)

var (
	// ErrCredentialsMissing indicates the page id or access token is not configured.
	ErrCredentialsMissing = errors.New("social: facebook credentials not configured")
	// ErrRateLimited indicates the Graph API rejected the call for throttling.
	ErrRateLimited = errors.New("social: facebook rate limited")
	// ErrPhotoUnavailable indicates the stored photo file could not be read.
	ErrPhotoUnavailable = errors.New("social: photo unavailable")
)

// PhotoSource resolves stored photo references to local file paths.
type PhotoSource interface {
	Path(reference string) (string, error)
}

type PublisherConfig struct {
	PageID       string
	AccessToken  string
	GraphBaseURL string
	Timeout      time.Duration
	Photos       PhotoSource
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Publisher posts approved reports to a Facebook Page via the Graph API.
// Photo posts fall back to text-only posts when the photo file is missing.
type Publisher struct {
	pageID      string
	accessToken string
	baseURL     string
	photos      PhotoSource
	client      *http.Client
	logger      *zap.Logger
}

func NewPublisher(cfg PublisherConfig) *Publisher {
	baseURL := strings.TrimRight(cfg.GraphBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		pageID:      cfg.PageID,
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		photos:      cfg.Photos,
		client:      client,
		logger:      logger,
	}
}

// ItemFailure records one submission that could not be posted.
type ItemFailure struct {
	SubmissionID int64
	Err          error
}

// Outcome aggregates a publish batch. The three counts are always
// reported together.
type Outcome struct {
	Posted   int
	Failed   int
	Skipped  int
	Failures []ItemFailure
}

// PublishBatch posts each approved submission, skipping unapproved ones.
// One item's failure never aborts the batch.
func (p *Publisher) PublishBatch(ctx context.Context, submissions []reports.Submission) (Outcome, error) {
	if p.pageID == "" || p.accessToken == "" {
		return Outcome{}, ErrCredentialsMissing
	}

	var outcome Outcome
	for _, submission := range submissions {
		if !submission.Approved {
			outcome.Skipped++
			continue
		}

		postID, err := p.publish(ctx, submission)
		if err != nil {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, ItemFailure{SubmissionID: submission.ID, Err: err})
			p.logger.Warn("facebook post failed",
				zap.Int64("submission_id", submission.ID),
				zap.Error(err))
			continue
		}

		outcome.Posted++
		p.logger.Info("facebook post published",
			zap.Int64("submission_id", submission.ID),
			zap.String("post_id", postID))
	}
	return outcome, nil
}

func (p *Publisher) publish(ctx context.Context, submission reports.Submission) (string, error) {
	message := FormatMessage(submission)

	if submission.PhotoRef != "" && p.photos != nil {
		path, err := p.photos.Path(submission.PhotoRef)
		if err == nil {
			return p.postPhoto(ctx, path, message)
		}
		p.logger.Warn("photo unavailable, posting text only",
			zap.Int64("submission_id", submission.ID),
			zap.String("photo_ref", submission.PhotoRef),
			zap.Error(fmt.Errorf("%w: %v", ErrPhotoUnavailable, err)))
	}

	return p.postText(ctx, message)
}

func (p *Publisher) postPhoto(ctx context.Context, photoPath, message string) (string, error) {
	file, err := os.Open(photoPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPhotoUnavailable, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("source", filepath.Base(photoPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.WriteField("message", message); err != nil {
		return "", err
	}
	if err := writer.WriteField("access_token", p.accessToken); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/photos", p.baseURL, p.pageID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	return p.send(request)
}

func (p *Publisher) postText(ctx context.Context, message string) (string, error) {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", p.accessToken)

	endpoint := fmt.Sprintf("%s/%s/feed", p.baseURL, p.pageID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return p.send(request)
}

type graphResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

type graphError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (p *Publisher) send(request *http.Request) (string, error) {
	response, err := p.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("facebook request failed: %w", err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("facebook response read failed: %w", err)
	}

	var parsed graphResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("facebook response decode failed (status %d): %w", response.StatusCode, err)
	}

	if response.StatusCode != http.StatusOK || parsed.Error != nil {
		if parsed.Error != nil {
			switch parsed.Error.Code {
			case graphCodeTooManyCalls, graphCodeUserRateLimited, graphCodePageRateLimited, graphCodeCustomRateLimit:
				return "", fmt.Errorf("%w: %s", ErrRateLimited, parsed.Error.Message)
			}
			return "", fmt.Errorf("facebook api error (code %d): %s", parsed.Error.Code, parsed.Error.Message)
		}
		return "", fmt.Errorf("facebook api error: status %d", response.StatusCode)
	}

	return parsed.ID, nil
}

// FormatMessage renders the page post body for one report.
func FormatMessage(submission reports.Submission) string {
	statusMarker := "!"
	statusLabel := "Incomplete"
	if submission.Status == reports.StatusComplete {
		statusMarker = "✓"
		statusLabel = "Complete"
	}

	description := strings.TrimSpace(submission.Description)
	if description == "" {
		description = "No additional details provided."
	}

	var builder strings.Builder
	builder.WriteString("🏗️ ZeroGhost Infrastructure Report\n\n")
	fmt.Fprintf(&builder, "%s Status: %s\n", statusMarker, statusLabel)
	fmt.Fprintf(&builder, "📍 Location: %s\n", submission.Location)
	if submission.Latitude != nil && submission.Longitude != nil {
		fmt.Fprintf(&builder, "📌 Coordinates: %v, %v\n", *submission.Latitude, *submission.Longitude)
	}
	builder.WriteString("\n")
	builder.WriteString(description)
	builder.WriteString("\n")
	if submission.Latitude != nil && submission.Longitude != nil {
		fmt.Fprintf(&builder, "\n🗺️ View on map: https://www.google.com/maps?q=%v,%v\n", *submission.Latitude, *submission.Longitude)
	}
	builder.WriteString("\n#ZeroGhost #Infrastructure #PublicWorks")

	return builder.String()
}
