package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/zeroghost-ph/zeroghost/backend/internal/auth"
	"github.com/zeroghost-ph/zeroghost/backend/internal/reports"
	"github.com/zeroghost-ph/zeroghost/backend/internal/social"
	"gorm.io/gorm"
)

const (
	testAdminPassword = "admin-pass"
	testSigningSecret = "test-secret"
)

type fakePublisher struct {
	batches [][]reports.Submission
}

func (f *fakePublisher) PublishBatch(_ context.Context, submissions []reports.Submission) (social.Outcome, error) {
	f.batches = append(f.batches, submissions)
	var outcome social.Outcome
	for _, submission := range submissions {
		if submission.Approved {
			outcome.Posted++
		} else {
			outcome.Skipped++
		}
	}
	return outcome, nil
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	now := c.current
	c.current = c.current.Add(time.Second)
	return now
}

func newTestHandler(t *testing.T) (http.Handler, *fakePublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:zeroghost_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&reports.Submission{}, &reports.VerificationRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{current: time.Unix(1700000000, 0).UTC()}
	service, err := reports.NewService(reports.ServiceConfig{
		Database: db,
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct reports service: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		AdminPassword: testAdminPassword,
		Issuer:        "zeroghost-auth",
		Audience:      "zeroghost-api",
	})

	publisher := &fakePublisher{}
	handler, err := NewHTTPHandler(Dependencies{
		ReportsService: service,
		TokenManager:   tokenManager,
		Publisher:      publisher,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return handler, publisher
}

func performJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func validSubmitBody(projectName string) map[string]any {
	return map[string]any{
		"projectName": projectName,
		"location":    "Town A",
		"description": "pothole",
		"photo":       "AQID",
		"latitude":    14.1,
		"longitude":   121.1,
	}
}

func adminToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	recorder := performJSON(t, handler, http.MethodPost, "/api/admin/login",
		map[string]any{"password": testAdminPassword}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("admin login failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	token, _ := payload["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token in login response")
	}
	return token
}
