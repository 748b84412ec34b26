package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeroghost-ph/zeroghost/backend/internal/auth"
	"github.com/zeroghost-ph/zeroghost/backend/internal/database"
	"github.com/zeroghost-ph/zeroghost/backend/internal/media"
	"github.com/zeroghost-ph/zeroghost/backend/internal/reports"
	"github.com/zeroghost-ph/zeroghost/backend/internal/server"
	"github.com/zeroghost-ph/zeroghost/backend/internal/social"
)

const adminPassword = "integration-pass"

type stack struct {
	handler    http.Handler
	graphCalls *int
}

func newStack(t *testing.T) stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:zeroghost_integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	photoStorage, err := media.NewStorage(media.StorageConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to construct media storage: %v", err)
	}

	current := time.Unix(1700000000, 0).UTC()
	clock := func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	}

	service, err := reports.NewService(reports.ServiceConfig{
		Database: db,
		Clock:    clock,
		Photos:   photoStorage,
	})
	if err != nil {
		t.Fatalf("failed to construct reports service: %v", err)
	}

	graphCalls := 0
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		graphCalls++
		w.Write([]byte(fmt.Sprintf(`{"id":"post-%d"}`, graphCalls)))
	}))
	t.Cleanup(graph.Close)

	publisher := social.NewPublisher(social.PublisherConfig{
		PageID:       "page-1",
		AccessToken:  "token-1",
		GraphBaseURL: graph.URL,
		Photos:       photoStorage,
	})

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		AdminPassword: adminPassword,
		Issuer:        "zeroghost-auth",
		Audience:      "zeroghost-api",
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ReportsService: service,
		TokenManager:   tokenManager,
		Publisher:      publisher,
		MediaDir:       photoStorage.Dir(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return stack{handler: handler, graphCalls: &graphCalls}
}

func (s stack) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)

	var payload map[string]any
	if len(recorder.Body.Bytes()) > 0 && recorder.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder.Code, payload
}

func submitBody(projectName string) map[string]any {
	return map[string]any{
		"projectName": projectName,
		"location":    "Town A",
		"description": "abandoned roadworks",
		"photo":       "AQIDBA==",
		"latitude":    14.1,
		"longitude":   121.1,
	}
}

func TestSubmitVerifyStatsAndPublishFlow(t *testing.T) {
	s := newStack(t)

	// first submission
	status, payload := s.do(t, http.MethodPost, "/api/submit", submitBody("Road X"), "")
	if status != http.StatusOK {
		t.Fatalf("submit failed with status %d: %v", status, payload)
	}
	if payload["id"].(float64) != 1 {
		t.Fatalf("expected id 1, got %v", payload["id"])
	}
	hash := payload["hash"].(string)

	// three corroborating reports at the same coordinates
	for _, name := range []string{"Road Y", "Road Z", "Road W"} {
		status, payload = s.do(t, http.MethodPost, "/api/submit", submitBody(name), "")
		if status != http.StatusOK {
			t.Fatalf("submit failed with status %d: %v", status, payload)
		}
	}

	// the location crossed the corroboration threshold
	status, payload = s.do(t, http.MethodGet, "/api/stats", nil, "")
	if status != http.StatusOK {
		t.Fatalf("stats failed with status %d", status)
	}
	if payload["total"].(float64) != 4 || payload["verified"].(float64) != 1 ||
		payload["pending"].(float64) != 0 || payload["uniqueLocations"].(float64) != 1 {
		t.Fatalf("unexpected stats: %v", payload)
	}

	// tamper evidence holds for the first report
	status, payload = s.do(t, http.MethodGet, "/api/verify/"+hash, nil, "")
	if status != http.StatusOK || payload["valid"] != true {
		t.Fatalf("expected valid verification, got status %d payload %v", status, payload)
	}

	// unknown digests stay a 404
	status, payload = s.do(t, http.MethodGet, "/api/verify/0000000000000000000000000000000000000000000000000000000000000000", nil, "")
	if status != http.StatusNotFound || payload["error"] != "Hash not found" {
		t.Fatalf("expected hash-not-found, got status %d payload %v", status, payload)
	}

	// admin approves two reports and publishes the batch
	status, payload = s.do(t, http.MethodPost, "/api/admin/login", map[string]any{"password": adminPassword}, "")
	if status != http.StatusOK {
		t.Fatalf("admin login failed with status %d: %v", status, payload)
	}
	token := payload["access_token"].(string)

	status, payload = s.do(t, http.MethodPost, "/api/admin/reports/approval",
		map[string]any{"ids": []int64{1, 2}, "approved": true}, token)
	if status != http.StatusOK || payload["updated"].(float64) != 2 {
		t.Fatalf("approval failed with status %d: %v", status, payload)
	}

	status, payload = s.do(t, http.MethodPost, "/api/admin/publish",
		map[string]any{"ids": []int64{1, 2, 3}}, token)
	if status != http.StatusOK {
		t.Fatalf("publish failed with status %d: %v", status, payload)
	}
	if payload["posted"].(float64) != 2 || payload["skipped"].(float64) != 1 || payload["failed"].(float64) != 0 {
		t.Fatalf("unexpected publish outcome: %v", payload)
	}
	if *s.graphCalls != 2 {
		t.Fatalf("expected 2 graph calls, got %d", *s.graphCalls)
	}
}

func TestResubmissionYieldsFreshDigest(t *testing.T) {
	s := newStack(t)

	// identical payloads get distinct server timestamps, so the second
	// submission is a new record rather than a duplicate
	status, first := s.do(t, http.MethodPost, "/api/submit", submitBody("Road X"), "")
	if status != http.StatusOK {
		t.Fatalf("submit failed with status %d: %v", status, first)
	}

	status, second := s.do(t, http.MethodPost, "/api/submit", submitBody("Road X"), "")
	if status != http.StatusOK {
		t.Fatalf("second submit failed with status %d: %v", status, second)
	}
	if first["hash"] == second["hash"] {
		t.Fatalf("distinct timestamps must yield distinct digests")
	}
}
