package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/zeroghost-ph/zeroghost/backend/internal/auth"
	"github.com/zeroghost-ph/zeroghost/backend/internal/reports"
	"github.com/zeroghost-ph/zeroghost/backend/internal/social"
	"go.uber.org/zap"
)

const adminSubjectContextKey = "zeroghost_admin_subject"

var (
	errMissingReportsService = errors.New("reports service dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// AdminTokenManager exchanges the admin credential for session tokens and
// validates them on guarded routes.
type AdminTokenManager interface {
	IssueAdminToken(ctx context.Context, password string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// ReportPublisher posts approved reports to the configured social page.
type ReportPublisher interface {
	PublishBatch(ctx context.Context, submissions []reports.Submission) (social.Outcome, error)
}

type Dependencies struct {
	ReportsService *reports.Service
	TokenManager   AdminTokenManager
	Publisher      ReportPublisher
	MediaDir       string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ReportsService == nil {
		return nil, errMissingReportsService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		service:   deps.ReportsService,
		tokens:    deps.TokenManager,
		publisher: deps.Publisher,
		logger:    logger,
	}

	router.POST("/api/submit", handler.handleSubmit)
	router.GET("/api/reports", handler.handleListReports)
	router.GET("/api/stats", handler.handleStats)
	router.GET("/api/verify/:hash", handler.handleVerify)

	if deps.MediaDir != "" {
		router.Static("/media", deps.MediaDir)
	}

	router.POST("/api/admin/login", handler.handleAdminLogin)

	admin := router.Group("/api/admin")
	admin.Use(handler.authorizeAdmin)
	admin.POST("/reports/approval", handler.handleSetApproval)
	admin.POST("/reports/status", handler.handleSetStatus)
	admin.POST("/publish", handler.handlePublish)

	return router, nil
}

type httpHandler struct {
	service   *reports.Service
	tokens    AdminTokenManager
	publisher ReportPublisher
	logger    *zap.Logger
}

type submitRequestPayload struct {
	ProjectName string   `json:"projectName"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Photo       string   `json:"photo"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), reports.SubmissionRequest{
		ProjectName: request.ProjectName,
		Location:    request.Location,
		Description: request.Description,
		Photo:       request.Photo,
		Latitude:    request.Latitude,
		Longitude:   request.Longitude,
		RemoteAddr:  c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrMissingField):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		case errors.Is(err, reports.ErrDuplicateSubmission):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Duplicate submission detected"})
		default:
			h.logger.Error("submission ingest failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Submission failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      result.ID,
		"hash":    result.Hash,
		"message": "Report submitted successfully",
	})
}

type reportPayload struct {
	ID          int64    `json:"id"`
	ProjectName string   `json:"projectName"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Description string   `json:"description"`
	Photo       string   `json:"photo"`
	Timestamp   string   `json:"timestamp"`
	Hash        string   `json:"hash"`
	ReportCount int64    `json:"reportCount"`
	Verified    bool     `json:"verified"`
	Approved    bool     `json:"approved"`
	Status      string   `json:"status"`
}

func (h *httpHandler) handleListReports(c *gin.Context) {
	enriched, err := h.service.List(c.Request.Context())
	if err != nil {
		h.logger.Error("report listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load reports"})
		return
	}

	payload := make([]reportPayload, 0, len(enriched))
	for _, item := range enriched {
		payload = append(payload, reportPayload{
			ID:          item.ID,
			ProjectName: item.ProjectName,
			Location:    item.Location,
			Latitude:    item.Latitude,
			Longitude:   item.Longitude,
			Description: item.Description,
			Photo:       item.PhotoData,
			Timestamp:   item.Timestamp,
			Hash:        item.DataHash,
			ReportCount: item.ReportCount,
			Verified:    item.Verified,
			Approved:    item.Approved,
			Status:      string(item.Status),
		})
	}

	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleStats(c *gin.Context) {
	summary, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":           summary.Total,
		"verified":        summary.Verified,
		"pending":         summary.Pending,
		"uniqueLocations": summary.UniqueLocations,
	})
}

func (h *httpHandler) handleVerify(c *gin.Context) {
	digest := c.Param("hash")
	result, err := h.service.VerifyIntegrity(c.Request.Context(), digest)
	if err != nil {
		if errors.Is(err, reports.ErrHashNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Hash not found"})
			return
		}
		h.logger.Error("integrity verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
		return
	}

	record := result.Record
	c.JSON(http.StatusOK, gin.H{
		"valid": result.Valid,
		"record": gin.H{
			"id":          record.ID,
			"projectName": record.ProjectName,
			"location":    record.Location,
			"latitude":    record.Latitude,
			"longitude":   record.Longitude,
			"description": record.Description,
			"timestamp":   record.Timestamp,
			"hash":        record.DataHash,
		},
		"message": result.Message,
	})
}

type adminLoginPayload struct {
	Password string `json:"password"`
}

type adminTokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request adminLoginPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.IssueAdminToken(c.Request.Context(), request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, adminTokenPayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type approvalRequestPayload struct {
	IDs      []int64 `json:"ids"`
	Approved bool    `json:"approved"`
}

func (h *httpHandler) handleSetApproval(c *gin.Context) {
	var request approvalRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.service.SetApproval(c.Request.Context(), request.IDs, request.Approved)
	if err != nil {
		h.logger.Error("approval update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "approval_update_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type statusRequestPayload struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

func (h *httpHandler) handleSetStatus(c *gin.Context) {
	var request statusRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	status, err := reports.ParseStatus(request.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}

	updated, err := h.service.SetStatus(c.Request.Context(), request.IDs, status)
	if err != nil {
		h.logger.Error("status update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_update_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type publishRequestPayload struct {
	IDs []int64 `json:"ids"`
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publishing_not_configured"})
		return
	}

	var request publishRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	submissions, err := h.service.ListByIDs(c.Request.Context(), request.IDs)
	if err != nil {
		h.logger.Error("publish lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_lookup_failed"})
		return
	}

	outcome, err := h.publisher.PublishBatch(c.Request.Context(), submissions)
	if err != nil {
		if errors.Is(err, social.ErrCredentialsMissing) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "facebook_credentials_missing"})
			return
		}
		h.logger.Error("publish batch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posted":  outcome.Posted,
		"failed":  outcome.Failed,
		"skipped": outcome.Skipped,
	})
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("admin token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}
