package audit

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeroghost-ph/zeroghost/backend/internal/reports"
	"go.uber.org/zap"
)

const sweepTimeout = 5 * time.Minute

var (
	errMissingVerifier = errors.New("integrity verifier is required")
	errMissingSchedule = errors.New("sweep schedule is required")
)

// IntegrityVerifier re-checks every stored digest.
type IntegrityVerifier interface {
	AuditIntegrity(ctx context.Context) (reports.AuditReport, error)
}

type SweeperConfig struct {
	Schedule string
	Verifier IntegrityVerifier
	Logger   *zap.Logger
}

// Sweeper periodically re-verifies stored digests and logs mismatches as
// tampering alerts. It runs outside the request path.
type Sweeper struct {
	schedule string
	verifier IntegrityVerifier
	logger   *zap.Logger
	cron     *cron.Cron
}

func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Verifier == nil {
		return nil, errMissingVerifier
	}
	if cfg.Schedule == "" {
		return nil, errMissingSchedule
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sweeper := &Sweeper{
		schedule: cfg.Schedule,
		verifier: cfg.Verifier,
		logger:   logger,
		cron:     cron.New(),
	}
	if _, err := sweeper.cron.AddFunc(cfg.Schedule, sweeper.run); err != nil {
		return nil, err
	}
	return sweeper, nil
}

// Start begins scheduled sweeps.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("integrity sweeper started", zap.String("schedule", s.schedule))
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("integrity sweeper stopped")
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := s.verifier.AuditIntegrity(ctx)
	if err != nil {
		s.logger.Error("integrity sweep failed", zap.Error(err))
		return
	}

	if len(report.Mismatched) > 0 {
		s.logger.Error("integrity sweep found tampered records",
			zap.Int("checked", report.Checked),
			zap.Strings("digests", report.Mismatched))
		return
	}
	s.logger.Info("integrity sweep clean", zap.Int("checked", report.Checked))
}
