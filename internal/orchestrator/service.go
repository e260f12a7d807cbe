package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"response-service/internal/config"
	"response-service/internal/models"
)

// Service drains queued assessments through a worker pool. The per-asset
// lock inside the orchestrator serializes same-asset work, so workers can
// pull freely.
type Service struct {
	orch   *Orchestrator
	logger *logrus.Logger
	tasks  chan models.RiskAssessment
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	count  int
}

func NewService(orch *Orchestrator, cfg config.Config, logger *logrus.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		orch:   orch,
		logger: logger,
		tasks:  make(chan models.RiskAssessment, cfg.Orchestrator.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		count:  cfg.Orchestrator.MaxWorkers,
	}
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.count; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Queue enqueues an assessment for processing. A full queue drops the
// event; upstream redelivery will retry it.
func (s *Service) Queue(a models.RiskAssessment) {
	select {
	case s.tasks <- a:
		s.logger.WithFields(logrus.Fields{"asset_id": a.AssetID, "assessment_id": a.ID}).Info("Queued assessment")
	default:
		s.logger.WithFields(logrus.Fields{"asset_id": a.AssetID, "assessment_id": a.ID}).Error("Queue full, dropping assessment")
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case a := <-s.tasks:
			s.process(a)
		}
	}
}

func (s *Service) process(a models.RiskAssessment) {
	decision, err := s.orch.OnAssessment(s.ctx, a)
	if err != nil {
		if errors.Is(err, ErrContractViolation) {
			// Already logged with context; nothing to retry.
			return
		}
		s.logger.WithFields(logrus.Fields{
			"asset_id":      a.AssetID,
			"assessment_id": a.ID,
			"risk_level":    a.RiskLevel,
		}).Errorf("Assessment processing failed: %v", err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"asset_id":      a.AssetID,
		"assessment_id": a.ID,
		"outcome":       decision.Outcome,
		"reason":        decision.Reason,
	}).Debug("Decision recorded")
}

// Stop signals the workers to exit once the queue drains.
func (s *Service) Stop() {
	s.cancel()
}
