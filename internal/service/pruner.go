package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultPruneInterval = 1 * time.Hour
	pruneTimeout         = 5 * time.Minute
)

// Maintainer is the part of the engine the background worker drives.
type Maintainer interface {
	Verify(ctx context.Context) (bool, error)
	Prune(ctx context.Context) (domain.PruneResult, error)
}

type PruneResult struct {
	Rebuilt bool `json:"rebuilt"`
	domain.PruneResult
}

// PruneService periodically reconciles the graph with storage and prunes
// weak or stale inferred edges.
type PruneService struct {
	engine Maintainer
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPruneService(engine Maintainer, logger *zap.Logger) *PruneService {
	return &PruneService{
		engine:   engine,
		logger:   logger,
		interval: defaultPruneInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *PruneService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *PruneService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("prune worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("prune worker stopped")
				return
			}
		}
	}()
}

func (s *PruneService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce verifies the graph against storage, then prunes. Failures are
// logged; the next tick tries again.
func (s *PruneService) RunOnce(ctx context.Context) *PruneResult {
	result := &PruneResult{}

	rebuilt, err := s.engine.Verify(ctx)
	if err != nil {
		s.logger.Error("graph verification failed", zap.Error(err))
	} else {
		result.Rebuilt = rebuilt
	}

	pruned, err := s.engine.Prune(ctx)
	if err != nil {
		s.logger.Error("prune failed", zap.Error(err))
		return result
	}
	result.PruneResult = pruned

	if pruned.Removed > 0 || rebuilt {
		s.logger.Info("prune complete",
			zap.Bool("rebuilt", rebuilt),
			zap.Int("removed", pruned.Removed),
			zap.Int("weak", pruned.Weak),
			zap.Int("unvalidated", pruned.Unvalidated))
	}
	return result
}
