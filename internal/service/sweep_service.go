package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bubble-duels/duels-backend/internal/repository"
	"github.com/bubble-duels/duels-backend/pkg/distributed"
)

const sweepLockKey = "duels:sweep"

// SweepService 주기적 만료 스윕
// 여러 인스턴스가 떠 있으면 Redis 락으로 한 인스턴스만 스윕한다.
// Redis가 없거나 죽어 있으면 로컬 스윕으로 계속 동작한다 (fail-open)
type SweepService struct {
	store         repository.BattleStore
	battleService *BattleService
	lockManager   *distributed.RedisLockManager
	instanceID    string
	interval      time.Duration
	logger        *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSweepService(
	store repository.BattleStore,
	battleService *BattleService,
	lockManager *distributed.RedisLockManager,
	interval time.Duration,
) *SweepService {
	logger, _ := zap.NewProduction()
	return &SweepService{
		store:         store,
		battleService: battleService,
		lockManager:   lockManager,
		instanceID:    uuid.New().String(),
		interval:      interval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start 스윕 루프 시작
func (s *SweepService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting SweepService", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop 스윕 루프 중지
func (s *SweepService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping SweepService")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("SweepService stopped")
}

func (s *SweepService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce 한 번의 스윕: 만료된 active 배틀을 모두 완료 처리
func (s *SweepService) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if s.lockManager != nil {
		lock, err := s.lockManager.AcquireLock(ctx, sweepLockKey, s.instanceID, s.interval)
		if err != nil {
			if errors.Is(err, distributed.ErrLockNotAcquired) {
				// 다른 인스턴스가 이번 틱을 담당
				return
			}
			s.logger.Warn("Sweep lock unavailable, sweeping locally",
				zap.Error(err))
		} else {
			defer lock.Release(ctx)
		}
	}

	expired, err := s.store.FindExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to query expired battles", zap.Error(err))
		return
	}

	for _, battle := range expired {
		if _, err := s.battleService.finalizeExpired(ctx, battle); err != nil {
			s.logger.Error("Failed to finalize expired battle",
				zap.String("battleId", battle.ID),
				zap.Error(err))
		}
	}

	if len(expired) > 0 {
		s.logger.Info("Sweep finalized expired battles", zap.Int("count", len(expired)))
	}
}
