package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
	"github.com/bubble-duels/duels-backend/internal/repository"
)

const (
	DefaultTargetVotes     = 100
	DefaultDurationSeconds = 300
	MaxDurationSeconds     = 3600
)

// EventBroadcaster 배틀 이벤트를 구독자에게 밀어주는 협력자 (websocket hub)
type EventBroadcaster interface {
	BroadcastBattleEvent(eventType string, snapshot display.BattleSnapshot)
}

// BattleService 배틀 생명주기 관리자
// waiting -> active -> completed 전이와 cancelled 탈출만 허용한다
type BattleService struct {
	store        repository.BattleStore
	participants repository.ParticipantSource
	broadcaster  EventBroadcaster
	logger       *zap.Logger
	now          func() time.Time
}

func NewBattleService(
	store repository.BattleStore,
	participants repository.ParticipantSource,
	broadcaster EventBroadcaster,
) *BattleService {
	logger, _ := zap.NewProduction()
	return &BattleService{
		store:        store,
		participants: participants,
		broadcaster:  broadcaster,
		logger:       logger,
		now:          time.Now,
	}
}

// Create 새 배틀 생성 (waiting 상태)
func (s *BattleService) Create(ctx context.Context, creatorID string, req models.CreateBattleRequest) (*models.Battle, error) {
	if req.ParticipantAID == req.ParticipantBID {
		return nil, ErrInvalidPair
	}

	partA, err := s.lookupParticipant(ctx, req.ParticipantAID)
	if err != nil {
		return nil, err
	}
	partB, err := s.lookupParticipant(ctx, req.ParticipantBID)
	if err != nil {
		return nil, err
	}

	for _, id := range []string{partA.ID, partB.ID} {
		busy, err := s.store.ParticipantBusy(ctx, id)
		if err != nil {
			return nil, s.mapStoreError(err)
		}
		if busy {
			return nil, fmt.Errorf("%w: %s", ErrParticipantBusy, id)
		}
	}

	targetVotes := req.TargetVotes
	if targetVotes <= 0 {
		targetVotes = DefaultTargetVotes
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = DefaultDurationSeconds
	}
	if duration > MaxDurationSeconds {
		duration = MaxDurationSeconds
	}

	battle := &models.Battle{
		ID: uuid.New().String(),
		ParticipantA: models.Participant{
			ParticipantID: partA.ID,
			DisplayName:   partA.DisplayName,
			ImageRef:      partA.ImageRef,
		},
		ParticipantB: models.Participant{
			ParticipantID: partB.ID,
			DisplayName:   partB.DisplayName,
			ImageRef:      partB.ImageRef,
		},
		Status:          models.BattleStatusWaiting,
		TargetVotes:     targetVotes,
		DurationSeconds: duration,
		CreatedBy:       creatorID,
		CreatedAt:       s.now(),
	}

	if err := s.store.Insert(ctx, battle); err != nil {
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("Battle created",
		zap.String("battleId", battle.ID),
		zap.String("participantA", partA.ID),
		zap.String("participantB", partB.ID),
		zap.String("createdBy", creatorID))

	return battle, nil
}

// Start waiting -> active 전이. 만료 시각은 여기서 고정된다
func (s *BattleService) Start(ctx context.Context, battleID, requesterID string) (*models.Battle, error) {
	current, err := s.store.FindByID(ctx, battleID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	startedAt := s.now()
	expiresAt := startedAt.Add(time.Duration(current.DurationSeconds) * time.Second)

	battle, err := s.store.Start(ctx, battleID, startedAt, expiresAt)
	if err != nil {
		if errors.Is(err, repository.ErrWrongStatus) {
			return nil, ErrInvalidTransition
		}
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("Battle started",
		zap.String("battleId", battleID),
		zap.String("requesterId", requesterID),
		zap.Time("expiresAt", expiresAt))

	s.broadcast(models.EventStart, battle)

	return battle, nil
}

// Cancel 생성자만 waiting/active 배틀을 취소할 수 있다
func (s *BattleService) Cancel(ctx context.Context, battleID, requesterID string) (*models.Battle, error) {
	current, err := s.store.FindByID(ctx, battleID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if current.CreatedBy != requesterID {
		return nil, ErrForbidden
	}

	battle, err := s.store.Cancel(ctx, battleID)
	if err != nil {
		if errors.Is(err, repository.ErrWrongStatus) {
			return nil, ErrInvalidTransition
		}
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("Battle cancelled",
		zap.String("battleId", battleID),
		zap.String("requesterId", requesterID))

	s.broadcast(models.EventCancel, battle)

	return battle, nil
}

// GetByID 배틀 조회. 읽기 시점에 만료를 게으르게 처리한다
func (s *BattleService) GetByID(ctx context.Context, battleID string) (*models.Battle, error) {
	battle, err := s.store.FindByID(ctx, battleID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if battle.Expired(s.now()) {
		return s.finalizeExpired(ctx, battle)
	}

	return battle, nil
}

// ListActive 진행 중 배틀 목록. 만료된 것은 처리 후 제외
func (s *BattleService) ListActive(ctx context.Context) ([]*models.Battle, error) {
	battles, err := s.store.FindActive(ctx)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	now := s.now()
	live := battles[:0]
	for _, b := range battles {
		if b.Expired(now) {
			if _, err := s.finalizeExpired(ctx, b); err != nil {
				s.logger.Warn("Failed to finalize expired battle",
					zap.String("battleId", b.ID),
					zap.Error(err))
			}
			continue
		}
		live = append(live, b)
	}

	return live, nil
}

// CheckExpiry 만료 검사. active이고 만료 시각이 지났으면 완료 처리
func (s *BattleService) CheckExpiry(ctx context.Context, battleID string) (*models.Battle, error) {
	battle, err := s.store.FindByID(ctx, battleID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if !battle.Expired(s.now()) {
		return battle, nil
	}

	return s.finalizeExpired(ctx, battle)
}

// Snapshot 현재 시각 기준 스냅샷 조립
func (s *BattleService) Snapshot(battle *models.Battle) display.BattleSnapshot {
	return display.Snapshot(battle, s.now())
}

// finalizeExpired 만료된 배틀의 승자 판정 및 완료 처리
// 동점이면 무승부로 완료한다 (winnerSide 없음)
func (s *BattleService) finalizeExpired(ctx context.Context, battle *models.Battle) (*models.Battle, error) {
	var winner *models.Side
	if side, ok := battle.LeadingSide(); ok {
		winner = &side
	}

	finalized, err := s.store.Finalize(ctx, battle.ID, winner)
	if err != nil {
		if errors.Is(err, repository.ErrWrongStatus) {
			// 다른 경로(타깃 도달, 동시 스윕)가 먼저 종료시킨 경우
			fresh, findErr := s.store.FindByID(ctx, battle.ID)
			if findErr != nil {
				return nil, s.mapStoreError(findErr)
			}
			return fresh, nil
		}
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("Battle expired",
		zap.String("battleId", battle.ID),
		zap.Any("winnerSide", finalized.WinnerSide))

	s.broadcast(models.EventEnd, finalized)

	return finalized, nil
}

// completeWithWinner 목표 득표 도달로 즉시 완료 처리
func (s *BattleService) completeWithWinner(ctx context.Context, battle *models.Battle, winner models.Side) (*models.Battle, error) {
	finalized, err := s.store.Finalize(ctx, battle.ID, &winner)
	if err != nil {
		if errors.Is(err, repository.ErrWrongStatus) {
			fresh, findErr := s.store.FindByID(ctx, battle.ID)
			if findErr != nil {
				return nil, s.mapStoreError(findErr)
			}
			return fresh, nil
		}
		return nil, s.mapStoreError(err)
	}

	s.logger.Info("Battle completed by target votes",
		zap.String("battleId", battle.ID),
		zap.String("winnerSide", string(winner)))

	s.broadcast(models.EventEnd, finalized)

	return finalized, nil
}

func (s *BattleService) lookupParticipant(ctx context.Context, id string) (*models.CatalogParticipant, error) {
	p, err := s.participants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
		}
		return nil, s.mapStoreError(err)
	}
	return p, nil
}

func (s *BattleService) broadcast(eventType string, battle *models.Battle) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastBattleEvent(eventType, display.Snapshot(battle, s.now()))
}

func (s *BattleService) mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrBattleNotFound
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		return err
	}
}
