package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/bubble-duels/duels-backend/internal/models"
	"github.com/bubble-duels/duels-backend/internal/repository"
)

// VoteService 투표 집계기
// 저장소의 원자 연산에 위임하므로 동시 호출에 안전하다:
// 서로 다른 유저의 동시 투표는 모두 반영되고,
// 같은 유저의 동시 투표는 정확히 한 번만 집계된다
type VoteService struct {
	store         repository.BattleStore
	battleService *BattleService
	broadcaster   EventBroadcaster
	logger        *zap.Logger
}

func NewVoteService(
	store repository.BattleStore,
	battleService *BattleService,
	broadcaster EventBroadcaster,
) *VoteService {
	logger, _ := zap.NewProduction()
	return &VoteService{
		store:         store,
		battleService: battleService,
		broadcaster:   broadcaster,
		logger:        logger,
	}
}

// Vote 유저의 단일 투표 적용. 성공 시 최신 스냅샷용 배틀 반환
// 목표 득표 도달 검사를 반환 전에 수행하므로, 호출자가 받는 상태에
// 방금 일어난 종료가 이미 반영되어 있다
func (s *VoteService) Vote(ctx context.Context, battleID, userID string, side models.Side) (*models.Battle, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}

	battle, err := s.store.ApplyVote(ctx, battleID, userID, side, s.battleService.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateVote):
			return nil, ErrAlreadyVoted
		case errors.Is(err, repository.ErrWrongStatus):
			return nil, ErrInvalidState
		default:
			return nil, s.battleService.mapStoreError(err)
		}
	}

	s.logger.Debug("Vote applied",
		zap.String("battleId", battleID),
		zap.String("userId", userID),
		zap.String("side", string(side)))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastBattleEvent(models.EventVote, s.battleService.Snapshot(battle))
	}

	// 목표 득표 도달 시 즉시 완료 (만료보다 우선)
	if winner, reached := battle.TargetReached(); reached {
		finalized, err := s.battleService.completeWithWinner(ctx, battle, winner)
		if err != nil {
			s.logger.Error("Failed to complete battle at target votes",
				zap.String("battleId", battleID),
				zap.Error(err))
			return battle, nil
		}
		return finalized, nil
	}

	return battle, nil
}
