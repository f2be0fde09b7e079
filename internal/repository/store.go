package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bubble-duels/duels-backend/internal/models"
)

// Storage failure modes
var (
	ErrNotFound      = errors.New("battle not found")
	ErrDuplicateVote = errors.New("user already voted in this battle")
	ErrWrongStatus   = errors.New("battle not in expected status")
	ErrUnavailable   = errors.New("battle store unavailable")
)

// BattleStore 배틀 레코드의 내구 저장소 계약
// ApplyVote가 동시성의 핵심: voter 추가와 득표 증가가 단일 원자 연산이어야 한다
type BattleStore interface {
	// Insert 새 배틀 저장 (status=waiting)
	Insert(ctx context.Context, battle *models.Battle) error

	// FindByID 배틀 조회 (voter 목록 포함). 없으면 ErrNotFound
	FindByID(ctx context.Context, id string) (*models.Battle, error)

	// FindActive active 배틀 목록 (최신 생성 순)
	FindActive(ctx context.Context) ([]*models.Battle, error)

	// FindExpired 만료 시각이 지난 active 배틀 목록
	FindExpired(ctx context.Context, now time.Time) ([]*models.Battle, error)

	// ParticipantBusy 참가자가 waiting/active 배틀에 묶여 있는지
	ParticipantBusy(ctx context.Context, participantID string) (bool, error)

	// Start waiting -> active 전이 (CAS). waiting이 아니면 ErrWrongStatus
	Start(ctx context.Context, id string, startedAt, expiresAt time.Time) (*models.Battle, error)

	// Finalize active -> completed 전이 (CAS). winner는 무승부면 nil
	Finalize(ctx context.Context, id string, winner *models.Side) (*models.Battle, error)

	// Cancel waiting/active -> cancelled 전이 (CAS)
	Cancel(ctx context.Context, id string) (*models.Battle, error)

	// ApplyVote 원자적 투표 적용: voter가 없을 때만 기록을 추가하고
	// 해당 진영 득표를 1 올린다. 중복이면 ErrDuplicateVote,
	// active가 아니면 ErrWrongStatus
	ApplyVote(ctx context.Context, battleID, userID string, side models.Side, votedAt time.Time) (*models.Battle, error)
}

// ParticipantSource 광고 카탈로그 협력자 계약 (읽기 전용)
type ParticipantSource interface {
	// FindByID 참가 후보 조회. 없으면 ErrNotFound
	FindByID(ctx context.Context, id string) (*models.CatalogParticipant, error)

	// ListEligible 현재 라이브 배틀에 묶이지 않은 후보 목록
	ListEligible(ctx context.Context) ([]*models.CatalogParticipant, error)
}
