package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bubble-duels/duels-backend/internal/models"
)

// MemoryStore 메모리 기반 배틀 저장소
// DATABASE_URL 없이 띄우는 개발 모드와 테스트에서 사용.
// 뮤텍스가 Postgres 트랜잭션과 같은 원자성 경계를 제공한다
type MemoryStore struct {
	mu      sync.RWMutex
	battles map[string]*models.Battle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		battles: make(map[string]*models.Battle),
	}
}

// Insert 새 배틀 저장
func (s *MemoryStore) Insert(ctx context.Context, battle *models.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.battles[battle.ID] = cloneBattle(battle)
	return nil
}

// FindByID 배틀 조회
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	battle, ok := s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneBattle(battle), nil
}

// FindActive 진행 중 배틀 목록 (최신 생성 순)
func (s *MemoryStore) FindActive(ctx context.Context) ([]*models.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var battles []*models.Battle
	for _, b := range s.battles {
		if b.Status == models.BattleStatusActive {
			battles = append(battles, cloneBattle(b))
		}
	}

	sort.Slice(battles, func(i, j int) bool {
		return battles[i].CreatedAt.After(battles[j].CreatedAt)
	})

	return battles, nil
}

// FindExpired 만료 시각이 지난 active 배틀 목록
func (s *MemoryStore) FindExpired(ctx context.Context, now time.Time) ([]*models.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var battles []*models.Battle
	for _, b := range s.battles {
		if b.Expired(now) {
			battles = append(battles, cloneBattle(b))
		}
	}

	return battles, nil
}

// ParticipantBusy 참가자가 non-terminal 배틀에 묶여 있는지
func (s *MemoryStore) ParticipantBusy(ctx context.Context, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.battles {
		if b.Status.Terminal() {
			continue
		}
		if b.ParticipantA.ParticipantID == participantID || b.ParticipantB.ParticipantID == participantID {
			return true, nil
		}
	}

	return false, nil
}

// Start waiting -> active 전이
func (s *MemoryStore) Start(ctx context.Context, id string, startedAt, expiresAt time.Time) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	battle, ok := s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if battle.Status != models.BattleStatusWaiting {
		return nil, ErrWrongStatus
	}

	started := startedAt
	expires := expiresAt
	battle.Status = models.BattleStatusActive
	battle.StartedAt = &started
	battle.ExpiresAt = &expires

	return cloneBattle(battle), nil
}

// Finalize active -> completed 전이
func (s *MemoryStore) Finalize(ctx context.Context, id string, winner *models.Side) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	battle, ok := s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if battle.Status != models.BattleStatusActive {
		return nil, ErrWrongStatus
	}

	battle.Status = models.BattleStatusCompleted
	if winner != nil {
		w := *winner
		battle.WinnerSide = &w
	}

	return cloneBattle(battle), nil
}

// Cancel waiting/active -> cancelled 전이
func (s *MemoryStore) Cancel(ctx context.Context, id string) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	battle, ok := s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if battle.Status.Terminal() {
		return nil, ErrWrongStatus
	}

	battle.Status = models.BattleStatusCancelled

	return cloneBattle(battle), nil
}

// ApplyVote 뮤텍스 보호 아래 voter 추가 + 득표 증가
func (s *MemoryStore) ApplyVote(ctx context.Context, battleID, userID string, side models.Side, votedAt time.Time) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	battle, ok := s.battles[battleID]
	if !ok {
		return nil, ErrNotFound
	}
	if battle.HasVoted(userID) {
		return nil, ErrDuplicateVote
	}
	if battle.Status != models.BattleStatusActive {
		return nil, ErrWrongStatus
	}

	battle.Voters = append(battle.Voters, models.Voter{
		UserID:  userID,
		Side:    side,
		VotedAt: votedAt,
	})
	if side == models.SideA {
		battle.ParticipantA.VoteCount++
	} else {
		battle.ParticipantB.VoteCount++
	}

	return cloneBattle(battle), nil
}

func cloneBattle(b *models.Battle) *models.Battle {
	clone := *b
	if b.StartedAt != nil {
		t := *b.StartedAt
		clone.StartedAt = &t
	}
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		clone.ExpiresAt = &t
	}
	if b.WinnerSide != nil {
		side := *b.WinnerSide
		clone.WinnerSide = &side
	}
	if b.Voters != nil {
		clone.Voters = make([]models.Voter, len(b.Voters))
		copy(clone.Voters, b.Voters)
	}
	return &clone
}
