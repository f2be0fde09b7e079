package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/bubble-duels/duels-backend/internal/models"
	"github.com/bubble-duels/duels-backend/pkg/database"
)

// ParticipantRepository 광고 카탈로그의 Postgres 읽기 전용 뷰
type ParticipantRepository struct {
	db *database.DB
}

func NewParticipantRepository(db *database.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// FindByID 참가 후보 조회
func (r *ParticipantRepository) FindByID(ctx context.Context, id string) (*models.CatalogParticipant, error) {
	query := `SELECT id, display_name, image_ref FROM participants WHERE id = $1`

	p := &models.CatalogParticipant{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.DisplayName, &p.ImageRef)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find participant", err)
	}

	return p, nil
}

// ListEligible 라이브 배틀에 묶이지 않은 후보 목록
func (r *ParticipantRepository) ListEligible(ctx context.Context) ([]*models.CatalogParticipant, error) {
	query := `
		SELECT p.id, p.display_name, p.image_ref
		FROM participants p
		WHERE NOT EXISTS (
			SELECT 1 FROM battles b
			WHERE b.status IN ('waiting', 'active')
			  AND (b.participant_a_id = p.id OR b.participant_b_id = p.id)
		)
		ORDER BY p.display_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("list participants", err)
	}
	defer rows.Close()

	var participants []*models.CatalogParticipant
	for rows.Next() {
		p := &models.CatalogParticipant{}
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.ImageRef); err != nil {
			return nil, unavailable("scan participant", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// MemoryParticipantSource 테스트/개발 모드용 카탈로그
type MemoryParticipantSource struct {
	mu           sync.RWMutex
	participants map[string]models.CatalogParticipant
	store        BattleStore
}

func NewMemoryParticipantSource(store BattleStore, participants ...models.CatalogParticipant) *MemoryParticipantSource {
	byID := make(map[string]models.CatalogParticipant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	return &MemoryParticipantSource{
		participants: byID,
		store:        store,
	}
}

// Add 후보 추가
func (s *MemoryParticipantSource) Add(p models.CatalogParticipant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
}

// FindByID 참가 후보 조회
func (s *MemoryParticipantSource) FindByID(ctx context.Context, id string) (*models.CatalogParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, ErrNotFound
	}

	return &p, nil
}

// ListEligible 라이브 배틀에 묶이지 않은 후보 목록
func (s *MemoryParticipantSource) ListEligible(ctx context.Context) ([]*models.CatalogParticipant, error) {
	s.mu.RLock()
	candidates := make([]models.CatalogParticipant, 0, len(s.participants))
	for _, p := range s.participants {
		candidates = append(candidates, p)
	}
	s.mu.RUnlock()

	var eligible []*models.CatalogParticipant
	for i := range candidates {
		busy, err := s.store.ParticipantBusy(ctx, candidates[i].ID)
		if err != nil {
			return nil, err
		}
		if !busy {
			eligible = append(eligible, &candidates[i])
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].DisplayName < eligible[j].DisplayName
	})

	return eligible, nil
}
