package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bubble-duels/duels-backend/internal/models"
	"github.com/bubble-duels/duels-backend/pkg/database"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const battleColumns = `
	id, participant_a_id, participant_a_name, participant_a_image, votes_a,
	participant_b_id, participant_b_name, participant_b_image, votes_b,
	status, target_votes, duration_seconds, started_at, expires_at,
	created_by, winner_side, created_at`

// BattleRepository Postgres 기반 배틀 저장소
type BattleRepository struct {
	db *database.DB
}

func NewBattleRepository(db *database.DB) *BattleRepository {
	return &BattleRepository{db: db}
}

// Insert 새 배틀 생성
func (r *BattleRepository) Insert(ctx context.Context, battle *models.Battle) error {
	query := `
		INSERT INTO battles (
			id, participant_a_id, participant_a_name, participant_a_image, votes_a,
			participant_b_id, participant_b_name, participant_b_image, votes_b,
			status, target_votes, duration_seconds, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, 0, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		battle.ID,
		battle.ParticipantA.ParticipantID,
		battle.ParticipantA.DisplayName,
		battle.ParticipantA.ImageRef,
		battle.ParticipantB.ParticipantID,
		battle.ParticipantB.DisplayName,
		battle.ParticipantB.ImageRef,
		battle.Status,
		battle.TargetVotes,
		battle.DurationSeconds,
		battle.CreatedBy,
		battle.CreatedAt,
	)
	if err != nil {
		return unavailable("insert battle", err)
	}

	return nil
}

// FindByID ID로 배틀 조회 (voter 목록 포함)
func (r *BattleRepository) FindByID(ctx context.Context, id string) (*models.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE id = $1`

	battle, err := scanBattle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find battle", err)
	}

	voters, err := r.loadVoters(ctx, id)
	if err != nil {
		return nil, err
	}
	battle.Voters = voters

	return battle, nil
}

// FindActive 진행 중 배틀 목록
func (r *BattleRepository) FindActive(ctx context.Context) ([]*models.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE status = 'active' ORDER BY created_at DESC`
	return r.queryBattles(ctx, query)
}

// FindExpired 만료 시각이 지난 active 배틀 목록
func (r *BattleRepository) FindExpired(ctx context.Context, now time.Time) ([]*models.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE status = 'active' AND expires_at <= $1`
	return r.queryBattles(ctx, query, now)
}

// ParticipantBusy 참가자가 non-terminal 배틀에 묶여 있는지
func (r *BattleRepository) ParticipantBusy(ctx context.Context, participantID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM battles
			WHERE status IN ('waiting', 'active')
			  AND (participant_a_id = $1 OR participant_b_id = $1)
		)
	`

	var busy bool
	if err := r.db.QueryRowContext(ctx, query, participantID).Scan(&busy); err != nil {
		return false, unavailable("check participant", err)
	}

	return busy, nil
}

// Start waiting -> active 전이. WHERE 절의 status 조건이 CAS 역할
func (r *BattleRepository) Start(ctx context.Context, id string, startedAt, expiresAt time.Time) (*models.Battle, error) {
	query := `
		UPDATE battles
		SET status = 'active', started_at = $2, expires_at = $3
		WHERE id = $1 AND status = 'waiting'
		RETURNING ` + battleColumns

	battle, err := scanBattle(r.db.QueryRowContext(ctx, query, id, startedAt, expiresAt))
	if err == sql.ErrNoRows {
		return nil, r.transitionFailure(ctx, id)
	}
	if err != nil {
		return nil, unavailable("start battle", err)
	}

	return battle, nil
}

// Finalize active -> completed 전이. winner nil이면 무승부
func (r *BattleRepository) Finalize(ctx context.Context, id string, winner *models.Side) (*models.Battle, error) {
	query := `
		UPDATE battles
		SET status = 'completed', winner_side = $2
		WHERE id = $1 AND status = 'active'
		RETURNING ` + battleColumns

	var winnerValue interface{}
	if winner != nil {
		winnerValue = string(*winner)
	}

	battle, err := scanBattle(r.db.QueryRowContext(ctx, query, id, winnerValue))
	if err == sql.ErrNoRows {
		return nil, r.transitionFailure(ctx, id)
	}
	if err != nil {
		return nil, unavailable("finalize battle", err)
	}

	return battle, nil
}

// Cancel waiting/active -> cancelled 전이
func (r *BattleRepository) Cancel(ctx context.Context, id string) (*models.Battle, error) {
	query := `
		UPDATE battles
		SET status = 'cancelled'
		WHERE id = $1 AND status IN ('waiting', 'active')
		RETURNING ` + battleColumns

	battle, err := scanBattle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, r.transitionFailure(ctx, id)
	}
	if err != nil {
		return nil, unavailable("cancel battle", err)
	}

	return battle, nil
}

// ApplyVote 단일 트랜잭션으로 voter 추가 + 득표 증가
// (battle_id, user_id) PK가 중복 투표 경쟁을 저장소에서 판정한다
func (r *BattleRepository) ApplyVote(ctx context.Context, battleID, userID string, side models.Side, votedAt time.Time) (*models.Battle, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin vote transaction", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO battle_voters (battle_id, user_id, side, voted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (battle_id, user_id) DO NOTHING
	`

	res, err := tx.ExecContext(ctx, insert, battleID, userID, string(side), votedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, unavailable("record voter", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable("record voter", err)
	}
	if rows == 0 {
		return nil, ErrDuplicateVote
	}

	column := "votes_a"
	if side == models.SideB {
		column = "votes_b"
	}

	update := fmt.Sprintf(`
		UPDATE battles
		SET %s = %s + 1
		WHERE id = $1 AND status = 'active'
		RETURNING `+battleColumns, column, column)

	battle, err := scanBattle(tx.QueryRowContext(ctx, update, battleID))
	if err == sql.ErrNoRows {
		// voter insert가 통과했으므로 배틀은 존재함: active가 아님
		return nil, ErrWrongStatus
	}
	if err != nil {
		return nil, unavailable("increment votes", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit vote", err)
	}

	return battle, nil
}

func (r *BattleRepository) queryBattles(ctx context.Context, query string, args ...interface{}) ([]*models.Battle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query battles", err)
	}
	defer rows.Close()

	var battles []*models.Battle
	for rows.Next() {
		battle, err := scanBattle(rows)
		if err != nil {
			return nil, unavailable("scan battle", err)
		}
		battles = append(battles, battle)
	}

	return battles, rows.Err()
}

func (r *BattleRepository) loadVoters(ctx context.Context, battleID string) ([]models.Voter, error) {
	query := `
		SELECT user_id, side, voted_at
		FROM battle_voters
		WHERE battle_id = $1
		ORDER BY voted_at
	`

	rows, err := r.db.QueryContext(ctx, query, battleID)
	if err != nil {
		return nil, unavailable("load voters", err)
	}
	defer rows.Close()

	var voters []models.Voter
	for rows.Next() {
		var v models.Voter
		var side string
		if err := rows.Scan(&v.UserID, &side, &v.VotedAt); err != nil {
			return nil, unavailable("scan voter", err)
		}
		v.Side = models.Side(side)
		voters = append(voters, v)
	}

	return voters, rows.Err()
}

// transitionFailure CAS 업데이트가 0행일 때 NotFound와 WrongStatus 구분
func (r *BattleRepository) transitionFailure(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM battles WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("check battle status", err)
	}
	return ErrWrongStatus
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBattle(row rowScanner) (*models.Battle, error) {
	battle := &models.Battle{}
	var startedAt, expiresAt sql.NullTime
	var winnerSide sql.NullString

	err := row.Scan(
		&battle.ID,
		&battle.ParticipantA.ParticipantID,
		&battle.ParticipantA.DisplayName,
		&battle.ParticipantA.ImageRef,
		&battle.ParticipantA.VoteCount,
		&battle.ParticipantB.ParticipantID,
		&battle.ParticipantB.DisplayName,
		&battle.ParticipantB.ImageRef,
		&battle.ParticipantB.VoteCount,
		&battle.Status,
		&battle.TargetVotes,
		&battle.DurationSeconds,
		&startedAt,
		&expiresAt,
		&battle.CreatedBy,
		&winnerSide,
		&battle.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		battle.StartedAt = &startedAt.Time
	}
	if expiresAt.Valid {
		battle.ExpiresAt = &expiresAt.Time
	}
	if winnerSide.Valid {
		side := models.Side(winnerSide.String)
		battle.WinnerSide = &side
	}

	return battle, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %v", op, ErrUnavailable, err)
}
