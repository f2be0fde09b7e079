package models

import "time"

// Side 배틀의 한쪽 진영
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Valid 유효한 진영인지 확인
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Opponent 반대 진영
func (s Side) Opponent() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

type BattleStatus string

const (
	BattleStatusWaiting   BattleStatus = "waiting"
	BattleStatusActive    BattleStatus = "active"
	BattleStatusCompleted BattleStatus = "completed"
	BattleStatusCancelled BattleStatus = "cancelled"
)

// Terminal 종료 상태 여부 (completed/cancelled는 불변)
func (s BattleStatus) Terminal() bool {
	return s == BattleStatusCompleted || s == BattleStatusCancelled
}

// Participant 배틀에 참가한 한쪽 광고 엔티티
type Participant struct {
	ParticipantID string `json:"participantId" db:"participant_id"`
	DisplayName   string `json:"displayName" db:"display_name"`
	ImageRef      string `json:"imageRef" db:"image_ref"`
	VoteCount     int    `json:"voteCount" db:"vote_count"`
}

// Voter 투표 기록 (append-only, 유저당 배틀당 1건)
type Voter struct {
	UserID  string    `json:"userId" db:"user_id"`
	Side    Side      `json:"side" db:"side"`
	VotedAt time.Time `json:"votedAt" db:"voted_at"`
}

// Battle 두 참가자가 투표 수로 경쟁하는 배틀 레코드
type Battle struct {
	ID              string       `json:"id" db:"id"`
	ParticipantA    Participant  `json:"participantA"`
	ParticipantB    Participant  `json:"participantB"`
	Status          BattleStatus `json:"status" db:"status"`
	TargetVotes     int          `json:"targetVotes" db:"target_votes"`
	DurationSeconds int          `json:"durationSeconds" db:"duration_seconds"`
	StartedAt       *time.Time   `json:"startedAt,omitempty" db:"started_at"`
	ExpiresAt       *time.Time   `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedBy       string       `json:"createdBy" db:"created_by"`
	WinnerSide      *Side        `json:"winnerSide,omitempty" db:"winner_side"`
	Voters          []Voter      `json:"voters,omitempty"`
	CreatedAt       time.Time    `json:"createdAt" db:"created_at"`
}

// SideVotes 진영별 현재 득표 수
func (b *Battle) SideVotes(side Side) int {
	if side == SideA {
		return b.ParticipantA.VoteCount
	}
	return b.ParticipantB.VoteCount
}

// TotalVotes 전체 득표 수
func (b *Battle) TotalVotes() int {
	return b.ParticipantA.VoteCount + b.ParticipantB.VoteCount
}

// HasVoted 해당 유저가 이미 투표했는지
func (b *Battle) HasVoted(userID string) bool {
	for _, v := range b.Voters {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

// Expired active 배틀이 만료 시각을 지났는지
func (b *Battle) Expired(now time.Time) bool {
	return b.Status == BattleStatusActive && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// TargetReached 어느 한쪽이 목표 득표에 도달했는지
func (b *Battle) TargetReached() (Side, bool) {
	if b.TargetVotes <= 0 {
		return "", false
	}
	if b.ParticipantA.VoteCount >= b.TargetVotes {
		return SideA, true
	}
	if b.ParticipantB.VoteCount >= b.TargetVotes {
		return SideB, true
	}
	return "", false
}

// LeadingSide 득표가 엄격히 많은 진영. 동점이면 ("", false)
func (b *Battle) LeadingSide() (Side, bool) {
	switch {
	case b.ParticipantA.VoteCount > b.ParticipantB.VoteCount:
		return SideA, true
	case b.ParticipantB.VoteCount > b.ParticipantA.VoteCount:
		return SideB, true
	default:
		return "", false
	}
}

// Battle event types (websocket fan-out)
const (
	EventStart  = "start"
	EventVote   = "vote"
	EventEnd    = "end"
	EventCancel = "cancel"
)

// CreateBattleRequest 배틀 생성 요청
type CreateBattleRequest struct {
	ParticipantAID  string `json:"participantAId" binding:"required"`
	ParticipantBID  string `json:"participantBId" binding:"required"`
	TargetVotes     int    `json:"targetVotes"`
	DurationSeconds int    `json:"durationSeconds"`
}

// VoteRequest 투표 요청
type VoteRequest struct {
	Side Side `json:"side" binding:"required"`
}
