package display

import (
	"time"

	"github.com/bubble-duels/duels-backend/internal/models"
)

// 표시용 상수 (도메인 규칙이 아니라 프레젠테이션 상수)
const (
	MaxHealth          = 100
	DamagePerVote      = 2
	IntensityThreshold = 50
)

// Health 상대 진영의 득표에 따라 깎이는 체력 (0~100)
// 피해는 자기 득표가 아니라 상대 득표에 연동된다
func Health(opposingVotes int) int {
	health := MaxHealth - opposingVotes*DamagePerVote
	if health < 0 {
		return 0
	}
	return health
}

// Share 전체 득표 중 해당 진영의 비율(%). 득표가 없으면 50 대 50
func Share(sideVotes, totalVotes int) float64 {
	if totalVotes <= 0 {
		return 50
	}
	return float64(sideVotes) / float64(totalVotes) * 100
}

// IsIntense 진영이 과열 상태인지 (연출용 임계값)
func IsIntense(sideVotes int) bool {
	return sideVotes > IntensityThreshold
}

// RemainingSeconds 만료까지 남은 초. 만료됐거나 시작 전이면 0
func RemainingSeconds(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	remaining := int(expiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SideSnapshot 스냅샷의 한쪽 진영
type SideSnapshot struct {
	Ref         string `json:"ref"`
	DisplayName string `json:"displayName"`
	ImageRef    string `json:"imageRef,omitempty"`
	Votes       int    `json:"votes"`
}

// BattleSnapshot 조회/이벤트가 반환하는 배틀의 전체 현재 상태
// 클라이언트는 이 스냅샷의 득표 수를 권위 있는 값으로 취급한다
type BattleSnapshot struct {
	BattleID         string              `json:"battleId"`
	Status           models.BattleStatus `json:"status"`
	ParticipantA     SideSnapshot        `json:"participantA"`
	ParticipantB     SideSnapshot        `json:"participantB"`
	TargetVotes      int                 `json:"targetVotes"`
	DurationSeconds  int                 `json:"durationSeconds"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	WinnerSide       *models.Side        `json:"winnerSide,omitempty"`
	Draw             bool                `json:"draw,omitempty"`
	CreatedBy        string              `json:"createdBy"`
}

// Snapshot 배틀 레코드로부터 스냅샷 조립
func Snapshot(b *models.Battle, now time.Time) BattleSnapshot {
	return BattleSnapshot{
		BattleID: b.ID,
		Status:   b.Status,
		ParticipantA: SideSnapshot{
			Ref:         b.ParticipantA.ParticipantID,
			DisplayName: b.ParticipantA.DisplayName,
			ImageRef:    b.ParticipantA.ImageRef,
			Votes:       b.ParticipantA.VoteCount,
		},
		ParticipantB: SideSnapshot{
			Ref:         b.ParticipantB.ParticipantID,
			DisplayName: b.ParticipantB.DisplayName,
			ImageRef:    b.ParticipantB.ImageRef,
			Votes:       b.ParticipantB.VoteCount,
		},
		TargetVotes:      b.TargetVotes,
		DurationSeconds:  b.DurationSeconds,
		RemainingSeconds: RemainingSeconds(b.ExpiresAt, now),
		WinnerSide:       b.WinnerSide,
		Draw:             b.Status == models.BattleStatusCompleted && b.WinnerSide == nil,
		CreatedBy:        b.CreatedBy,
	}
}

// SideVotes 스냅샷에서 진영별 득표 수
func (s *BattleSnapshot) SideVotes(side models.Side) int {
	if side == models.SideA {
		return s.ParticipantA.Votes
	}
	return s.ParticipantB.Votes
}

// TotalVotes 스냅샷의 전체 득표 수
func (s *BattleSnapshot) TotalVotes() int {
	return s.ParticipantA.Votes + s.ParticipantB.Votes
}
