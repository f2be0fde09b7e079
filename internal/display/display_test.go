package display

import (
	"testing"
	"time"

	"github.com/bubble-duels/duels-backend/internal/models"
)

func TestHealth(t *testing.T) {
	tests := []struct {
		name          string
		opposingVotes int
		expected      int
	}{
		{
			name:          "No opposing votes - full health",
			opposingVotes: 0,
			expected:      100,
		},
		{
			name:          "One opposing vote - 2 damage",
			opposingVotes: 1,
			expected:      98,
		},
		{
			name:          "25 opposing votes - half health",
			opposingVotes: 25,
			expected:      50,
		},
		{
			name:          "50 opposing votes - exactly zero",
			opposingVotes: 50,
			expected:      0,
		},
		{
			name:          "Overkill clamps at zero",
			opposingVotes: 80,
			expected:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := Health(tt.opposingVotes)
			if actual != tt.expected {
				t.Errorf("Health(%d) = %d, want %d", tt.opposingVotes, actual, tt.expected)
			}
		})
	}
}

func TestShare(t *testing.T) {
	tests := []struct {
		name       string
		sideVotes  int
		totalVotes int
		expected   float64
	}{
		{
			name:       "No votes defaults to even split",
			sideVotes:  0,
			totalVotes: 0,
			expected:   50,
		},
		{
			name:       "All votes on one side",
			sideVotes:  10,
			totalVotes: 10,
			expected:   100,
		},
		{
			name:       "Quarter of the votes",
			sideVotes:  5,
			totalVotes: 20,
			expected:   25,
		},
		{
			name:       "No votes on this side",
			sideVotes:  0,
			totalVotes: 7,
			expected:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := Share(tt.sideVotes, tt.totalVotes)
			if actual != tt.expected {
				t.Errorf("Share(%d, %d) = %v, want %v", tt.sideVotes, tt.totalVotes, actual, tt.expected)
			}
		})
	}
}

func TestIsIntense(t *testing.T) {
	if IsIntense(50) {
		t.Error("IsIntense(50) should be false, threshold is strict")
	}
	if !IsIntense(51) {
		t.Error("IsIntense(51) should be true")
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Now()

	t.Run("Nil expiry means zero", func(t *testing.T) {
		if got := RemainingSeconds(nil, now); got != 0 {
			t.Errorf("RemainingSeconds(nil) = %d, want 0", got)
		}
	})

	t.Run("Future expiry", func(t *testing.T) {
		expires := now.Add(90 * time.Second)
		if got := RemainingSeconds(&expires, now); got != 90 {
			t.Errorf("RemainingSeconds = %d, want 90", got)
		}
	})

	t.Run("Past expiry clamps at zero", func(t *testing.T) {
		expires := now.Add(-10 * time.Second)
		if got := RemainingSeconds(&expires, now); got != 0 {
			t.Errorf("RemainingSeconds = %d, want 0", got)
		}
	})
}

func TestSnapshot(t *testing.T) {
	now := time.Now()
	started := now.Add(-30 * time.Second)
	expires := now.Add(60 * time.Second)

	battle := &models.Battle{
		ID:     "b1",
		Status: models.BattleStatusActive,
		ParticipantA: models.Participant{
			ParticipantID: "ad-1",
			DisplayName:   "Bubble One",
			VoteCount:     7,
		},
		ParticipantB: models.Participant{
			ParticipantID: "ad-2",
			DisplayName:   "Bubble Two",
			VoteCount:     3,
		},
		TargetVotes:     100,
		DurationSeconds: 90,
		StartedAt:       &started,
		ExpiresAt:       &expires,
		CreatedBy:       "user-1",
	}

	snap := Snapshot(battle, now)

	if snap.BattleID != "b1" || snap.Status != models.BattleStatusActive {
		t.Fatalf("unexpected snapshot identity: %+v", snap)
	}
	if snap.ParticipantA.Votes != 7 || snap.ParticipantB.Votes != 3 {
		t.Errorf("vote counts not carried over: %+v", snap)
	}
	if snap.RemainingSeconds != 60 {
		t.Errorf("RemainingSeconds = %d, want 60", snap.RemainingSeconds)
	}
	if snap.Draw {
		t.Error("active battle must not be a draw")
	}
	if snap.TotalVotes() != 10 {
		t.Errorf("TotalVotes = %d, want 10", snap.TotalVotes())
	}
}

func TestSnapshot_DrawOnlyWhenCompletedWithoutWinner(t *testing.T) {
	battle := &models.Battle{
		ID:           "b2",
		Status:       models.BattleStatusCompleted,
		ParticipantA: models.Participant{ParticipantID: "ad-1", VoteCount: 4},
		ParticipantB: models.Participant{ParticipantID: "ad-2", VoteCount: 4},
	}

	snap := Snapshot(battle, time.Now())
	if !snap.Draw {
		t.Error("completed battle without winner should be a draw")
	}

	winner := models.SideA
	battle.WinnerSide = &winner
	snap = Snapshot(battle, time.Now())
	if snap.Draw {
		t.Error("completed battle with winner must not be a draw")
	}
	if snap.WinnerSide == nil || *snap.WinnerSide != models.SideA {
		t.Error("winner must come from the record, not be recomputed")
	}
}
