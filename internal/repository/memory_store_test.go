package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubble-duels/duels-backend/internal/models"
)

func newActiveBattle(t *testing.T, store BattleStore, id string) *models.Battle {
	t.Helper()
	ctx := context.Background()

	battle := &models.Battle{
		ID:              id,
		ParticipantA:    models.Participant{ParticipantID: "ad-a", DisplayName: "A"},
		ParticipantB:    models.Participant{ParticipantID: "ad-b", DisplayName: "B"},
		Status:          models.BattleStatusWaiting,
		TargetVotes:     100,
		DurationSeconds: 60,
		CreatedBy:       "creator",
		CreatedAt:       time.Now(),
	}
	require.NoError(t, store.Insert(ctx, battle))

	now := time.Now()
	started, err := store.Start(ctx, id, now, now.Add(60*time.Second))
	require.NoError(t, err)
	return started
}

func TestMemoryStore_ApplyVote(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	newActiveBattle(t, store, "b1")

	battle, err := store.ApplyVote(ctx, "b1", "user1", models.SideA, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, battle.ParticipantA.VoteCount)
	assert.Equal(t, 0, battle.ParticipantB.VoteCount)

	// 같은 유저의 두 번째 투표는 진영과 무관하게 거부
	_, err = store.ApplyVote(ctx, "b1", "user1", models.SideB, time.Now())
	assert.ErrorIs(t, err, ErrDuplicateVote)

	// 첫 투표의 결과는 그대로
	battle, err = store.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, battle.ParticipantA.VoteCount)
	assert.Equal(t, 0, battle.ParticipantB.VoteCount)
	assert.Len(t, battle.Voters, 1)
}

func TestMemoryStore_ApplyVote_UnknownBattle(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.ApplyVote(context.Background(), "missing", "user1", models.SideA, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ApplyVote_NotActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	battle := &models.Battle{
		ID:           "b1",
		ParticipantA: models.Participant{ParticipantID: "ad-a"},
		ParticipantB: models.Participant{ParticipantID: "ad-b"},
		Status:       models.BattleStatusWaiting,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Insert(ctx, battle))

	_, err := store.ApplyVote(ctx, "b1", "user1", models.SideA, time.Now())
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestMemoryStore_ConcurrentVotes_TallyConsistency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	newActiveBattle(t, store, "b1")

	const voters = 50

	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			side := models.SideA
			if n%2 == 1 {
				side = models.SideB
			}
			_, err := store.ApplyVote(ctx, "b1", fmt.Sprintf("user-%d", n), side, time.Now())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	battle, err := store.FindByID(ctx, "b1")
	require.NoError(t, err)

	// 득표 합은 voter 수와 항상 일치해야 한다
	assert.Equal(t, voters, battle.TotalVotes())
	assert.Len(t, battle.Voters, voters)
	assert.Equal(t, 25, battle.ParticipantA.VoteCount)
	assert.Equal(t, 25, battle.ParticipantB.VoteCount)
}

func TestMemoryStore_ConcurrentDuplicateVote_SingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	newActiveBattle(t, store, "b1")

	// 같은 유저의 더블클릭: 동시 시도 중 정확히 하나만 성공
	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyVote(ctx, "b1", "double-clicker", models.SideA, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateVote)
			rejected++
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)

	battle, err := store.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, battle.ParticipantA.VoteCount)
	assert.Len(t, battle.Voters, 1)
}

func TestMemoryStore_Transitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	battle := &models.Battle{
		ID:           "b1",
		ParticipantA: models.Participant{ParticipantID: "ad-a"},
		ParticipantB: models.Participant{ParticipantID: "ad-b"},
		Status:       models.BattleStatusWaiting,
		CreatedAt:    now,
	}
	require.NoError(t, store.Insert(ctx, battle))

	started, err := store.Start(ctx, "b1", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.BattleStatusActive, started.Status)
	require.NotNil(t, started.StartedAt)
	require.NotNil(t, started.ExpiresAt)

	// 재시작은 거부
	_, err = store.Start(ctx, "b1", now, now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrWrongStatus)

	winner := models.SideA
	done, err := store.Finalize(ctx, "b1", &winner)
	require.NoError(t, err)
	assert.Equal(t, models.BattleStatusCompleted, done.Status)
	require.NotNil(t, done.WinnerSide)
	assert.Equal(t, models.SideA, *done.WinnerSide)

	// 종료 상태는 불변
	_, err = store.Cancel(ctx, "b1")
	assert.ErrorIs(t, err, ErrWrongStatus)
	_, err = store.Finalize(ctx, "b1", nil)
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestMemoryStore_ParticipantBusy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	battle := &models.Battle{
		ID:           "b1",
		ParticipantA: models.Participant{ParticipantID: "ad-a"},
		ParticipantB: models.Participant{ParticipantID: "ad-b"},
		Status:       models.BattleStatusWaiting,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Insert(ctx, battle))

	busy, err := store.ParticipantBusy(ctx, "ad-a")
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = store.ParticipantBusy(ctx, "ad-c")
	require.NoError(t, err)
	assert.False(t, busy)

	// 취소하면 즉시 재사용 가능
	_, err = store.Cancel(ctx, "b1")
	require.NoError(t, err)

	busy, err = store.ParticipantBusy(ctx, "ad-a")
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	newActiveBattle(t, store, "b1")

	battle, err := store.FindByID(ctx, "b1")
	require.NoError(t, err)

	// 반환된 스냅샷을 변조해도 저장소에는 영향이 없어야 한다
	battle.ParticipantA.VoteCount = 999

	fresh, err := store.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.ParticipantA.VoteCount)
}
