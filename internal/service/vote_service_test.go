package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubble-duels/duels-backend/internal/models"
)

func TestVoteService_Vote(t *testing.T) {
	_, bs, vs, broadcaster := newTestServices(t)
	ctx := context.Background()

	battle := createStartedBattle(t, bs, 0)

	voted, err := vs.Vote(ctx, battle.ID, "u1", models.SideA)
	require.NoError(t, err)
	assert.Equal(t, 1, voted.ParticipantA.VoteCount)
	assert.Equal(t, 0, voted.ParticipantB.VoteCount)
	assert.True(t, voted.HasVoted("u1"))

	types := broadcaster.eventTypes()
	assert.Contains(t, types, models.EventVote)
}

func TestVoteService_Vote_InvalidSide(t *testing.T) {
	_, bs, vs, _ := newTestServices(t)

	battle := createStartedBattle(t, bs, 0)

	_, err := vs.Vote(context.Background(), battle.ID, "u1", models.Side("C"))
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestVoteService_Vote_UnknownBattle(t *testing.T) {
	_, _, vs, _ := newTestServices(t)

	_, err := vs.Vote(context.Background(), "missing", "u1", models.SideA)
	assert.ErrorIs(t, err, ErrBattleNotFound)
}

func TestVoteService_Vote_WaitingBattle(t *testing.T) {
	_, bs, vs, _ := newTestServices(t)
	ctx := context.Background()

	battle, err := bs.Create(ctx, "creator", models.CreateBattleRequest{
		ParticipantAID: "ad-1",
		ParticipantBID: "ad-2",
	})
	require.NoError(t, err)

	_, err = vs.Vote(ctx, battle.ID, "u1", models.SideA)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVoteService_Vote_DuplicateUser(t *testing.T) {
	_, bs, vs, _ := newTestServices(t)
	ctx := context.Background()

	battle := createStartedBattle(t, bs, 0)

	_, err := vs.Vote(ctx, battle.ID, "u1", models.SideA)
	require.NoError(t, err)

	// 같은 쪽 재투표도, 반대쪽 투표도 모두 거부
	_, err = vs.Vote(ctx, battle.ID, "u1", models.SideA)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	_, err = vs.Vote(ctx, battle.ID, "u1", models.SideB)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	fresh, err := bs.GetByID(ctx, battle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalVotes())
}

func TestVoteService_Vote_ConcurrentDistinctUsers(t *testing.T) {
	_, bs, vs, _ := newTestServices(t)
	ctx := context.Background()

	battle := createStartedBattle(t, bs, 0)

	const voters = 40
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			side := models.SideA
			if n%2 == 1 {
				side = models.SideB
			}
			_, err := vs.Vote(ctx, battle.ID, fmt.Sprintf("user-%d", n), side)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	fresh, err := bs.GetByID(ctx, battle.ID)
	require.NoError(t, err)
	assert.Equal(t, voters/2, fresh.ParticipantA.VoteCount)
	assert.Equal(t, voters/2, fresh.ParticipantB.VoteCount)
	assert.Equal(t, voters, fresh.TotalVotes())
}

func TestVoteService_Vote_TargetReachedCompletesBattle(t *testing.T) {
	_, bs, vs, broadcaster := newTestServices(t)
	ctx := context.Background()

	battle := createStartedBattle(t, bs, 3)

	_, err := vs.Vote(ctx, battle.ID, "u1", models.SideA)
	require.NoError(t, err)
	_, err = vs.Vote(ctx, battle.ID, "u2", models.SideA)
	require.NoError(t, err)

	// 세 번째 표가 목표에 도달하고 즉시 완료시킨다
	done, err := vs.Vote(ctx, battle.ID, "u3", models.SideA)
	require.NoError(t, err)
	assert.Equal(t, models.BattleStatusCompleted, done.Status)
	require.NotNil(t, done.WinnerSide)
	assert.Equal(t, models.SideA, *done.WinnerSide)

	// 완료 이후 투표는 거부
	_, err = vs.Vote(ctx, battle.ID, "u4", models.SideB)
	assert.ErrorIs(t, err, ErrInvalidState)

	types := broadcaster.eventTypes()
	assert.Contains(t, types, models.EventEnd)
	// end 이벤트는 항상 마지막 vote 이벤트 이후
	assert.Equal(t, models.EventEnd, types[len(types)-1])
}

func TestVoteService_Vote_TargetNotReachedByOpposingVotes(t *testing.T) {
	_, bs, vs, _ := newTestServices(t)
	ctx := context.Background()

	battle := createStartedBattle(t, bs, 3)

	// 합계 4표지만 한쪽도 목표 3표에 도달하지 못함
	_, err := vs.Vote(ctx, battle.ID, "u1", models.SideA)
	require.NoError(t, err)
	_, err = vs.Vote(ctx, battle.ID, "u2", models.SideA)
	require.NoError(t, err)
	_, err = vs.Vote(ctx, battle.ID, "u3", models.SideB)
	require.NoError(t, err)
	voted, err := vs.Vote(ctx, battle.ID, "u4", models.SideB)
	require.NoError(t, err)

	assert.Equal(t, models.BattleStatusActive, voted.Status)
	assert.Nil(t, voted.WinnerSide)
}
