package viewer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
)

func snapshotWith(votesA, votesB int, status models.BattleStatus) display.BattleSnapshot {
	return display.BattleSnapshot{
		BattleID:     "battle-1",
		Status:       status,
		ParticipantA: display.SideSnapshot{Ref: "ad-1", DisplayName: "One", Votes: votesA},
		ParticipantB: display.SideSnapshot{Ref: "ad-2", DisplayName: "Two", Votes: votesB},
		TargetVotes:  100,
	}
}

func TestMergePoll_AlwaysWins(t *testing.T) {
	state := MergePush(State{}, snapshotWith(10, 10, models.BattleStatusActive))

	// 폴링 스냅샷이 더 적은 표를 보고해도 권위 있는 값으로 채택
	state = MergePoll(state, snapshotWith(7, 7, models.BattleStatusActive))

	assert.Equal(t, 7, state.Snapshot.ParticipantA.Votes)
	assert.Equal(t, 7, state.Snapshot.ParticipantB.Votes)
}

func TestMergePush_DropsStaleSnapshots(t *testing.T) {
	state := MergePoll(State{}, snapshotWith(5, 5, models.BattleStatusActive))

	// 순서가 뒤바뀌어 도착한 오래된 푸시는 무시
	state = MergePush(state, snapshotWith(2, 2, models.BattleStatusActive))
	assert.Equal(t, 10, state.Snapshot.TotalVotes())

	// 더 새로운 푸시는 채택
	state = MergePush(state, snapshotWith(6, 5, models.BattleStatusActive))
	assert.Equal(t, 11, state.Snapshot.TotalVotes())
}

func TestMergePush_StatusNeverRegresses(t *testing.T) {
	state := MergePoll(State{}, snapshotWith(5, 3, models.BattleStatusCompleted))

	// 완료 이후 늦게 도착한 active 스냅샷은 무시
	state = MergePush(state, snapshotWith(9, 9, models.BattleStatusActive))
	assert.Equal(t, models.BattleStatusCompleted, state.Snapshot.Status)
}

func TestMergeLocalVote_OptimisticUntilServerSnapshot(t *testing.T) {
	state := MergePoll(State{}, snapshotWith(3, 3, models.BattleStatusActive))

	state = MergeLocalVote(state, models.SideA)
	assert.Equal(t, 7, state.votesFor(models.SideA)+state.votesFor(models.SideB))
	assert.Equal(t, 4, state.votesFor(models.SideA))

	// 어떤 서버 스냅샷이든 도착하면 낙관적 투표는 확정으로 흡수
	state = MergePoll(state, snapshotWith(4, 3, models.BattleStatusActive))
	assert.Nil(t, state.PendingVote)
	assert.Equal(t, 4, state.votesFor(models.SideA))
}

func TestState_DerivedValues(t *testing.T) {
	state := MergePoll(State{}, snapshotWith(10, 25, models.BattleStatusActive))

	// 체력은 상대 득표에 연동
	assert.Equal(t, display.MaxHealth-25*display.DamagePerVote, state.HealthA())
	assert.Equal(t, display.MaxHealth-10*display.DamagePerVote, state.HealthB())
	assert.InDelta(t, 10.0/35.0*100, state.ShareA(), 0.01)
	assert.False(t, state.Intense())

	state = MergePoll(state, snapshotWith(51, 25, models.BattleStatusActive))
	assert.True(t, state.Intense())
}

// fakeFetcher 폴 횟수를 세는 SnapshotFetcher
type fakeFetcher struct {
	mu       sync.Mutex
	snapshot display.BattleSnapshot
	calls    int
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, battleID string) (display.BattleSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snapshot, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStream 연결할 때마다 새 채널을 내주는 EventStream
type fakeStream struct {
	mu       sync.Mutex
	channels []chan BattleEvent
	connects int32
}

func (f *fakeStream) Connect(ctx context.Context, battleID string) (<-chan BattleEvent, error) {
	atomic.AddInt32(&f.connects, 1)
	ch := make(chan BattleEvent, 16)
	f.mu.Lock()
	f.channels = append(f.channels, ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeStream) current() chan BattleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[len(f.channels)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestViewer_PushUpdatesState(t *testing.T) {
	fetcher := &fakeFetcher{snapshot: snapshotWith(0, 0, models.BattleStatusActive)}
	stream := &fakeStream{}

	viewer := NewViewer("battle-1", fetcher, stream, nil, time.Hour, nil)
	viewer.Start()
	defer viewer.Stop()

	waitFor(t, func() bool { return atomic.LoadInt32(&stream.connects) >= 1 })
	waitFor(t, func() bool { return viewer.State().HasSnapshot })

	stream.current() <- BattleEvent{
		Type:   models.EventVote,
		Battle: snapshotWith(1, 0, models.BattleStatusActive),
	}

	waitFor(t, func() bool { snap := viewer.State().Snapshot; return snap.TotalVotes() == 1 })
}

func TestViewer_ReconnectTriggersReconcilePoll(t *testing.T) {
	fetcher := &fakeFetcher{snapshot: snapshotWith(4, 2, models.BattleStatusActive)}
	stream := &fakeStream{}

	// 폴 주기는 사실상 무한대: reconcile은 연결 직후에만 일어난다
	viewer := NewViewer("battle-1", fetcher, stream, nil, time.Hour, nil)
	viewer.Start()
	defer viewer.Stop()

	waitFor(t, func() bool { return atomic.LoadInt32(&stream.connects) >= 1 })
	waitFor(t, func() bool { return fetcher.callCount() >= 2 }) // 초기 폴 + 연결 동기화

	before := fetcher.callCount()

	// 연결 끊김을 흉내: 채널을 닫으면 재연결 후 반드시 다시 폴링해야 한다
	close(stream.current())

	waitFor(t, func() bool { return atomic.LoadInt32(&stream.connects) >= 2 })
	waitFor(t, func() bool { return fetcher.callCount() > before })

	require.True(t, viewer.State().HasSnapshot)
	snap := viewer.State().Snapshot
	assert.Equal(t, 6, snap.TotalVotes())
}

func TestViewer_OwnVoteOptimistic(t *testing.T) {
	fetcher := &fakeFetcher{snapshot: snapshotWith(0, 0, models.BattleStatusActive)}
	stream := &fakeStream{}

	viewer := NewViewer("battle-1", fetcher, stream, nil, time.Hour, nil)
	viewer.Start()
	defer viewer.Stop()

	waitFor(t, func() bool { return viewer.State().HasSnapshot })

	viewer.ApplyOwnVote(models.SideB)
	state := viewer.State()
	assert.Equal(t, 1, state.votesFor(models.SideB))
	assert.Equal(t, 0, state.Snapshot.SideVotes(models.SideB))
}
