// Package viewer 한 브라우저 분량의 배틀 뷰 상태를 유지한다.
// 푸시 이벤트, 주기적 폴링, 낙관적 로컬 투표라는 세 갈래 업데이트를
// 하나의 일관된 상태로 병합하는 것이 핵심이다.
package viewer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
)

// BattleEvent 푸시 스트림으로 도착하는 배틀 이벤트
type BattleEvent struct {
	Type   string
	Battle display.BattleSnapshot
}

// SnapshotFetcher 폴링 경로. 서버의 현재 스냅샷을 가져온다
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, battleID string) (display.BattleSnapshot, error)
}

// EventStream 푸시 경로. 채널이 닫히면 연결이 끊긴 것이다
type EventStream interface {
	Connect(ctx context.Context, battleID string) (<-chan BattleEvent, error)
}

// State 뷰어가 렌더링하는 배틀 뷰 상태.
// 값 타입이며 병합 함수는 모두 순수 함수다
type State struct {
	Snapshot    display.BattleSnapshot
	HasSnapshot bool

	// 서버 확인 전까지만 유지되는 낙관적 자기 투표
	PendingVote *models.Side
}

// HealthA 참가자 A의 체력 (상대 득표로 깎인다)
func (s State) HealthA() int {
	return display.Health(s.votesFor(models.SideB))
}

// HealthB 참가자 B의 체력
func (s State) HealthB() int {
	return display.Health(s.votesFor(models.SideA))
}

// ShareA 참가자 A의 득표율
func (s State) ShareA() float64 {
	total := s.votesFor(models.SideA) + s.votesFor(models.SideB)
	return display.Share(s.votesFor(models.SideA), total)
}

// Intense 어느 한쪽이라도 과열 임계값을 넘었는지
func (s State) Intense() bool {
	return display.IsIntense(s.votesFor(models.SideA)) || display.IsIntense(s.votesFor(models.SideB))
}

// votesFor 낙관적 투표를 포함한 해당 사이드의 표 수
func (s State) votesFor(side models.Side) int {
	votes := s.Snapshot.SideVotes(side)
	if s.PendingVote != nil && *s.PendingVote == side {
		votes++
	}
	return votes
}

// statusRank 상태 병합 비교용. 상태는 절대 뒤로 가지 않는다
func statusRank(status models.BattleStatus) int {
	switch status {
	case models.BattleStatusWaiting:
		return 0
	case models.BattleStatusActive:
		return 1
	case models.BattleStatusCompleted, models.BattleStatusCancelled:
		return 2
	default:
		return 0
	}
}

// MergePoll 폴링 스냅샷 병합. 폴링은 언제나 이긴다.
// 서버 스냅샷이 도착하면 낙관적 투표도 확정된 것으로 본다
func MergePoll(state State, snapshot display.BattleSnapshot) State {
	state.Snapshot = snapshot
	state.HasSnapshot = true
	state.PendingVote = nil
	return state
}

// MergePush 푸시 스냅샷 병합. 순서가 뒤바뀐 이벤트를 견뎌야 한다:
// 현재 상태보다 오래된 (표가 적거나 상태가 뒤인) 스냅샷은 버린다
func MergePush(state State, snapshot display.BattleSnapshot) State {
	if state.HasSnapshot {
		currentRank := statusRank(state.Snapshot.Status)
		incomingRank := statusRank(snapshot.Status)
		if incomingRank < currentRank {
			return state
		}
		if incomingRank == currentRank && snapshot.TotalVotes() < state.Snapshot.TotalVotes() {
			return state
		}
	}

	state.Snapshot = snapshot
	state.HasSnapshot = true
	state.PendingVote = nil
	return state
}

// MergeLocalVote 자기 투표의 낙관적 반영. 서버 스냅샷이 오면 지워진다
func MergeLocalVote(state State, side models.Side) State {
	state.PendingVote = &side
	return state
}

// Viewer 한 배틀을 구독하는 클라이언트 측 상태 머신
type Viewer struct {
	battleID     string
	fetcher      SnapshotFetcher
	stream       EventStream
	feed         *Feed
	pollInterval time.Duration
	retryDelay   time.Duration

	mu    sync.RWMutex
	state State

	// 상태가 바뀔 때마다 호출 (렌더 트리거)
	onChange func(State)

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex

	logger *zap.Logger
}

// NewViewer Viewer 생성. onChange는 nil일 수 있다
func NewViewer(
	battleID string,
	fetcher SnapshotFetcher,
	stream EventStream,
	feed *Feed,
	pollInterval time.Duration,
	onChange func(State),
) *Viewer {
	logger, _ := zap.NewProduction()
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Viewer{
		battleID:     battleID,
		fetcher:      fetcher,
		stream:       stream,
		feed:         feed,
		pollInterval: pollInterval,
		retryDelay:   time.Second,
		onChange:     onChange,
		logger:       logger,
	}
}

// State 현재 뷰 상태 복사본
func (v *Viewer) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// ApplyOwnVote 방금 제출한 자기 투표를 낙관적으로 반영
func (v *Viewer) ApplyOwnVote(side models.Side) {
	v.applyState(func(s State) State {
		return MergeLocalVote(s, side)
	})
}

// Start 폴링 루프와 푸시 소비 루프 시작
func (v *Viewer) Start() {
	v.runMu.Lock()
	if v.running {
		v.runMu.Unlock()
		return
	}
	v.running = true
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.runMu.Unlock()

	v.wg.Add(2)
	go v.pollLoop(ctx)
	go v.pushLoop(ctx)
}

// Stop 루프 중지
func (v *Viewer) Stop() {
	v.runMu.Lock()
	if !v.running {
		v.runMu.Unlock()
		return
	}
	v.running = false
	cancel := v.cancel
	v.runMu.Unlock()

	cancel()
	v.wg.Wait()

	if v.feed != nil {
		v.feed.Stop()
	}
}

func (v *Viewer) pollLoop(ctx context.Context) {
	defer v.wg.Done()

	// 첫 렌더를 위해 즉시 한 번 폴링
	v.reconcile(ctx)

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.reconcile(ctx)
		}
	}
}

// reconcile 서버 스냅샷으로 상태를 맞춘다
func (v *Viewer) reconcile(ctx context.Context) {
	snapshot, err := v.fetcher.FetchSnapshot(ctx, v.battleID)
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Warn("Snapshot poll failed",
				zap.String("battleId", v.battleID),
				zap.Error(err))
		}
		return
	}

	v.applyState(func(s State) State {
		return MergePoll(s, snapshot)
	})
}

func (v *Viewer) pushLoop(ctx context.Context) {
	defer v.wg.Done()

	for {
		events, err := v.stream.Connect(ctx, v.battleID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			v.logger.Warn("Event stream connect failed, retrying",
				zap.String("battleId", v.battleID),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(v.retryDelay):
			}
			continue
		}

		// 연결(재연결) 직후에는 푸시를 소비하기 전에 반드시
		// 전체 스냅샷으로 동기화한다. 끊긴 동안의 이벤트는 유실됐다
		v.reconcile(ctx)

		v.consumeEvents(ctx, events)

		if ctx.Err() != nil {
			return
		}
	}
}

func (v *Viewer) consumeEvents(ctx context.Context, events <-chan BattleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				// 연결 끊김: pushLoop가 재연결과 재동기화를 맡는다
				return
			}
			v.handleEvent(event)
		}
	}
}

func (v *Viewer) handleEvent(event BattleEvent) {
	v.applyState(func(s State) State {
		return MergePush(s, event.Battle)
	})

	if v.feed != nil {
		if text := DescribeEvent(event); text != "" {
			v.feed.Append(Entry{Text: text, At: time.Now()})
		}
	}
}

func (v *Viewer) applyState(merge func(State) State) {
	v.mu.Lock()
	v.state = merge(v.state)
	state := v.state
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(state)
	}
}
