package viewer

import (
	"fmt"
	"sync"
	"time"

	"github.com/bubble-duels/duels-backend/internal/models"
)

const (
	// DefaultFeedLength 피드 최대 길이. 넘치면 오래된 것부터 버린다
	DefaultFeedLength = 50

	// DefaultFlushDelay 짧은 윈도우 안에 도착한 이벤트를 묶는 지연
	DefaultFlushDelay = 50 * time.Millisecond
)

// Entry 피드 한 줄
type Entry struct {
	Text string
	At   time.Time
}

// Feed 스크롤되는 라이브 이벤트 피드.
// 연속으로 쏟아지는 이벤트를 플러시 단위로 묶어 렌더 횟수를 제한한다
type Feed struct {
	mu      sync.Mutex
	entries []Entry
	pending []Entry
	maxLen  int

	flushDelay time.Duration
	timer      *time.Timer

	// 플러시마다 전체 피드 복사본으로 호출 (렌더 트리거). nil 가능
	onFlush func([]Entry)
}

// NewFeed Feed 생성. maxLen<=0이면 기본값
func NewFeed(maxLen int, flushDelay time.Duration, onFlush func([]Entry)) *Feed {
	if maxLen <= 0 {
		maxLen = DefaultFeedLength
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Feed{
		maxLen:     maxLen,
		flushDelay: flushDelay,
		onFlush:    onFlush,
	}
}

// Append 이벤트 한 건 추가. 플러시는 flushDelay 뒤에 묶여서 일어난다
func (f *Feed) Append(entry Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = append(f.pending, entry)
	if f.timer == nil {
		f.timer = time.AfterFunc(f.flushDelay, f.flush)
	}
}

// flush 펜딩 이벤트를 피드에 반영하고 초과분을 버린다
func (f *Feed) flush() {
	f.mu.Lock()

	f.timer = nil
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}

	f.entries = append(f.entries, f.pending...)
	f.pending = nil
	if len(f.entries) > f.maxLen {
		f.entries = append([]Entry(nil), f.entries[len(f.entries)-f.maxLen:]...)
	}

	snapshot := make([]Entry, len(f.entries))
	copy(snapshot, f.entries)
	onFlush := f.onFlush
	f.mu.Unlock()

	if onFlush != nil {
		onFlush(snapshot)
	}
}

// Entries 현재 피드 복사본 (펜딩 제외)
func (f *Feed) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make([]Entry, len(f.entries))
	copy(snapshot, f.entries)
	return snapshot
}

// Stop 대기 중인 타이머를 멈추고 남은 펜딩을 즉시 플러시
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.flush()
}

// DescribeEvent 배틀 이벤트를 피드 한 줄 문구로
func DescribeEvent(event BattleEvent) string {
	snapshot := event.Battle

	switch event.Type {
	case models.EventStart:
		return fmt.Sprintf("%s vs %s — battle started!",
			snapshot.ParticipantA.DisplayName, snapshot.ParticipantB.DisplayName)

	case models.EventVote:
		// 어느 쪽이 득표했는지는 스냅샷만으로 알 수 없으므로 현황을 보여준다
		return fmt.Sprintf("Votes update: %s %d — %d %s",
			snapshot.ParticipantA.DisplayName, snapshot.ParticipantA.Votes,
			snapshot.ParticipantB.Votes, snapshot.ParticipantB.DisplayName)

	case models.EventEnd:
		if snapshot.Draw {
			return "Battle over — it's a draw!"
		}
		if snapshot.WinnerSide != nil {
			winner := snapshot.ParticipantA.DisplayName
			if *snapshot.WinnerSide == models.SideB {
				winner = snapshot.ParticipantB.DisplayName
			}
			return fmt.Sprintf("Battle over — %s wins!", winner)
		}
		return "Battle over"

	case models.EventCancel:
		return "Battle cancelled"

	default:
		return ""
	}
}
