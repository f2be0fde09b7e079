package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BattleEvent 인스턴스 간 배틀 이벤트 전파용 메시지
type BattleEvent struct {
	Origin   string          `json:"origin"` // 발행 인스턴스 ID
	Type     string          `json:"type"`   // start | vote | end | cancel
	BattleID string          `json:"battleId"`
	Battle   json.RawMessage `json:"battle"` // 배틀 스냅샷 (JSON)
	SentAt   time.Time       `json:"sentAt"`
}

// EventBridge Redis Pub/Sub으로 배틀 이벤트를 모든 인스턴스에 전파
// 한 인스턴스에서 커밋된 투표를 다른 인스턴스의 구독자도 보게 한다
type EventBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewEventBridge EventBridge 생성 (클라이언트는 주입)
func NewEventBridge(client *redis.Client, channel string) *EventBridge {
	logger, _ := zap.NewProduction()
	if channel == "" {
		channel = "duels:events"
	}
	return &EventBridge{
		client:     client,
		channel:    channel,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

// InstanceID 이 브릿지의 인스턴스 식별자
func (b *EventBridge) InstanceID() string {
	return b.instanceID
}

// Publish 이벤트 발행 (자기 인스턴스 origin 포함)
func (b *EventBridge) Publish(ctx context.Context, eventType, battleID string, battle json.RawMessage) error {
	event := BattleEvent{
		Origin:   b.instanceID,
		Type:     eventType,
		BattleID: battleID,
		Battle:   battle,
		SentAt:   time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal battle event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish battle event: %w", err)
	}

	return nil
}

// Start 원격 이벤트 구독 시작. handler는 다른 인스턴스가 발행한 이벤트만 받는다
func (b *EventBridge) Start(handler func(*BattleEvent)) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.started = true
	b.mu.Unlock()

	sub := b.client.Subscribe(ctx, b.channel)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event BattleEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Failed to decode battle event",
						zap.Error(err))
					continue
				}

				// 자기 자신이 발행한 이벤트는 로컬 허브가 이미 처리함
				if event.Origin == b.instanceID {
					continue
				}

				handler(&event)
			}
		}
	}()

	b.logger.Info("EventBridge subscribed",
		zap.String("channel", b.channel),
		zap.String("instanceId", b.instanceID))
}

// Stop 구독 중지
func (b *EventBridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
}
