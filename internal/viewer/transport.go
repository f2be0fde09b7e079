package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bubble-duels/duels-backend/internal/display"
)

// WebsocketStream gorilla 웹소켓 기반 EventStream 구현.
// 연결 핸들은 전역이 아니라 여기서 명시적으로 소유한다
type WebsocketStream struct {
	url    string // 예: ws://host/api/v1/ws
	dialer *websocket.Dialer
}

// NewWebsocketStream WebsocketStream 생성. dialer가 nil이면 기본값
func NewWebsocketStream(url string, dialer *websocket.Dialer) *WebsocketStream {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebsocketStream{url: url, dialer: dialer}
}

// wireMessage 서버 허브가 보내는 메시지 형태
type wireMessage struct {
	Type     string                 `json:"type"`
	BattleID string                 `json:"battleId"`
	Payload  display.BattleSnapshot `json:"payload"`
}

// Connect 연결 후 배틀 토픽 구독. 반환된 채널은 연결이 끊기면 닫힌다
func (s *WebsocketStream) Connect(ctx context.Context, battleID string) (<-chan BattleEvent, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial event stream: %w", err)
	}

	subscribe := map[string]string{"action": "subscribe", "battleId": battleID}
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to battle: %w", err)
	}

	events := make(chan BattleEvent, 64)

	go func() {
		defer close(events)
		defer conn.Close()

		// ctx 취소 시 읽기를 깨운다
		stop := context.AfterFunc(ctx, func() {
			conn.SetReadDeadline(time.Now())
		})
		defer stop()

		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.BattleID != battleID {
				continue
			}

			select {
			case events <- BattleEvent{Type: msg.Type, Battle: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// HTTPFetcher 스냅샷 폴링용 SnapshotFetcher 구현
type HTTPFetcher struct {
	baseURL string // 예: http://host/api/v1
	client  *http.Client
}

// NewHTTPFetcher HTTPFetcher 생성. client가 nil이면 기본 타임아웃 적용
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{baseURL: baseURL, client: client}
}

// FetchSnapshot GET /battles/:id 응답에서 스냅샷을 꺼낸다
func (f *HTTPFetcher) FetchSnapshot(ctx context.Context, battleID string) (display.BattleSnapshot, error) {
	url := fmt.Sprintf("%s/battles/%s", f.baseURL, battleID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return display.BattleSnapshot{}, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return display.BattleSnapshot{}, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return display.BattleSnapshot{}, fmt.Errorf("snapshot request returned status %d", resp.StatusCode)
	}

	var body struct {
		Battle display.BattleSnapshot `json:"battle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return display.BattleSnapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return body.Battle, nil
}
