package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
)

// LobbyTopic 개별 배틀이 아니라 목록 화면을 구독하는 클라이언트용 토픽
const LobbyTopic = "lobby"

// Hub WebSocket 연결 관리 및 배틀 이벤트 브로드캐스트
type Hub struct {
	// 연결된 클라이언트와 구독 중인 토픽 (battleID 또는 LobbyTopic)
	clients map[*Client]map[string]bool
	// 토픽별 구독자 (battleID -> clients)
	topics map[string]map[*Client]bool
	mu     sync.RWMutex

	// 브로드캐스트 채널
	broadcast chan *Message

	// 등록/해제/구독 채널
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	Type     string      `json:"type"`               // 메시지 타입 (battle_start 등)
	BattleID string      `json:"battleId,omitempty"` // 관련 배틀
	Payload  interface{} `json:"payload"`            // 메시지 내용
}

// subscription 클라이언트의 토픽 구독 요청
type subscription struct {
	client *Client
	topic  string
}

// NewHub Hub 생성
func NewHub() *Hub {
	logger, _ := zap.NewProduction()
	return &Hub{
		clients:     make(map[*Client]map[string]bool),
		topics:      make(map[string]map[*Client]bool),
		broadcast:   make(chan *Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		logger:      logger,
	}
}

// Run Hub 실행
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case sub := <-h.subscribe:
			h.subscribeClient(sub.client, sub.topic)

		case sub := <-h.unsubscribe:
			h.unsubscribeClient(sub.client, sub.topic)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 클라이언트 등록 (기본으로 로비 토픽 구독)
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = map[string]bool{LobbyTopic: true}
	h.addToTopic(client, LobbyTopic)

	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient 클라이언트 해제 및 모든 구독 정리
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribed, exists := h.clients[client]
	if !exists {
		return
	}

	for topic := range subscribed {
		h.removeFromTopic(client, topic)
	}
	delete(h.clients, client)
	close(client.send)

	h.logger.Info("WebSocket client unregistered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

// subscribeClient 배틀 토픽 구독
func (h *Hub) subscribeClient(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribed, exists := h.clients[client]
	if !exists {
		return
	}
	subscribed[topic] = true
	h.addToTopic(client, topic)
}

// unsubscribeClient 배틀 토픽 구독 해제
func (h *Hub) unsubscribeClient(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribed, exists := h.clients[client]
	if !exists {
		return
	}
	delete(subscribed, topic)
	h.removeFromTopic(client, topic)
}

func (h *Hub) addToTopic(client *Client, topic string) {
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
}

func (h *Hub) removeFromTopic(client *Client, topic string) {
	if subscribers, exists := h.topics[topic]; exists {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
}

// broadcastMessage 메시지를 토픽 구독자에게 전달
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	for client := range h.topics[message.BattleID] {
		targets[client] = true
	}
	// 상태 전이 이벤트는 로비 화면도 갱신해야 함
	if message.Type != models.EventVote {
		for client := range h.topics[LobbyTopic] {
			targets[client] = true
		}
	}

	for client := range targets {
		select {
		case client.send <- message:
		default:
			// 채널이 가득 찬 경우 연결 해제
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("userId", client.userID))
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// BroadcastBattleEvent 배틀 이벤트를 스냅샷과 함께 브로드캐스트
func (h *Hub) BroadcastBattleEvent(eventType string, snapshot display.BattleSnapshot) {
	h.broadcast <- &Message{
		Type:     eventType,
		BattleID: snapshot.BattleID,
		Payload:  snapshot,
	}
}
