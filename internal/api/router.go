package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/bubble-duels/duels-backend/internal/api/handlers"
	"github.com/bubble-duels/duels-backend/internal/api/middleware"
	"github.com/bubble-duels/duels-backend/internal/config"
	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
	"github.com/bubble-duels/duels-backend/internal/repository"
	"github.com/bubble-duels/duels-backend/internal/service"
	"github.com/bubble-duels/duels-backend/internal/websocket"
	"github.com/bubble-duels/duels-backend/pkg/database"
	"github.com/bubble-duels/duels-backend/pkg/distributed"
	"github.com/bubble-duels/duels-backend/pkg/logger"
	"github.com/bubble-duels/duels-backend/pkg/ratelimit"
)

// eventFanout 로컬 허브와 Redis 브릿지 양쪽으로 배틀 이벤트 전달
type eventFanout struct {
	hub    *websocket.Hub
	bridge *distributed.EventBridge
}

func (f *eventFanout) BroadcastBattleEvent(eventType string, snapshot display.BattleSnapshot) {
	f.hub.BroadcastBattleEvent(eventType, snapshot)

	if f.bridge == nil {
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error("Failed to marshal battle snapshot for bridge", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.bridge.Publish(ctx, eventType, snapshot.BattleID, data); err != nil {
		logger.Error("Failed to publish battle event", "error", err)
	}
}

// devCatalog DATABASE_URL 없이 띄울 때 쓰는 기본 참가자 목록
func devCatalog() []models.CatalogParticipant {
	return []models.CatalogParticipant{
		{ID: "ad-aurora", DisplayName: "Aurora Cola", ImageRef: "catalog/aurora-cola"},
		{ID: "ad-bolt", DisplayName: "Bolt Энергия", ImageRef: "catalog/bolt-energy"},
		{ID: "ad-crunch", DisplayName: "Crunch Bites", ImageRef: "catalog/crunch-bites"},
		{ID: "ad-drift", DisplayName: "Drift Sneakers", ImageRef: "catalog/drift-sneakers"},
	}
}

// SetupRouter API 라우터 설정. db와 redisClient는 nil일 수 있다
func SetupRouter(cfg *config.Config, db *database.DB, redisClient *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Repository 초기화 (DB 없으면 인메모리)
	var store repository.BattleStore
	var participants repository.ParticipantSource
	if db != nil {
		store = repository.NewBattleRepository(db)
		participants = repository.NewParticipantRepository(db)
	} else {
		memStore := repository.NewMemoryStore()
		store = memStore
		participants = repository.NewMemoryParticipantSource(memStore, devCatalog()...)
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// WebSocket Hub 초기화 및 시작
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Redis 기반 분산 기능 (브릿지, 스윕 리더십, Rate Limit)
	broadcaster := &eventFanout{hub: wsHub}
	var lockManager *distributed.RedisLockManager
	var redisLimiter *ratelimit.RedisRateLimiter
	if redisClient != nil {
		bridge := distributed.NewEventBridge(redisClient, "")
		bridge.Start(func(event *distributed.BattleEvent) {
			var snapshot display.BattleSnapshot
			if err := json.Unmarshal(event.Battle, &snapshot); err != nil {
				logger.Error("Failed to decode bridged battle snapshot", "error", err)
				return
			}
			wsHub.BroadcastBattleEvent(event.Type, snapshot)
		})
		broadcaster.bridge = bridge

		lockManager = distributed.NewRedisLockManager(redisClient)
		redisLimiter = ratelimit.NewRedisRateLimiter(redisClient, "", 60, time.Minute)
	}

	// Service 초기화
	battleService := service.NewBattleService(store, participants, broadcaster)
	voteService := service.NewVoteService(store, battleService, broadcaster)

	// Sweep Service 초기화 및 시작
	sweepService := service.NewSweepService(store, battleService, lockManager, cfg.SweepInterval)
	sweepService.Start()

	// Handler 초기화
	battleHandler := handlers.NewBattleHandler(battleService, voteService, participants)
	wsHandler := handlers.NewWebSocketHandler(wsHub)

	// Rate Limit 미들웨어 (Redis가 있으면 분산, 없으면 로컬)
	voteLimit := middleware.VoteRateLimit()
	createLimit := middleware.BattleCreationRateLimit()
	if redisLimiter != nil {
		voteLimit = middleware.RedisVoteRateLimit(redisLimiter)
		createLimit = middleware.RedisBattleCreationRateLimit(redisLimiter)
	}

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint (익명 관전 허용)
		v1.GET("/ws", middleware.OptionalAuth(cfg), wsHandler.HandleWebSocket)

		// Participant catalog
		v1.GET("/participants", battleHandler.ListParticipants)

		// Battle routes
		battles := v1.Group("/battles")
		{
			battles.GET("", battleHandler.ListBattles)
			battles.GET("/:id", battleHandler.GetBattle)
			battles.POST("", middleware.Auth(cfg), createLimit, battleHandler.CreateBattle)
			battles.POST("/:id/start", middleware.Auth(cfg), battleHandler.StartBattle)
			battles.POST("/:id/cancel", middleware.Auth(cfg), battleHandler.CancelBattle)
			battles.POST("/:id/vote", middleware.Auth(cfg), voteLimit, battleHandler.Vote)
		}
	}

	return router
}
