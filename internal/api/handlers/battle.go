package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
	"github.com/bubble-duels/duels-backend/internal/repository"
	"github.com/bubble-duels/duels-backend/internal/service"
)

type BattleHandler struct {
	battleService *service.BattleService
	voteService   *service.VoteService
	participants  repository.ParticipantSource
}

func NewBattleHandler(
	battleService *service.BattleService,
	voteService *service.VoteService,
	participants repository.ParticipantSource,
) *BattleHandler {
	return &BattleHandler{
		battleService: battleService,
		voteService:   voteService,
		participants:  participants,
	}
}

// CreateBattle 새 배틀 생성
func (h *BattleHandler) CreateBattle(c *gin.Context) {
	var req models.CreateBattleRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userId, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	battle, err := h.battleService.Create(c.Request.Context(), userId.(string), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPair) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "A battle needs two distinct participants",
			})
			return
		}
		if errors.Is(err, service.ErrParticipantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Participant not found",
			})
			return
		}
		if errors.Is(err, service.ErrParticipantBusy) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Participant is already in a live battle",
			})
			return
		}

		h.serviceError(c, err, "Failed to create battle")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"battle": h.battleService.Snapshot(battle),
	})
}

// StartBattle waiting 배틀을 active로 전환
func (h *BattleHandler) StartBattle(c *gin.Context) {
	id := c.Param("id")

	userId, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	battle, err := h.battleService.Start(c.Request.Context(), id, userId.(string))
	if err != nil {
		if errors.Is(err, service.ErrBattleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Battle not found",
			})
			return
		}
		if errors.Is(err, service.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Battle cannot be started from its current status",
			})
			return
		}

		h.serviceError(c, err, "Failed to start battle")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battle": h.battleService.Snapshot(battle),
	})
}

// CancelBattle 생성자가 배틀 취소
func (h *BattleHandler) CancelBattle(c *gin.Context) {
	id := c.Param("id")

	userId, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	battle, err := h.battleService.Cancel(c.Request.Context(), id, userId.(string))
	if err != nil {
		if errors.Is(err, service.ErrBattleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Battle not found",
			})
			return
		}
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Only the battle creator can cancel it",
			})
			return
		}
		if errors.Is(err, service.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Battle is already finished",
			})
			return
		}

		h.serviceError(c, err, "Failed to cancel battle")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battle": h.battleService.Snapshot(battle),
	})
}

// Vote active 배틀에 투표
func (h *BattleHandler) Vote(c *gin.Context) {
	id := c.Param("id")

	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userId, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	battle, err := h.voteService.Vote(c.Request.Context(), id, userId.(string), req.Side)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSide) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Side must be A or B",
			})
			return
		}
		if errors.Is(err, service.ErrBattleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Battle not found",
			})
			return
		}
		if errors.Is(err, service.ErrAlreadyVoted) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "You have already voted in this battle",
			})
			return
		}
		if errors.Is(err, service.ErrInvalidState) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Battle is not accepting votes",
			})
			return
		}

		h.serviceError(c, err, "Failed to record vote")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battle": h.battleService.Snapshot(battle),
	})
}

// GetBattle 특정 배틀 조회 (공개)
func (h *BattleHandler) GetBattle(c *gin.Context) {
	id := c.Param("id")

	battle, err := h.battleService.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrBattleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Battle not found",
			})
			return
		}

		h.serviceError(c, err, "Failed to get battle")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battle": h.battleService.Snapshot(battle),
	})
}

// ListBattles 진행 중인 배틀 목록 조회 (공개)
func (h *BattleHandler) ListBattles(c *gin.Context) {
	battles, err := h.battleService.ListActive(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to list battles")
		return
	}

	snapshots := make([]display.BattleSnapshot, 0, len(battles))
	for _, battle := range battles {
		snapshots = append(snapshots, h.battleService.Snapshot(battle))
	}

	c.JSON(http.StatusOK, gin.H{
		"battles": snapshots,
		"total":   len(snapshots),
	})
}

// ListParticipants 배틀에 투입 가능한 참가자 카탈로그 조회
func (h *BattleHandler) ListParticipants(c *gin.Context) {
	participants, err := h.participants.ListEligible(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to list participants")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": participants,
		"total":        len(participants),
	})
}

// serviceError 매핑되지 않은 서비스 오류 공통 처리
func (h *BattleHandler) serviceError(c *gin.Context, err error, message string) {
	if errors.Is(err, service.ErrStorageUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Storage temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": message,
	})
}
