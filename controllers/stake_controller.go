package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// StakeController handles party stakes and treasuries.
type StakeController struct {
	acct *services.AccountabilityService
}

// NewStakeController creates a new StakeController instance.
func NewStakeController(acct *services.AccountabilityService) *StakeController {
	return &StakeController{acct: acct}
}

// Stake locks DANZ from the caller's balance in a party.
func (s *StakeController) Stake(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	stake, err := s.acct.Stake(ctx.Request.Context(), userID, partyID, req.Amount)
	if err != nil {
		respondServiceError(ctx, err, 50050, "failed to stake")
		return
	}
	utils.Created(ctx, stake)
}

// Unstake starts the unlocking window of an active stake.
func (s *StakeController) Unstake(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	stakeID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	stake, err := s.acct.RequestUnstake(ctx.Request.Context(), userID, stakeID)
	if err != nil {
		respondServiceError(ctx, err, 50051, "failed to unstake")
		return
	}
	utils.Success(ctx, stake)
}

// Withdraw pays a withdrawable stake back to the caller.
func (s *StakeController) Withdraw(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	stakeID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	stake, paid, err := s.acct.Withdraw(ctx.Request.Context(), userID, stakeID)
	if err != nil {
		respondServiceError(ctx, err, 50052, "failed to withdraw")
		return
	}
	utils.Success(ctx, gin.H{"stake": stake, "amount": paid})
}

// MyStakes lists the caller's stakes.
func (s *StakeController) MyStakes(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	stakes, err := s.acct.MyStakes(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50053, "failed to list stakes")
		return
	}
	utils.Success(ctx, gin.H{"items": stakes})
}

// Treasury shows a party's pools and latest slashes.
func (s *StakeController) Treasury(ctx *gin.Context) {
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	view, err := s.acct.Treasury(ctx.Request.Context(), partyID)
	if err != nil {
		respondServiceError(ctx, err, 50054, "failed to load treasury")
		return
	}
	utils.Success(ctx, view)
}
