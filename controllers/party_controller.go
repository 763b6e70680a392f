package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// PartyController exposes party membership and discovery.
type PartyController struct {
	parties *services.PartyService
	users   *services.CheckinService
}

// NewPartyController creates a new PartyController instance.
func NewPartyController(parties *services.PartyService, users *services.CheckinService) *PartyController {
	return &PartyController{parties: parties, users: users}
}

// ListParties returns public parties with free seats, or the party of ?fid=.
func (p *PartyController) ListParties(ctx *gin.Context) {
	if fidStr := strings.TrimSpace(ctx.Query("fid")); fidStr != "" {
		fid, ok := parseFID(fidStr)
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40022, "invalid fid")
			return
		}
		user, err := p.users.GetUserByFid(ctx.Request.Context(), fid)
		if err != nil {
			respondServiceError(ctx, err, 50030, "failed to load user")
			return
		}
		party, err := p.parties.Mine(ctx.Request.Context(), user.ID)
		if errors.Is(err, services.ErrNotInParty) {
			utils.Success(ctx, gin.H{"party": nil})
			return
		}
		if err != nil {
			respondServiceError(ctx, err, 50031, "failed to load party")
			return
		}
		utils.Success(ctx, gin.H{"party": party})
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	parties, err := p.parties.Discover(ctx.Request.Context(), limit)
	if err != nil {
		respondServiceError(ctx, err, 50032, "failed to list parties")
		return
	}
	utils.Success(ctx, gin.H{"items": parties})
}

// Leaderboard ranks parties by weekly XP.
func (p *PartyController) Leaderboard(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	entries, err := p.parties.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		respondServiceError(ctx, err, 50033, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, gin.H{"items": entries})
}

// GetParty returns a party with its members and live multiplier.
func (p *PartyController) GetParty(ctx *gin.Context) {
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	party, err := p.parties.Get(ctx.Request.Context(), partyID)
	if err != nil {
		respondServiceError(ctx, err, 50034, "failed to load party")
		return
	}
	utils.Success(ctx, party)
}

// MyParty returns the signed-in user's party.
func (p *PartyController) MyParty(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	party, err := p.parties.Mine(ctx.Request.Context(), userID)
	if errors.Is(err, services.ErrNotInParty) {
		utils.Success(ctx, gin.H{"party": nil})
		return
	}
	if err != nil {
		respondServiceError(ctx, err, 50035, "failed to load party")
		return
	}
	utils.Success(ctx, gin.H{"party": party})
}

// CreateParty starts a new party led by the caller.
func (p *PartyController) CreateParty(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req services.CreatePartyInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	party, err := p.parties.Create(ctx.Request.Context(), userID, req)
	if err != nil {
		respondServiceError(ctx, err, 50036, "failed to create party")
		return
	}
	utils.Created(ctx, party)
}

// UpdateParty edits name, description, emoji or visibility.
func (p *PartyController) UpdateParty(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req services.UpdatePartyInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	party, err := p.parties.Update(ctx.Request.Context(), userID, partyID, req)
	if err != nil {
		respondServiceError(ctx, err, 50037, "failed to update party")
		return
	}
	utils.Success(ctx, party)
}

// JoinParty joins by numeric id or by join code.
func (p *PartyController) JoinParty(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	party, err := p.parties.Join(ctx.Request.Context(), userID, getFID(ctx), ctx.Param("id"))
	if err != nil {
		respondServiceError(ctx, err, 50038, "failed to join party")
		return
	}
	utils.Success(ctx, party)
}

// LeaveParty removes the caller, handing leadership over when needed.
func (p *PartyController) LeaveParty(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	res, err := p.parties.Leave(ctx.Request.Context(), userID, partyID)
	if err != nil {
		respondServiceError(ctx, err, 50039, "failed to leave party")
		return
	}
	utils.Success(ctx, res)
}

// DisbandParty closes the party and releases every stake.
func (p *PartyController) DisbandParty(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	if err := p.parties.Disband(ctx.Request.Context(), userID, partyID); err != nil {
		respondServiceError(ctx, err, 50040, "failed to disband party")
		return
	}
	utils.Success(ctx, gin.H{"message": "party disbanded"})
}

// InviteMember invites a Farcaster fid into the party.
func (p *PartyController) InviteMember(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		FID int64 `json:"fid" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	invite, err := p.parties.Invite(ctx.Request.Context(), userID, partyID, req.FID)
	if err != nil {
		respondServiceError(ctx, err, 50041, "failed to invite member")
		return
	}
	utils.Created(ctx, invite)
}

// KickMember removes another member.
func (p *PartyController) KickMember(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(ctx, "userId")
	if !ok {
		return
	}
	if err := p.parties.Kick(ctx.Request.Context(), userID, partyID, targetID); err != nil {
		respondServiceError(ctx, err, 50042, "failed to kick member")
		return
	}
	utils.Success(ctx, gin.H{"message": "member removed"})
}

// SetMemberRole promotes, demotes or hands over leadership.
func (p *PartyController) SetMemberRole(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(ctx, "userId")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if err := p.parties.SetRole(ctx.Request.Context(), userID, partyID, targetID, strings.TrimSpace(req.Role)); err != nil {
		respondServiceError(ctx, err, 50043, "failed to change role")
		return
	}
	utils.Success(ctx, gin.H{"message": "role updated"})
}
