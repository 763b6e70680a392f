package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/config"
	"github.com/danz-app/danz/middleware"
	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// AuthController handles Farcaster sessions and account linking.
type AuthController struct {
	users *services.CheckinService
	links *services.LinkingService
}

// NewAuthController creates a new AuthController.
func NewAuthController(users *services.CheckinService, links *services.LinkingService) *AuthController {
	return &AuthController{users: users, links: links}
}

type farcasterUserData struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PfpURL      string `json:"pfp_url"`
}

// FarcasterLogin signs a Farcaster user in, creating the account on first visit.
// When Neynar is configured the fid must resolve there and its profile wins over the client's.
func (a *AuthController) FarcasterLogin(ctx *gin.Context) {
	type request struct {
		FID      int64             `json:"fid" binding:"required"`
		UserData farcasterUserData `json:"user_data"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil || req.FID <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	profile := &services.Profile{
		Username:    req.UserData.Username,
		DisplayName: req.UserData.DisplayName,
		PfpURL:      req.UserData.PfpURL,
	}
	if utils.NeynarConfigured() {
		fu, err := utils.FetchFarcasterUser(ctx.Request.Context(), req.FID)
		switch {
		case errors.Is(err, utils.ErrFarcasterUserNotFound):
			utils.Error(ctx, http.StatusUnauthorized, 40120, "unknown farcaster user")
			return
		case err != nil:
			utils.Sugar.Warnw("neynar lookup failed, using client profile", "fid", req.FID, "error", err)
		default:
			profile = &services.Profile{Username: fu.Username, DisplayName: fu.DisplayName, PfpURL: fu.PfpURL}
		}
	}

	user, created, err := a.users.GetOrCreateUserByFid(ctx.Request.Context(), req.FID, profile)
	if err != nil {
		respondServiceError(ctx, err, 50001, "failed to load user")
		return
	}

	ttl := time.Duration(config.Get().JWTTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	token, err := utils.GenerateToken(user.ID, req.FID, user.Username, ttl)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_at": time.Now().Add(ttl),
		"is_new":     created,
		"user":       sanitizeUserResponse(*user),
		"stats":      a.users.StatsFor(user),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(72 * time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current user with stats and linked identities.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	user, err := a.users.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50002, "failed to load user")
		return
	}
	providers, err := a.links.Providers(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50003, "failed to load providers")
		return
	}
	utils.Success(ctx, gin.H{
		"user":      sanitizeUserResponse(*user),
		"stats":     a.users.StatsFor(user),
		"providers": providers,
	})
}

// GetUserByFid returns the public profile and stats for a Farcaster fid.
func (a *AuthController) GetUserByFid(ctx *gin.Context) {
	fid, ok := parseFID(ctx.Param("fid"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid fid")
		return
	}
	user, err := a.users.GetUserByFid(ctx.Request.Context(), fid)
	if err != nil {
		respondServiceError(ctx, err, 50005, "failed to load user")
		return
	}
	utils.Success(ctx, gin.H{"user": sanitizeUserResponse(*user), "stats": a.users.StatsFor(user)})
}

// FarcasterUser proxies a profile lookup to Neynar.
func (a *AuthController) FarcasterUser(ctx *gin.Context) {
	fid, ok := parseFID(ctx.Query("fid"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid fid")
		return
	}
	fu, err := utils.FetchFarcasterUser(ctx.Request.Context(), fid)
	switch {
	case errors.Is(err, utils.ErrNeynarNotConfigured):
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "farcaster lookups are not configured")
	case errors.Is(err, utils.ErrFarcasterUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40402, "farcaster user not found")
	case err != nil:
		utils.Sugar.Warnw("neynar lookup failed", "fid", fid, "error", err)
		utils.Error(ctx, http.StatusBadGateway, 50201, "farcaster lookup failed")
	default:
		utils.Success(ctx, fu)
	}
}

// CreateLinkToken issues a one-time token for attaching another identity.
func (a *AuthController) CreateLinkToken(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		TargetProvider string `json:"target_provider" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	token, row, err := a.links.GenerateLinkToken(ctx.Request.Context(), userID, strings.ToLower(strings.TrimSpace(req.TargetProvider)))
	if err != nil {
		respondServiceError(ctx, err, 50010, "failed to create linking token")
		return
	}
	utils.Created(ctx, gin.H{
		"token":           token,
		"target_provider": row.TargetProvider,
		"expires_at":      row.ExpiresAt,
	})
}

// ValidateLinkToken spends a linking token and attaches the identity to its issuer.
func (a *AuthController) ValidateLinkToken(ctx *gin.Context) {
	var req struct {
		Token      string                  `json:"token" binding:"required"`
		Provider   string                  `json:"provider" binding:"required"`
		ProviderID string                  `json:"provider_id" binding:"required"`
		Metadata   models.ProviderMetadata `json:"metadata"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	linked, err := a.links.ValidateLinkToken(ctx.Request.Context(), req.Token,
		strings.ToLower(strings.TrimSpace(req.Provider)), req.ProviderID, req.Metadata)
	if err != nil {
		respondServiceError(ctx, err, 50011, "failed to link identity")
		return
	}
	utils.Success(ctx, gin.H{"provider": linked})
}

// Unlink detaches a non-primary identity from the current user.
func (a *AuthController) Unlink(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Provider   string `json:"provider" binding:"required"`
		ProviderID string `json:"provider_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if err := a.links.Unlink(ctx.Request.Context(), userID, req.Provider, req.ProviderID); err != nil {
		respondServiceError(ctx, err, 50012, "failed to unlink identity")
		return
	}
	utils.Success(ctx, gin.H{"message": "unlinked"})
}

func sanitizeUserResponse(user models.User) gin.H {
	return gin.H{
		"id":             user.ID,
		"fid":            user.FarcasterFID,
		"username":       user.Username,
		"display_name":   user.DisplayName,
		"avatar_url":     user.AvatarURL,
		"xp":             user.XP,
		"level":          user.Level,
		"current_streak": user.CurrentStreak,
		"longest_streak": user.LongestStreak,
		"total_checkins": user.TotalCheckins,
		"danz_balance":   user.DanzBalance,
		"last_checkin":   user.LastCheckinAt,
		"created_at":     user.CreatedAt,
	}
}
