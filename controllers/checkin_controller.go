package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// CheckinController serves the daily "did you dance?" check-in.
type CheckinController struct {
	checkins *services.CheckinService
}

// NewCheckinController creates a new controller instance.
func NewCheckinController(checkins *services.CheckinService) *CheckinController {
	return &CheckinController{checkins: checkins}
}

// CreateCheckin records today's answer for the signed-in user. Dancing extends the streak
// only when the last check-in was yesterday; after a missed calendar day it starts again at 1.
// A second call on the same day returns the stored check-in with already_checked_in set.
func (c *CheckinController) CreateCheckin(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	type request struct {
		FID        int64              `json:"fid"`
		DidDance   *bool              `json:"did_dance" binding:"required"`
		Reflection *models.Reflection `json:"reflection"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	fid := getFID(ctx)
	if req.FID != 0 && req.FID != fid {
		utils.Error(ctx, http.StatusForbidden, 40302, services.ErrFIDMismatch.Error())
		return
	}

	res, err := c.checkins.RecordCheckin(ctx.Request.Context(), userID, fid, *req.DidDance, req.Reflection)
	if errors.Is(err, services.ErrAlreadyCheckedIn) {
		// a retry gets today's row back untouched
		stats, statsErr := c.checkins.GetUserStats(ctx.Request.Context(), userID)
		if statsErr != nil {
			respondServiceError(ctx, statsErr, 50021, "failed to load stats")
			return
		}
		var existing *models.Checkin
		if res != nil {
			existing = res.Checkin
		}
		utils.Success(ctx, gin.H{
			"success":            true,
			"already_checked_in": true,
			"checkin":            existing,
			"new_streak":         stats.CurrentStreak,
			"xp_earned":          0,
			"level":              stats.Level,
			"leveled_up":         false,
			"stats":              stats,
		})
		return
	}
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to record check-in")
		return
	}

	stats, err := c.checkins.GetUserStats(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50021, "failed to load stats")
		return
	}
	utils.Success(ctx, gin.H{
		"success":            true,
		"already_checked_in": false,
		"checkin":            res.Checkin,
		"new_streak":         res.NewStreak,
		"xp_earned":          res.XPEarned,
		"level":              res.Level,
		"leveled_up":         res.LeveledUp,
		"party_id":           res.PartyID,
		"stats":              stats,
	})
}

// GetCheckin reports whether the fid has checked in today.
func (c *CheckinController) GetCheckin(ctx *gin.Context) {
	fid, ok := parseFID(ctx.Query("fid"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid fid")
		return
	}
	user, err := c.checkins.GetUserByFid(ctx.Request.Context(), fid)
	if errors.Is(err, services.ErrUserNotFound) {
		utils.Success(ctx, gin.H{"has_checked_in_today": false, "checkin": nil, "stats": nil, "day": c.checkins.Today()})
		return
	}
	if err != nil {
		respondServiceError(ctx, err, 50022, "failed to load user")
		return
	}
	checkin, err := c.checkins.GetTodayCheckin(ctx.Request.Context(), user.ID)
	if err != nil {
		respondServiceError(ctx, err, 50023, "failed to load check-in")
		return
	}
	utils.Success(ctx, gin.H{
		"has_checked_in_today": checkin != nil,
		"checkin":              checkin,
		"stats":                c.checkins.StatsFor(user),
		"day":                  c.checkins.Today(),
	})
}
