package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// StatsController provides community totals such as users and today's check-ins.
type StatsController struct {
	db       *gorm.DB
	checkins *services.CheckinService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, checkins *services.CheckinService) *StatsController {
	return &StatsController{db: db, checkins: checkins}
}

type globalStats struct {
	Day            string `json:"day"`
	UserCount      int64  `json:"user_count"`
	CheckinCount   int64  `json:"checkin_count"`
	TodayCheckins  int64  `json:"today_checkins"`
	TodayDancers   int64  `json:"today_dancers"`
	ActiveParties  int64  `json:"active_parties"`
	TotalXPAwarded int64  `json:"total_xp_awarded"`
}

// GetStats returns aggregate statistics. Each counter falls back to 0 on error.
func (s *StatsController) GetStats(ctx *gin.Context) {
	today := s.checkins.Today()
	var out globalStats
	if utils.CacheGetJSON(utils.CacheKeyGlobalStats, &out) && out.Day == today {
		utils.Success(ctx, out)
		return
	}
	out = globalStats{Day: today}
	db := s.db.WithContext(ctx.Request.Context())

	if err := db.Model(&models.User{}).Count(&out.UserCount).Error; err != nil {
		out.UserCount = 0
	}
	if err := db.Model(&models.Checkin{}).Count(&out.CheckinCount).Error; err != nil {
		out.CheckinCount = 0
	}
	if err := db.Model(&models.Checkin{}).Where("checkin_day = ?", today).Count(&out.TodayCheckins).Error; err != nil {
		out.TodayCheckins = 0
	}
	if err := db.Model(&models.Checkin{}).Where("checkin_day = ? AND did_dance = ?", today, true).Count(&out.TodayDancers).Error; err != nil {
		out.TodayDancers = 0
	}
	if err := db.Model(&models.Party{}).Where("status = ?", models.PartyStatusActive).Count(&out.ActiveParties).Error; err != nil {
		out.ActiveParties = 0
	}
	if err := db.Model(&models.User{}).Select("COALESCE(SUM(xp),0)").Scan(&out.TotalXPAwarded).Error; err != nil {
		out.TotalXPAwarded = 0
	}

	utils.CacheSetJSON(utils.CacheKeyGlobalStats, out, 30*time.Second)
	utils.Success(ctx, out)
}
