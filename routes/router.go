package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danz-app/danz/config"
	"github.com/danz-app/danz/controllers"
	"github.com/danz-app/danz/middleware"
	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc *services.Registry) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok", "day": svc.Checkins.Today()})
	})

	authController := controllers.NewAuthController(svc.Checkins, svc.Linking)
	checkinController := controllers.NewCheckinController(svc.Checkins)
	partyController := controllers.NewPartyController(svc.Parties, svc.Checkins)
	stakeController := controllers.NewStakeController(svc.Accountability)
	encController := controllers.NewEncouragementController(svc.Encouragement)
	shopController := controllers.NewShopController(svc.Shop)
	statsController := controllers.NewStatsController(db, svc.Checkins)
	configController := controllers.NewConfigController()

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/farcaster", authController.FarcasterLogin)
	authGroup.POST("/link/validate", authController.ValidateLinkToken)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.POST("/link/token", middleware.AuthRequired(), authController.CreateLinkToken)
	authGroup.POST("/link/unlink", middleware.AuthRequired(), authController.Unlink)

	// Public reads
	api.GET("/farcaster/user", authController.FarcasterUser)
	api.GET("/users/by-fid/:fid", authController.GetUserByFid)
	api.GET("/checkin", checkinController.GetCheckin)
	api.GET("/parties", partyController.ListParties)
	api.GET("/parties/leaderboard", partyController.Leaderboard)
	api.GET("/parties/:id", partyController.GetParty)
	api.GET("/parties/:id/treasury", stakeController.Treasury)
	api.GET("/shop/items", shopController.ListItems)
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/tiers", configController.GetTiers)
	api.GET("/config/pools", configController.GetPools)
	api.GET("/config/slashing", configController.GetSlashing)
	api.GET("/config/roles", configController.GetRoles)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(), middleware.ActivityRecorder(db))

	protected.POST("/checkin", checkinController.CreateCheckin)

	protected.POST("/parties", partyController.CreateParty)
	protected.GET("/parties/mine", partyController.MyParty)
	protected.PATCH("/parties/:id", partyController.UpdateParty)
	protected.POST("/parties/:id/join", partyController.JoinParty)
	protected.POST("/parties/:id/leave", partyController.LeaveParty)
	protected.POST("/parties/:id/disband", partyController.DisbandParty)
	protected.POST("/parties/:id/invites", partyController.InviteMember)
	protected.POST("/parties/:id/members/:userId/kick", partyController.KickMember)
	protected.POST("/parties/:id/members/:userId/role", partyController.SetMemberRole)
	protected.POST("/parties/:id/encourage", encController.Send)
	protected.POST("/parties/:id/stake", stakeController.Stake)

	protected.GET("/stakes/mine", stakeController.MyStakes)
	protected.POST("/stakes/:id/unstake", stakeController.Unstake)
	protected.POST("/stakes/:id/withdraw", stakeController.Withdraw)

	protected.GET("/encouragements", encController.Inbox)
	protected.POST("/encouragements/:id/read", encController.MarkRead)

	protected.GET("/shop/inventory", shopController.Inventory)
	protected.POST("/shop/purchase", shopController.Purchase)
	protected.POST("/shop/inventory/:id/activate", shopController.Activate)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
