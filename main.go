package main

import (
	"context"
	"time"

	"github.com/danz-app/danz/config"
	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/routes"
	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(models.All()...)

	svc := services.NewRegistry(db,
		services.WithLocation(cfg.Location()),
		services.WithStarterGrant(cfg.StarterDanzGrant),
		services.WithLinkTokenTTL(time.Duration(cfg.LinkTokenTTLMinutes)*time.Minute),
	)

	r := routes.SetupRouter(db, svc)

	// Daily settlement; each party is settled at most once per day, so frequent ticks are safe
	jobs, stopJobs := context.WithCancel(context.Background())
	utils.StartPeriodicJob(jobs, "party rollover", time.Duration(cfg.RolloverIntervalMin)*time.Minute, func(ctx context.Context) error {
		_, err := svc.Parties.Rollover(ctx, "")
		return err
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, stopJobs); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
	stopJobs()
}
