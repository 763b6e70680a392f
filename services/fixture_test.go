package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/danz-app/danz/config"
	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/utils"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	redis    *miniredis.Miniredis
	checkins *CheckinService
	acct     *AccountabilityService
	parties  *PartyService
	shop     *ShopService
	enc      *EncouragementService
	links    *LinkingService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := config.OpenDatabase(config.AppConfig{
		DBDriver:    "sqlite",
		DatabaseURI: filepath.Join(t.TempDir(), "danz.db"),
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(conn, models.All()...))
	return conn
}

// newFixture wires every service against a fresh database and Redis.
// The clock starts on Wednesday 2026-03-04 at noon UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	utils.SetRedis(rc)
	t.Cleanup(func() {
		utils.SetRedis(nil)
		_ = rc.Close()
	})

	clock := &testClock{now: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)}
	opts := []Option{WithLocation(time.UTC), WithClock(clock.Now), WithStarterGrant(1000)}
	db := setupTestDB(t)
	acct := NewAccountabilityService(db, opts...)
	return &fixture{
		db:       db,
		clock:    clock,
		redis:    mr,
		checkins: NewCheckinService(db, opts...),
		acct:     acct,
		parties:  NewPartyService(db, acct, opts...),
		shop:     NewShopService(db, opts...),
		enc:      NewEncouragementService(db, opts...),
		links:    NewLinkingService(db, opts...),
	}
}

func (f *fixture) user(t *testing.T, fid int64, name string) *models.User {
	t.Helper()
	u, _, err := f.checkins.GetOrCreateUserByFid(context.Background(), fid, &Profile{Username: name, DisplayName: name})
	require.NoError(t, err)
	return u
}

func (f *fixture) reload(t *testing.T, userID uint) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, userID).Error)
	return &u
}

// nextDay moves the clock forward 24h.
func (f *fixture) nextDay() { f.clock.Advance(24 * time.Hour) }

// checkin records a check-in for today and fails the test on error.
func (f *fixture) checkin(t *testing.T, u *models.User, danced bool) *CheckinResult {
	t.Helper()
	res, err := f.checkins.RecordCheckin(context.Background(), u.ID, u.FarcasterFID, danced, nil)
	require.NoError(t, err)
	return res
}
