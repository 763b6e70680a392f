package services

import (
	"math/rand"
	"time"

	"github.com/danz-app/danz/rules"
)

// Options carries the knobs shared by every service.
type Options struct {
	// Location decides calendar-day boundaries for check-ins and rollovers.
	Location     *time.Location
	Now          func() time.Time
	StarterGrant int64
	LinkTokenTTL time.Duration
	Rand         *rand.Rand
}

// Option mutates Options.
type Option func(*Options)

// WithLocation sets the time zone used for day keys.
func WithLocation(loc *time.Location) Option {
	return func(o *Options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithStarterGrant sets the DANZ credited to new accounts.
func WithStarterGrant(n int64) Option {
	return func(o *Options) { o.StarterGrant = n }
}

// WithLinkTokenTTL sets how long an account-linking token stays valid.
func WithLinkTokenTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.LinkTokenTTL = d
		}
	}
}

// WithRand makes template selection deterministic.
func WithRand(r *rand.Rand) Option {
	return func(o *Options) { o.Rand = r }
}

func newOptions(opts []Option) Options {
	o := Options{
		Location:     time.Local,
		Now:          time.Now,
		LinkTokenTTL: 15 * time.Minute,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o Options) now() time.Time { return o.Now().In(o.Location) }

func (o Options) today() string { return rules.DayKey(o.Now(), o.Location) }
