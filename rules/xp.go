package rules

import (
	"strings"

	"github.com/danz-app/danz/models"
)

// Check-in reward constants. Changing any of these changes the economy.
const (
	BaseXP            = 50
	StreakBonusPerDay = 5
	MaxStreakBonus    = 50
	ReflectionBonus   = 25
)

// CheckinXP is the reward breakdown for one check-in.
type CheckinXP struct {
	BaseXP          int `json:"base_xp"`
	StreakBonus     int `json:"streak_bonus"`
	ReflectionBonus int `json:"reflection_bonus"`
	TotalXP         int `json:"total_xp"`
}

// CalculateCheckinXP returns the reward for a check-in made at the given streak.
func CalculateCheckinXP(streak int, hasReflection bool) CheckinXP {
	if streak < 0 {
		streak = 0
	}
	bonus := streak * StreakBonusPerDay
	if bonus > MaxStreakBonus {
		bonus = MaxStreakBonus
	}
	out := CheckinXP{BaseXP: BaseXP, StreakBonus: bonus}
	if hasReflection {
		out.ReflectionBonus = ReflectionBonus
	}
	out.TotalXP = out.BaseXP + out.StreakBonus + out.ReflectionBonus
	return out
}

// NextStreak applies the reset-on-miss rule.
func NextStreak(current int, didDance bool) int {
	if !didDance {
		return 0
	}
	if current < 0 {
		current = 0
	}
	return current + 1
}

// EffectiveStreak drops a stored streak to zero once a calendar day has been skipped.
// Day keys are YYYY-MM-DD; an empty lastDay means no history and keeps current.
func EffectiveStreak(current int, lastDay, today string) int {
	if current <= 0 {
		return 0
	}
	if lastDay == "" || lastDay >= today {
		return current
	}
	if lastDay == PreviousDay(today) {
		return current
	}
	return 0
}

// HasReflection reports whether a reflection earns the bonus.
func HasReflection(r *models.Reflection) bool {
	if r == nil {
		return false
	}
	if strings.TrimSpace(r.Feeling) != "" {
		return true
	}
	for _, b := range r.Benefits {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}
