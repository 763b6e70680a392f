package rules

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// EncouragementType selects a template group.
type EncouragementType string

const (
	EncourageFriendlyReminder EncouragementType = "friendly_reminder"
	EncourageStreakAtRisk     EncouragementType = "streak_at_risk"
	EncouragePartyNeedsYou    EncouragementType = "party_needs_you"
	EncourageComeback         EncouragementType = "comeback"
	EncourageCelebration      EncouragementType = "celebration"
	EncourageMilestone        EncouragementType = "milestone"
	EncourageLeaderboardClimb EncouragementType = "leaderboard_climb"
	EncourageCustom           EncouragementType = "custom"
)

// Template is one message with its emoji.
type Template struct {
	Message string `json:"message"`
	Emoji   string `json:"emoji"`
}

// FallbackTemplate is used when a type has no templates.
var FallbackTemplate = Template{Message: "Keep dancing!", Emoji: "💃"}

// TemplateGroup is the set of templates for one type.
type TemplateGroup struct {
	Type             EncouragementType `json:"type"`
	Templates        []Template        `json:"templates"`
	TriggerCondition string            `json:"trigger_condition"`
	CooldownHours    int               `json:"cooldown_hours"`
}

// CustomCooldownHours applies to member-written messages.
const CustomCooldownHours = 1

var EncouragementTemplates = []TemplateGroup{
	{
		Type: EncourageFriendlyReminder,
		Templates: []Template{
			{Message: "Hey {name}! Time to move those feet! 💃", Emoji: "💃"},
			{Message: "{name}, your body wants to dance today!", Emoji: "🕺"},
			{Message: "Dance break time, {name}! Let's gooo!", Emoji: "🎵"},
		},
		TriggerCondition: "no check-in today and it is past noon",
		CooldownHours:    12,
	},
	{
		Type: EncourageStreakAtRisk,
		Templates: []Template{
			{Message: "🚨 {name}! Your {streak}-day streak is about to break!", Emoji: "🚨"},
			{Message: "{name}, don't let your {streak}-day streak die! Just one dance!", Emoji: "😰"},
			{Message: "EMERGENCY: {name}'s {streak}-day streak needs saving! 🆘", Emoji: "🆘"},
		},
		TriggerCondition: "streak above 3 with less than 2 hours left in the day",
		CooldownHours:    2,
	},
	{
		Type: EncouragePartyNeedsYou,
		Templates: []Template{
			{Message: "{name}, your party is at {percent}% today. Be the hero! 🦸", Emoji: "🦸"},
			{Message: "The {partyName} crew needs you, {name}! {remaining} to go!", Emoji: "🤝"},
			{Message: "{name}! Don't let {partyName} down - check in now!", Emoji: "💪"},
		},
		TriggerCondition: "party is within 20% of full participation",
		CooldownHours:    6,
	},
	{
		Type: EncourageComeback,
		Templates: []Template{
			{Message: "We miss you, {name}! It's been {days} days. Come back? 🥺", Emoji: "🥺"},
			{Message: "{name}, the dance floor is lonely without you!", Emoji: "😢"},
			{Message: "Hey {name}! Ready for a fresh start? We're here for you! 🌟", Emoji: "🌟"},
		},
		TriggerCondition: "no check-in for 3 or more days",
		CooldownHours:    24,
	},
	{
		Type: EncourageCelebration,
		Templates: []Template{
			{Message: "🔥 {name} is ON FIRE! {streak} days straight!", Emoji: "🔥"},
			{Message: "UNSTOPPABLE! {name} just hit {streak} days! 👑", Emoji: "👑"},
			{Message: "{name} is a dancing machine! {streak} day streak! 🤖💃", Emoji: "🤖"},
		},
		TriggerCondition: "streak milestone (7, 14, 30, 60, 100 days)",
		CooldownHours:    168,
	},
	{
		Type: EncourageMilestone,
		Templates: []Template{
			{Message: "🎉 {name} just hit {xp} XP! What a legend!", Emoji: "🎉"},
			{Message: "Level up! {name} reached {xp} XP milestone! 🚀", Emoji: "🚀"},
			{Message: "{name} is crushing it! {xp} XP and counting! 💎", Emoji: "💎"},
		},
		TriggerCondition: "XP milestone (1000, 5000, 10000 ...)",
		CooldownHours:    168,
	},
	{
		Type: EncourageLeaderboardClimb,
		Templates: []Template{
			{Message: "{name} just climbed to #{rank} in {partyName}! 📈", Emoji: "📈"},
			{Message: "Watch out! {name} is coming for the top spot! Now #{rank}!", Emoji: "👀"},
			{Message: "{name} jumped to #{rank}! Only {toTop} XP to #1! 🎯", Emoji: "🎯"},
		},
		TriggerCondition: "moved up 2 or more spots in the party ranking",
		CooldownHours:    24,
	},
}

// TemplateGroupFor returns the group for t.
func TemplateGroupFor(t EncouragementType) (TemplateGroup, bool) {
	for _, g := range EncouragementTemplates {
		if g.Type == t {
			return g, true
		}
	}
	return TemplateGroup{}, false
}

// ValidEncouragementType accepts the built-in groups and custom.
func ValidEncouragementType(t EncouragementType) bool {
	if t == EncourageCustom {
		return true
	}
	_, ok := TemplateGroupFor(t)
	return ok
}

// Cooldown is the minimum gap between two messages of type t from the same sender to the same recipient.
func Cooldown(t EncouragementType) time.Duration {
	if g, ok := TemplateGroupFor(t); ok {
		return time.Duration(g.CooldownHours) * time.Hour
	}
	return CustomCooldownHours * time.Hour
}

// RandomTemplate picks one template of type t. A nil rnd uses the global source.
func RandomTemplate(t EncouragementType, rnd *rand.Rand) Template {
	g, ok := TemplateGroupFor(t)
	if !ok || len(g.Templates) == 0 {
		return FallbackTemplate
	}
	var i int
	if rnd != nil {
		i = rnd.Intn(len(g.Templates))
	} else {
		i = rand.Intn(len(g.Templates))
	}
	return g.Templates[i]
}

// FormatEncouragementMessage replaces every {key} with the string form of its value.
// Keys are applied one at a time in sorted order and values are not escaped.
func FormatEncouragementMessage(template string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := template
	for _, k := range keys {
		msg = strings.ReplaceAll(msg, "{"+k+"}", fmt.Sprint(params[k]))
	}
	return msg
}
