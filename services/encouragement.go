package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gorm.io/gorm"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
	"github.com/danz-app/danz/utils"
)

const maxCustomMessage = 280

// SendInput is one encouragement from a party member to another.
type SendInput struct {
	FromUserID    uint                    `json:"-"`
	PartyID       uint                    `json:"-"`
	ToUserID      uint                    `json:"to_user_id"`
	Type          rules.EncouragementType `json:"type"`
	Params        map[string]any          `json:"params"`
	CustomMessage string                  `json:"custom_message"`
}

// EncouragementService renders and delivers nudges between party members.
type EncouragementService struct {
	db   *gorm.DB
	opts Options
	mu   sync.Mutex
}

// NewEncouragementService creates an encouragement service.
func NewEncouragementService(db *gorm.DB, opts ...Option) *EncouragementService {
	return &EncouragementService{db: db, opts: newOptions(opts)}
}

func cooldownKey(from, to uint, t rules.EncouragementType) string {
	return fmt.Sprintf("encourage:cooldown:%d:%d:%s", from, to, t)
}

// Send renders and stores a message. Each (sender, recipient, type) is rate limited by the type's cooldown.
func (s *EncouragementService) Send(ctx context.Context, in SendInput) (*models.EncouragementMessage, error) {
	if !rules.ValidEncouragementType(in.Type) {
		return nil, fmt.Errorf("%w: unknown encouragement type %q", ErrInvalidInput, in.Type)
	}
	if in.ToUserID == 0 || in.ToUserID == in.FromUserID {
		return nil, fmt.Errorf("%w: pick another member", ErrInvalidInput)
	}
	db := s.db.WithContext(ctx)
	party, err := loadActiveParty(db, in.PartyID)
	if err != nil {
		return nil, err
	}
	if _, err := findMember(db, in.PartyID, in.FromUserID); err != nil {
		return nil, err
	}
	target, err := findMember(db, in.PartyID, in.ToUserID)
	if err != nil {
		return nil, err
	}

	var text, emoji string
	if in.Type == rules.EncourageCustom {
		text = utils.SanitizeText(in.CustomMessage, maxCustomMessage)
		if text == "" {
			return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
		}
		emoji = "💬"
	} else {
		params, err := s.autoParams(db, party, target)
		if err != nil {
			return nil, err
		}
		for k, v := range in.Params {
			if _, set := params[k]; set {
				continue
			}
			if str, ok := v.(string); ok {
				v = utils.SanitizeText(str, 64)
			}
			params[k] = v
		}
		s.mu.Lock()
		tpl := rules.RandomTemplate(in.Type, s.opts.Rand)
		s.mu.Unlock()
		text = rules.FormatEncouragementMessage(tpl.Message, params)
		emoji = tpl.Emoji
	}

	key := cooldownKey(in.FromUserID, in.ToUserID, in.Type)
	if !utils.TryAcquire(ctx, key, rules.Cooldown(in.Type)) {
		return nil, ErrCooldown
	}
	from, partyID := in.FromUserID, in.PartyID
	msg := &models.EncouragementMessage{
		Type:       string(in.Type),
		FromUserID: &from,
		ToUserID:   in.ToUserID,
		PartyID:    &partyID,
		Message:    text,
		Emoji:      emoji,
		SentVia:    "in_app",
		SentAt:     s.opts.now(),
	}
	if err := db.Create(msg).Error; err != nil {
		utils.Release(context.Background(), key)
		return nil, fmt.Errorf("store encouragement: %w", err)
	}
	utils.Sugar.Infow("encouragement sent", "from", in.FromUserID, "to", in.ToUserID, "party_id", in.PartyID, "type", in.Type)
	return msg, nil
}

// autoParams fills the template placeholders from the recipient and party state.
func (s *EncouragementService) autoParams(db *gorm.DB, party *models.Party, target *models.PartyMember) (map[string]any, error) {
	var user models.User
	if err := db.First(&user, target.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var members []models.PartyMember
	if err := db.Where("party_id = ?", party.ID).
		Order("total_contributions desc, id").Find(&members).Error; err != nil {
		return nil, err
	}
	active, rank := 0, 0
	var top int64
	for i, m := range members {
		if m.IsActiveToday {
			active++
		}
		if i == 0 {
			top = m.TotalContributions
		}
		if m.UserID == target.UserID {
			rank = i + 1
		}
	}
	percent := 0
	if len(members) > 0 {
		percent = active * 100 / len(members)
	}

	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	if name == "" {
		name = "friend"
	}
	today := s.opts.today()
	days := 0
	if user.LastCheckinDay != "" {
		days = rules.DaysBetween(user.LastCheckinDay, today)
	}
	return map[string]any{
		"name":      name,
		"streak":    rules.EffectiveStreak(user.CurrentStreak, user.LastCheckinDay, today),
		"partyName": party.Name,
		"percent":   percent,
		"remaining": len(members) - active,
		"xp":        user.XP,
		"days":      days,
		"rank":      strconv.Itoa(rank),
		"toTop":     top - target.TotalContributions,
	}, nil
}

// Inbox pages through messages addressed to userID, newest first.
func (s *EncouragementService) Inbox(ctx context.Context, userID uint, unreadOnly bool, page, size int) ([]models.EncouragementMessage, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.EncouragementMessage{}).Where("to_user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count inbox: %w", err)
	}
	var msgs []models.EncouragementMessage
	if err := q.Order("sent_at desc, id desc").Offset((page - 1) * size).Limit(size).Find(&msgs).Error; err != nil {
		return nil, 0, fmt.Errorf("list inbox: %w", err)
	}
	return msgs, total, nil
}

// MarkRead flags one of the user's messages as read.
func (s *EncouragementService) MarkRead(ctx context.Context, userID, messageID uint) error {
	var msg models.EncouragementMessage
	err := s.db.WithContext(ctx).Where("id = ? AND to_user_id = ?", messageID, userID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg.IsRead {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&msg).Update("is_read", true).Error; err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
