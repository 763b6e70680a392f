package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/utils"
)

// LinkingService attaches extra identities (wallets, emails, ...) to an account.
type LinkingService struct {
	db   *gorm.DB
	opts Options
}

// NewLinkingService creates a linking service.
func NewLinkingService(db *gorm.DB, opts ...Option) *LinkingService {
	return &LinkingService{db: db, opts: newOptions(opts)}
}

func validProvider(p string) bool {
	switch p {
	case models.ProviderFarcaster, models.ProviderWallet, models.ProviderEmail, models.ProviderPrivy:
		return true
	}
	return false
}

// GenerateLinkToken issues a single-use "<id>.<secret>" token for linking targetProvider to userID.
func (s *LinkingService) GenerateLinkToken(ctx context.Context, userID uint, targetProvider string) (string, *models.LinkingToken, error) {
	if !validProvider(targetProvider) {
		return "", nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, targetProvider)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	if n == 0 {
		return "", nil, ErrUserNotFound
	}
	secret, err := utils.NewSecret(24)
	if err != nil {
		return "", nil, fmt.Errorf("generate secret: %w", err)
	}
	hash, err := utils.HashSecret(secret)
	if err != nil {
		return "", nil, fmt.Errorf("hash secret: %w", err)
	}
	now := s.opts.now()
	tok := &models.LinkingToken{
		ID:             uuid.NewString(),
		UserID:         userID,
		TargetProvider: targetProvider,
		SecretHash:     hash,
		ExpiresAt:      now.Add(s.opts.LinkTokenTTL),
		CreatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(tok).Error; err != nil {
		return "", nil, fmt.Errorf("store linking token: %w", err)
	}
	return tok.ID + "." + secret, tok, nil
}

// ValidateLinkToken spends token and links (provider, providerID) to the user who issued it.
// Re-linking an identity the user already owns succeeds without a new row.
func (s *LinkingService) ValidateLinkToken(ctx context.Context, token, provider, providerID string, meta models.ProviderMetadata) (*models.AuthProvider, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrLinkTokenInvalid
	}
	providerID = strings.TrimSpace(providerID)
	if !validProvider(provider) || providerID == "" {
		return nil, fmt.Errorf("%w: provider and provider_id are required", ErrInvalidInput)
	}
	if provider == models.ProviderEmail {
		providerID = strings.ToLower(providerID)
	}
	now := s.opts.now()

	var linked models.AuthProvider
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tok models.LinkingToken
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&tok).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLinkTokenInvalid
			}
			return err
		}
		if tok.UsedAt != nil || tok.TargetProvider != provider || !utils.CheckSecret(tok.SecretHash, secret) {
			return ErrLinkTokenInvalid
		}
		if !now.Before(tok.ExpiresAt) {
			return ErrLinkTokenExpired
		}

		res := tx.Model(&models.LinkingToken{}).Where("id = ? AND used_at IS NULL", tok.ID).Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLinkTokenInvalid
		}

		err := tx.Where("provider = ? AND provider_id = ?", provider, providerID).First(&linked).Error
		if err == nil {
			if linked.UserID != tok.UserID {
				return ErrIdentityTaken
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if provider == models.ProviderFarcaster {
			var n int64
			if err := tx.Model(&models.AuthProvider{}).
				Where("user_id = ? AND provider = ?", tok.UserID, models.ProviderFarcaster).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: account already has a Farcaster identity", ErrInvalidInput)
			}
		}

		meta.Username = utils.SanitizeText(meta.Username, 64)
		meta.DisplayName = utils.SanitizeText(meta.DisplayName, 128)
		linked = models.AuthProvider{
			UserID:     tok.UserID,
			Provider:   provider,
			ProviderID: providerID,
			Metadata:   datatypes.NewJSONType(meta),
			LinkedAt:   now,
		}
		if err := tx.Create(&linked).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrIdentityTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore("validate linking token", err)
	}
	utils.Sugar.Infow("identity linked", "user_id", linked.UserID, "provider", provider)
	return &linked, nil
}

// Unlink removes a non-primary identity from userID.
func (s *LinkingService) Unlink(ctx context.Context, userID uint, provider, providerID string) error {
	var row models.AuthProvider
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND provider_id = ?", userID, provider, providerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProviderNotFound
	}
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}
	if row.IsPrimary {
		return ErrCannotUnlinkPrimary
	}
	if err := s.db.WithContext(ctx).Delete(&row).Error; err != nil {
		return fmt.Errorf("unlink provider: %w", err)
	}
	return nil
}

// Providers lists the identities linked to userID, primary first.
func (s *LinkingService) Providers(ctx context.Context, userID uint) ([]models.AuthProvider, error) {
	var rows []models.AuthProvider
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_primary desc, linked_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return rows, nil
}
