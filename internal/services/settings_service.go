package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"commission_backend/internal/config"
	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/pkg/apperrors"
)

const (
	defaultMaxRevisionsPerPurchase = 20
	maxRevisionsPerPurchaseCeiling = 100
)

// CommerceDefaults are the configured fallbacks for unset commerce settings.
type CommerceDefaults struct {
	PricePerRevision        decimal.Decimal
	ExtensionPrice          decimal.NullDecimal
	PinPackPrice            decimal.Decimal
	MaxRevisionsPerPurchase int
	IdempotencyTTL          time.Duration
}

// CommerceDefaultsFromConfig parses the commerce section of the configuration.
func CommerceDefaultsFromConfig(cfg *config.Config) (CommerceDefaults, error) {
	d := CommerceDefaults{
		MaxRevisionsPerPurchase: cfg.Commerce.MaxRevisionsPerPurchase,
		IdempotencyTTL:          time.Duration(cfg.Commerce.IdempotencyTTLHours) * time.Hour,
	}

	var err error
	if d.PricePerRevision, err = parsePrice(cfg.Commerce.PricePerRevision); err != nil {
		return d, fmt.Errorf("commerce.price_per_revision: %w", err)
	}
	if d.PinPackPrice, err = parsePrice(cfg.Commerce.PinPackPrice); err != nil {
		return d, fmt.Errorf("commerce.pin_pack_price: %w", err)
	}
	if cfg.Commerce.ExtensionPrice != "" {
		price, err := decimal.NewFromString(cfg.Commerce.ExtensionPrice)
		if err != nil {
			return d, fmt.Errorf("commerce.extension_price: %w", err)
		}
		d.ExtensionPrice = decimal.NewNullDecimal(price)
	}
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	return d, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// CommerceConfig is the fully resolved commerce configuration for one operation.
type CommerceConfig struct {
	PricePerRevision        decimal.Decimal     `json:"pricePerRevision"`
	ExtensionPrice          decimal.Decimal     `json:"extensionPrice"`
	MaxRevisionsPerPurchase int                 `json:"maxRevisionsPerPurchase"`
	PinPackPrice            decimal.Decimal     `json:"pinPackPrice"`
	PinPackOldPrice         decimal.NullDecimal `json:"pinPackOldPrice"`
	PinPackDiscountPercent  *int                `json:"pinPackDiscountPercent"`
}

// UpdateSettingsInput replaces the stored overrides. Null clears a value back to its default.
type UpdateSettingsInput struct {
	PricePerRevision        decimal.NullDecimal `json:"pricePerRevision"`
	ExtensionPrice          decimal.NullDecimal `json:"extensionPrice"`
	MaxRevisionsPerPurchase *int                `json:"maxRevisionsPerPurchase" validate:"omitempty,min=1,max=100"`
	PinPackPrice            decimal.NullDecimal `json:"pinPackPrice"`
	PinPackOldPrice         decimal.NullDecimal `json:"pinPackOldPrice"`
	PinPackDiscountPercent  *int                `json:"pinPackDiscountPercent" validate:"omitempty,min=0,max=100"`
}

type SettingsService interface {
	// Resolve merges stored overrides onto the defaults.
	Resolve(db *gorm.DB) (*CommerceConfig, error)
	GetSettings(ctx context.Context, db *gorm.DB) (*CommerceConfig, error)
	UpdateSettings(ctx context.Context, db *gorm.DB, caller Caller, input UpdateSettingsInput) (*CommerceConfig, error)
}

type settingsService struct {
	settingsRepo repositories.SettingsRepository
	defaults     CommerceDefaults
	now          func() time.Time
}

func NewSettingsService(settingsRepo repositories.SettingsRepository, defaults CommerceDefaults) SettingsService {
	return &settingsService{
		settingsRepo: settingsRepo,
		defaults:     defaults,
		now:          time.Now,
	}
}

func (s *settingsService) Resolve(db *gorm.DB) (*CommerceConfig, error) {
	stored, err := s.settingsRepo.GetSettings(db)
	if err != nil && !errors.Is(err, repositories.ErrSettingsNotFound) {
		return nil, err
	}
	return resolveCommerce(s.defaults, stored), nil
}

func resolveCommerce(d CommerceDefaults, stored *models.CommerceSettings) *CommerceConfig {
	if stored == nil {
		stored = &models.CommerceSettings{}
	}

	cfg := &CommerceConfig{
		PricePerRevision:        d.PricePerRevision,
		PinPackPrice:            d.PinPackPrice,
		MaxRevisionsPerPurchase: d.MaxRevisionsPerPurchase,
		PinPackOldPrice:         stored.PinPackOldPrice,
		PinPackDiscountPercent:  stored.PinPackDiscountPercent,
	}

	if stored.PricePerRevision.Valid {
		cfg.PricePerRevision = stored.PricePerRevision.Decimal
	}
	if stored.PinPackPrice.Valid {
		cfg.PinPackPrice = stored.PinPackPrice.Decimal
	}
	if stored.MaxRevisionsPerPurchase != nil {
		cfg.MaxRevisionsPerPurchase = *stored.MaxRevisionsPerPurchase
	}
	if cfg.MaxRevisionsPerPurchase < 1 || cfg.MaxRevisionsPerPurchase > maxRevisionsPerPurchaseCeiling {
		cfg.MaxRevisionsPerPurchase = defaultMaxRevisionsPerPurchase
	}

	// The extension price falls back to a single revision's price.
	switch {
	case stored.ExtensionPrice.Valid:
		cfg.ExtensionPrice = stored.ExtensionPrice.Decimal
	case d.ExtensionPrice.Valid:
		cfg.ExtensionPrice = d.ExtensionPrice.Decimal
	default:
		cfg.ExtensionPrice = cfg.PricePerRevision
	}

	return cfg
}

func (s *settingsService) GetSettings(ctx context.Context, db *gorm.DB) (*CommerceConfig, error) {
	cfg, err := s.Resolve(db)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return cfg, nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, db *gorm.DB, caller Caller, input UpdateSettingsInput) (*CommerceConfig, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.ErrInsufficientPermissions
	}

	fields := map[string]string{}
	for name, price := range map[string]decimal.NullDecimal{
		"pricePerRevision": input.PricePerRevision,
		"extensionPrice":   input.ExtensionPrice,
		"pinPackPrice":     input.PinPackPrice,
		"pinPackOldPrice":  input.PinPackOldPrice,
	} {
		if price.Valid && price.Decimal.IsNegative() {
			fields[name] = "Must not be negative"
		}
	}
	if m := input.MaxRevisionsPerPurchase; m != nil && (*m < 1 || *m > maxRevisionsPerPurchaseCeiling) {
		fields["maxRevisionsPerPurchase"] = "Must be between 1 and 100"
	}
	if p := input.PinPackDiscountPercent; p != nil && (*p < 0 || *p > 100) {
		fields["pinPackDiscountPercent"] = "Must be between 0 and 100"
	}
	if len(fields) > 0 {
		return nil, apperrors.ValidationError(fields)
	}

	updatedBy := caller.UserID
	settings := &models.CommerceSettings{
		PricePerRevision:        input.PricePerRevision,
		ExtensionPrice:          input.ExtensionPrice,
		MaxRevisionsPerPurchase: input.MaxRevisionsPerPurchase,
		PinPackPrice:            input.PinPackPrice,
		PinPackOldPrice:         input.PinPackOldPrice,
		PinPackDiscountPercent:  input.PinPackDiscountPercent,
		UpdatedBy:               &updatedBy,
		UpdatedAt:               s.now(),
	}
	if err := s.settingsRepo.SaveSettings(db, settings); err != nil {
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctx, "commerce settings updated", "admin_id", caller.UserID)
	return resolveCommerce(s.defaults, settings), nil
}
