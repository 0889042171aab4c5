package service

import (
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestIssueCouponArtifact(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	item := catalogdomain.Item{Type: catalogdomain.ItemTypeCoupon, Attrs: datatypes.JSONMap{"valid_days": float64(10)}}

	payload := issueArtifact(config.DefaultRedemptionConfig(), item, "k1", now)
	assert.Equal(t, "k1", payload.IdempotencyKey)
	assert.True(t, payload.RedeemedAt.Equal(now))
	assert.Equal(t, 10, payload.ValidDays)
	require.NotNil(t, payload.ExpiresAt)
	assert.True(t, payload.ExpiresAt.Equal(now.AddDate(0, 0, 10)))
	assert.Regexp(t, `^CPN[0-9A-Z]{26}$`, payload.Code)
	assert.Empty(t, payload.Vendor)
}

func TestIssueCouponDefaultsValidity(t *testing.T) {
	now := time.Now().UTC()
	item := catalogdomain.Item{Type: catalogdomain.ItemTypeCoupon, Attrs: datatypes.JSONMap{}}

	payload := issueArtifact(config.DefaultRedemptionConfig(), item, "k", now)
	assert.Equal(t, 30, payload.ValidDays)
}

func TestIssueVirtualArtifact(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.DefaultRedemptionConfig()

	withVendor := issueArtifact(cfg, catalogdomain.Item{Type: catalogdomain.ItemTypeVirtual, Attrs: datatypes.JSONMap{"vendor": "Steam Store"}}, "k", now)
	assert.Equal(t, "steam-store", withVendor.Vendor)
	assert.Regexp(t, `^VRT[0-9A-Z]{26}$`, withVendor.Code)
	assert.Nil(t, withVendor.ExpiresAt)

	fallback := issueArtifact(cfg, catalogdomain.Item{Type: catalogdomain.ItemTypeVirtual, Attrs: datatypes.JSONMap{}}, "k", now)
	assert.Equal(t, "default", fallback.Vendor)
}

func TestIssuePhysicalHasNoArtifact(t *testing.T) {
	payload := issueArtifact(config.DefaultRedemptionConfig(), catalogdomain.Item{Type: catalogdomain.ItemTypePhysical}, "k", time.Now().UTC())
	assert.Empty(t, payload.Code)
	assert.Zero(t, payload.ValidDays)
	assert.Nil(t, payload.ExpiresAt)
}

func TestCodesAreUniqueWithinOneInstant(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		code := newCode("CPN", now)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}
