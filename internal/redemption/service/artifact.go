package service

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/smallbiznis/loyalty/internal/redemption/domain"
)

const defaultVendorTag = "default"

// issueArtifact builds the payload for one redemption. Codes are ULIDs:
// a millisecond timestamp plus monotonic randomness, uppercase alphanumeric.
func issueArtifact(cfg config.RedemptionConfig, item catalogdomain.Item, key string, now time.Time) domain.Payload {
	payload := domain.Payload{
		IdempotencyKey: key,
		RedeemedAt:     now,
	}

	switch item.Type {
	case catalogdomain.ItemTypeCoupon:
		days := item.ValidDays(cfg.CouponDefaultValidDays)
		expiresAt := now.AddDate(0, 0, days)
		payload.Code = newCode(cfg.CouponCodePrefix, now)
		payload.ValidDays = days
		payload.ExpiresAt = &expiresAt
	case catalogdomain.ItemTypeVirtual:
		payload.Code = newCode(cfg.VirtualCodePrefix, now)
		payload.Vendor = vendorTag(item.Vendor(), cfg.VirtualDefaultVendor)
	}
	return payload
}

func newCode(prefix string, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return strings.ToUpper(strings.TrimSpace(prefix)) + id.String()
}

func vendorTag(vendor, fallback string) string {
	if tag := slug.Make(vendor); tag != "" {
		return tag
	}
	if tag := slug.Make(fallback); tag != "" {
		return tag
	}
	return defaultVendorTag
}
