package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/resumeforge/resumeforge/internal/config"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	geoCacheKeyPrefix = "region:geoip:"
	geoCacheTTL       = 6 * time.Hour
)

type Resolver struct {
	log             *zap.Logger
	billing         regiondomain.BillingAddressLookup
	geoip           regiondomain.GeoIPLookup
	cache           *redis.Client
	defaultOverride regiondomain.Region
}

type ResolverParam struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Billing regiondomain.BillingAddressLookup `optional:"true"`
	GeoIP   regiondomain.GeoIPLookup          `optional:"true"`
	Cache   *redis.Client                     `optional:"true"`
}

func NewResolver(p ResolverParam) regiondomain.Resolver {
	var override regiondomain.Region
	switch regiondomain.Region(p.Cfg.DefaultRegionOverride) {
	case regiondomain.RegionGlobal, regiondomain.RegionIndia:
		override = regiondomain.Region(p.Cfg.DefaultRegionOverride)
	}
	return &Resolver{
		log:             p.Log.Named("region.resolver"),
		billing:         p.Billing,
		geoip:           p.GeoIP,
		cache:           p.Cache,
		defaultOverride: override,
	}
}

// Resolve applies billing-address precedence over geolocation over the
// GLOBAL/USD default. Failures never reach the caller.
func (r *Resolver) Resolve(ctx context.Context, userID snowflake.ID, clientIP string) regiondomain.Resolution {
	if country, ok := r.billingCountry(ctx, userID); ok {
		region := regiondomain.ForCountry(country)
		return regiondomain.Resolution{
			Region:   region,
			Currency: regiondomain.CurrencyFor(region),
			Source:   regiondomain.SourceBillingAddress,
		}
	}

	if country, ok := r.geoCountry(ctx, clientIP); ok {
		region := regiondomain.ForCountry(country)
		return regiondomain.Resolution{
			Region:   region,
			Currency: regiondomain.CurrencyFor(region),
			Source:   regiondomain.SourceGeoIP,
		}
	}

	if r.defaultOverride != "" {
		return regiondomain.Resolution{
			Region:   r.defaultOverride,
			Currency: regiondomain.CurrencyFor(r.defaultOverride),
			Source:   regiondomain.SourceDefault,
		}
	}
	return regiondomain.DefaultResolution()
}

func (r *Resolver) billingCountry(ctx context.Context, userID snowflake.ID) (string, bool) {
	if r.billing == nil || userID == 0 {
		return "", false
	}
	country, err := r.billing.CountryForUser(ctx, userID)
	if err != nil {
		if err != regiondomain.ErrNoBillingAddress {
			r.log.Warn("billing address lookup failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		return "", false
	}
	country = strings.TrimSpace(country)
	return country, country != ""
}

func (r *Resolver) geoCountry(ctx context.Context, clientIP string) (string, bool) {
	clientIP = strings.TrimSpace(clientIP)
	if r.geoip == nil || clientIP == "" {
		return "", false
	}

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, geoCacheKeyPrefix+clientIP).Result(); err == nil && cached != "" {
			return cached, true
		}
	}

	country, err := r.geoip.CountryForIP(ctx, clientIP)
	if err != nil {
		r.log.Warn("geoip lookup failed, using default region",
			zap.String("client_ip", clientIP),
			zap.Error(err),
		)
		return "", false
	}
	country = strings.TrimSpace(country)
	if country == "" {
		return "", false
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, geoCacheKeyPrefix+clientIP, country, geoCacheTTL).Err(); err != nil {
			r.log.Warn("geoip cache write failed", zap.Error(err))
		}
	}

	return country, true
}
