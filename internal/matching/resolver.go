// Package matching подбирает исполнителей под локацию клиента.
package matching

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Leganyst/detailer-scheduling/internal/geo"
	"github.com/Leganyst/detailer-scheduling/internal/locality"
	"github.com/Leganyst/detailer-scheduling/internal/model"
)

// DefaultRadiusKm — радиус поиска по координатам, покрывает город с пригородами.
const DefaultRadiusKm = 30.0

// Tier — уровень подбора, на котором нашлись исполнители.
type Tier string

const (
	TierNone       Tier = ""
	TierExact      Tier = "exact"
	TierNormalized Tier = "normalized"
	TierRadius     Tier = "radius"
)

// DetailerSource — выборки исполнителей, нужные резолверу.
type DetailerSource interface {
	ListEligibleByCity(ctx context.Context, country, city string, available *bool) ([]model.Detailer, error)
	ListEligibleByCountry(ctx context.Context, country string, available *bool) ([]model.Detailer, error)
	ListEligibleWithCoordinates(ctx context.Context, country string, available *bool) ([]model.Detailer, error)
}

// Query — локация клиента. Available == nil — без фильтра по доступности.
type Query struct {
	Country   string
	City      string
	Latitude  *float64
	Longitude *float64
	Available *bool
}

type Result struct {
	Detailers []model.Detailer
	Tier      Tier
}

type Resolver struct {
	source   DetailerSource
	aliases  *locality.Table
	radiusKm float64
	log      *zap.Logger
}

func NewResolver(source DetailerSource, aliases *locality.Table, radiusKm float64, log *zap.Logger) *Resolver {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if aliases == nil {
		aliases = locality.Default()
	}
	return &Resolver{source: source, aliases: aliases, radiusKm: radiusKm, log: log}
}

// Resolve перебирает уровни по порядку и останавливается на первом непустом:
//  1. точное совпадение страны и города;
//  2. совпадение нормализованных городов (район -> город);
//  3. радиус от координат клиента, если они переданы.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	country := strings.TrimSpace(q.Country)
	city := strings.TrimSpace(q.City)
	if country == "" || city == "" {
		return Result{Tier: TierNone}, nil
	}

	exact, err := r.source.ListEligibleByCity(ctx, country, city, q.Available)
	if err != nil {
		return Result{}, fmt.Errorf("exact match: %w", err)
	}
	if len(exact) > 0 {
		return r.found(exact, TierExact, country, city), nil
	}

	normalized, err := r.byNormalizedCity(ctx, country, city, q.Available)
	if err != nil {
		return Result{}, fmt.Errorf("normalized match: %w", err)
	}
	if len(normalized) > 0 {
		return r.found(normalized, TierNormalized, country, city), nil
	}

	if q.Latitude != nil && q.Longitude != nil {
		nearby, err := r.withinRadius(ctx, country, *q.Latitude, *q.Longitude, q.Available)
		if err != nil {
			return Result{}, fmt.Errorf("radius match: %w", err)
		}
		if len(nearby) > 0 {
			return r.found(nearby, TierRadius, country, city), nil
		}
	}

	r.log.Info("no detailers for location",
		zap.String("country", country),
		zap.String("city", city),
	)
	return Result{Tier: TierNone}, nil
}

// byNormalizedCity сравнивает нормализованный город клиента с нормализованным
// городом каждого исполнителя: "Ballentree Village" и "Dublin" дают один ключ.
func (r *Resolver) byNormalizedCity(ctx context.Context, country, city string, available *bool) ([]model.Detailer, error) {
	target := r.aliases.Normalize(city)

	candidates, err := r.source.ListEligibleByCountry(ctx, country, available)
	if err != nil {
		return nil, err
	}

	var out []model.Detailer
	for _, d := range candidates {
		if r.aliases.Normalize(d.City) == target {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *Resolver) withinRadius(ctx context.Context, country string, lat, lng float64, available *bool) ([]model.Detailer, error) {
	candidates, err := r.source.ListEligibleWithCoordinates(ctx, country, available)
	if err != nil {
		return nil, err
	}

	var out []model.Detailer
	for _, d := range candidates {
		if !d.HasCoordinates() {
			continue
		}
		if geo.DistanceKm(lat, lng, *d.Latitude, *d.Longitude) <= r.radiusKm {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *Resolver) found(detailers []model.Detailer, tier Tier, country, city string) Result {
	r.log.Debug("detailers resolved",
		zap.String("tier", string(tier)),
		zap.String("country", country),
		zap.String("city", city),
		zap.Int("count", len(detailers)),
	)
	return Result{Detailers: detailers, Tier: tier}
}
