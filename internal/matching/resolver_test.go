package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Leganyst/detailer-scheduling/internal/db"
	"github.com/Leganyst/detailer-scheduling/internal/locality"
	"github.com/Leganyst/detailer-scheduling/internal/model"
	"github.com/Leganyst/detailer-scheduling/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, gdb *gorm.DB, d model.Detailer) model.Detailer {
	t.Helper()
	if d.Country == "" {
		d.Country = "Ireland"
	}
	d.IsActive = true
	d.IsVerified = true
	if err := gdb.Create(&d).Error; err != nil {
		t.Fatalf("seed detailer: %v", err)
	}
	return d
}

func newResolver(gdb *gorm.DB, radius float64) *Resolver {
	return NewResolver(repository.NewGormDetailerRepository(gdb), locality.Default(), radius, zap.NewNop())
}

func TestResolve_ExactTier(t *testing.T) {
	gdb := openTestDB(t)
	d := seed(t, gdb, model.Detailer{DisplayName: "d", City: "Dublin", IsAvailable: true})

	res, err := newResolver(gdb, 0).Resolve(context.Background(), Query{Country: "  ireland ", City: " DUBLIN "})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierExact {
		t.Fatalf("expected exact tier, got %q", res.Tier)
	}
	if len(res.Detailers) != 1 || res.Detailers[0].ID != d.ID {
		t.Fatalf("unexpected detailers %+v", res.Detailers)
	}
}

func TestResolve_NormalizedTier_DetailerInSuburb(t *testing.T) {
	gdb := openTestDB(t)
	d := seed(t, gdb, model.Detailer{DisplayName: "d", City: "Ballentree Village"})

	res, err := newResolver(gdb, 0).Resolve(context.Background(), Query{Country: "Ireland", City: "Dublin"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierNormalized {
		t.Fatalf("expected normalized tier, got %q", res.Tier)
	}
	if len(res.Detailers) != 1 || res.Detailers[0].ID != d.ID {
		t.Fatalf("unexpected detailers %+v", res.Detailers)
	}
}

func TestResolve_NormalizedTier_ClientInSuburb(t *testing.T) {
	gdb := openTestDB(t)
	d := seed(t, gdb, model.Detailer{DisplayName: "d", City: "Dublin"})

	res, err := newResolver(gdb, 0).Resolve(context.Background(), Query{Country: "Ireland", City: "Rathmines"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierNormalized || len(res.Detailers) != 1 || res.Detailers[0].ID != d.ID {
		t.Fatalf("expected dublin detailer via normalized tier, got %q %+v", res.Tier, res.Detailers)
	}
}

func TestResolve_RadiusTier(t *testing.T) {
	gdb := openTestDB(t)

	// ~10 км по широте друг от друга, города не совпадают с запросом
	near := seed(t, gdb, model.Detailer{DisplayName: "near", City: "Maynooth", Latitude: ptr(53.3811), Longitude: ptr(-6.5918)})
	far := seed(t, gdb, model.Detailer{DisplayName: "far", City: "Kilcock", Latitude: ptr(53.3811 + 0.0899), Longitude: ptr(-6.5918)})

	q := Query{Country: "Ireland", City: "Somewhere", Latitude: ptr(53.3811), Longitude: ptr(-6.5918)}

	res, err := newResolver(gdb, 30).Resolve(context.Background(), q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierRadius || len(res.Detailers) != 2 {
		t.Fatalf("expected both detailers within 30km, got %q %+v", res.Tier, res.Detailers)
	}

	res, err = newResolver(gdb, 5).Resolve(context.Background(), q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Detailers) != 1 || res.Detailers[0].ID != near.ID {
		t.Fatalf("expected only near detailer within 5km, got %+v (far=%s)", res.Detailers, far.ID)
	}
}

func TestResolve_RadiusSkippedWithoutCoordinates(t *testing.T) {
	gdb := openTestDB(t)
	seed(t, gdb, model.Detailer{DisplayName: "d", City: "Maynooth", Latitude: ptr(53.3811), Longitude: ptr(-6.5918)})

	res, err := newResolver(gdb, 30).Resolve(context.Background(), Query{Country: "Ireland", City: "Somewhere", Latitude: ptr(53.38)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierNone || len(res.Detailers) != 0 {
		t.Fatalf("expected no match without longitude, got %q", res.Tier)
	}
}

func TestResolve_EmptyLocationShortCircuits(t *testing.T) {
	gdb := openTestDB(t)
	seed(t, gdb, model.Detailer{DisplayName: "d", City: "Dublin"})

	for _, q := range []Query{{Country: "", City: "Dublin"}, {Country: "Ireland", City: "   "}} {
		res, err := newResolver(gdb, 0).Resolve(context.Background(), q)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.Tier != TierNone || len(res.Detailers) != 0 {
			t.Fatalf("expected empty result for %+v", q)
		}
	}
}

func TestResolve_AvailabilityFilter(t *testing.T) {
	gdb := openTestDB(t)
	seed(t, gdb, model.Detailer{DisplayName: "off", City: "Dublin", IsAvailable: false})

	r := newResolver(gdb, 0)

	res, err := r.Resolve(context.Background(), Query{Country: "Ireland", City: "Dublin"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Detailers) != 1 {
		t.Fatalf("expected unavailable detailer to be visible without filter")
	}

	res, err = r.Resolve(context.Background(), Query{Country: "Ireland", City: "Dublin", Available: ptr(true)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierNone {
		t.Fatalf("expected no match with availability filter, got %q", res.Tier)
	}
}

type failingSource struct{}

var errStore = errors.New("store down")

func (failingSource) ListEligibleByCity(context.Context, string, string, *bool) ([]model.Detailer, error) {
	return nil, errStore
}

func (failingSource) ListEligibleByCountry(context.Context, string, *bool) ([]model.Detailer, error) {
	return nil, errStore
}

func (failingSource) ListEligibleWithCoordinates(context.Context, string, *bool) ([]model.Detailer, error) {
	return nil, errStore
}

func TestResolve_PropagatesStoreError(t *testing.T) {
	r := NewResolver(failingSource{}, nil, 0, zap.NewNop())

	_, err := r.Resolve(context.Background(), Query{Country: "Ireland", City: "Dublin"})
	if !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}
