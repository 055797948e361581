package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/daya-auto/carsale/internal/inventory"
)

// VehicleSource returns every vehicle matching the filters, unpaginated.
type VehicleSource interface {
	Export(ctx context.Context, f inventory.Filters) ([]inventory.Vehicle, error)
}

// Service computes the analytics summary and keeps it cached.
type Service struct {
	source VehicleSource
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a vehicle source with a Cache helper. cache may be nil.
func NewService(source VehicleSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger.With(slog.String("module", "analytics")), now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Summary returns the cached snapshot, rebuilding it when the cache version
// moved. Concurrent rebuilds share one computation.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	month := s.now().UTC().Format("2006-01")
	cached, ver, ok, err := s.cache.Get(ctx, month)
	if err != nil {
		s.logger.Warn("analytics cache read", slog.Any("error", err))
		return s.Build(ctx)
	}
	if ok {
		return cached, nil
	}
	v, err, _ := s.group.Do(summaryKey(month, ver), func() (any, error) {
		sum, err := s.Build(ctx)
		if err != nil {
			return Summary{}, err
		}
		if err := s.cache.Put(ctx, month, ver, sum); err != nil {
			s.logger.Warn("analytics cache write", slog.Any("error", err))
		}
		return sum, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// Warm rebuilds the summary for the current cache version.
func (s *Service) Warm(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("bump analytics cache: %w", err)
	}
	_, err := s.Summary(ctx)
	return err
}

// Bump invalidates the cached summary.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Build computes the summary straight from the inventory.
func (s *Service) Build(ctx context.Context) (Summary, error) {
	vehicles, err := s.source.Export(ctx, inventory.Filters{})
	if err != nil {
		return Summary{}, fmt.Errorf("load vehicles: %w", err)
	}
	return Compute(vehicles, s.now()), nil
}

// Compute aggregates vehicles into a Summary as of now.
func Compute(vehicles []inventory.Vehicle, now time.Time) Summary {
	now = now.UTC()
	sum := Summary{
		TotalVehicles:   len(vehicles),
		InventoryValue:  decimal.Zero,
		PotentialProfit: decimal.Zero,
		AveragePrice:    decimal.Zero,
		SalesByMonth:    salesWindow(now),
		GeneratedAt:     now,
	}
	months := make(map[string]int, len(sum.SalesByMonth))
	for i, m := range sum.SalesByMonth {
		months[m.Month] = i
	}
	models := map[string]*ModelRevenue{}
	brands := map[string]*BrandMargin{}

	for _, v := range vehicles {
		sum.InventoryValue = sum.InventoryValue.Add(bookValue(v))
		sum.PotentialProfit = sum.PotentialProfit.Add(v.NetProfit)

		switch v.Status {
		case inventory.StatusReserved:
			sum.Status.Reserved++
		case inventory.StatusSold:
			sum.Status.Sold++
		default:
			sum.Status.Available++
		}

		if v.SoldAt != nil {
			if i, ok := months[v.SoldAt.UTC().Format("2006-01")]; ok {
				sum.SalesByMonth[i].Count++
				sum.SalesByMonth[i].Revenue = sum.SalesByMonth[i].Revenue.Add(v.SellingPrice)
			}
		}

		key := strings.ToLower(v.Brand + "\x00" + v.Model)
		m, ok := models[key]
		if !ok {
			m = &ModelRevenue{Brand: v.Brand, Model: v.Model, Revenue: decimal.Zero}
			models[key] = m
		}
		m.Count++
		m.Revenue = m.Revenue.Add(v.SellingPrice)

		brandKey := strings.ToLower(v.Brand)
		b, ok := brands[brandKey]
		if !ok {
			b = &BrandMargin{Brand: v.Brand, Revenue: decimal.Zero, NetProfit: decimal.Zero}
			brands[brandKey] = b
		}
		b.Count++
		b.Revenue = b.Revenue.Add(v.SellingPrice)
		b.NetProfit = b.NetProfit.Add(v.NetProfit)
	}

	if sum.TotalVehicles > 0 {
		sum.AveragePrice = sum.InventoryValue.Div(decimal.NewFromInt(int64(sum.TotalVehicles))).Round(2)
	}
	sum.TopModels = topModels(models)
	sum.BrandMargins = topMargins(brands)
	return sum
}

// bookValue is the price, falling back to purchase price and then CIF value.
func bookValue(v inventory.Vehicle) decimal.Decimal {
	for _, d := range []decimal.Decimal{v.Price, v.PurchasePrice, v.CIFValue} {
		if !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

func salesWindow(now time.Time) []MonthlySales {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]MonthlySales, SalesWindowMonths)
	for i := range out {
		m := first.AddDate(0, i-(SalesWindowMonths-1), 0)
		out[i] = MonthlySales{Month: m.Format("2006-01"), Label: m.Format("Jan 2006"), Revenue: decimal.Zero}
	}
	return out
}

func topModels(groups map[string]*ModelRevenue) []ModelRevenue {
	out := make([]ModelRevenue, 0, len(groups))
	for _, m := range groups {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Name() < out[j].Name()
	})
	if len(out) > TopLimit {
		out = out[:TopLimit]
	}
	return out
}

func topMargins(groups map[string]*BrandMargin) []BrandMargin {
	out := make([]BrandMargin, 0, len(groups))
	for _, b := range groups {
		if b.Revenue.IsZero() {
			b.Margin = decimal.Zero
		} else {
			b.Margin = b.NetProfit.Div(b.Revenue).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Margin.Cmp(out[j].Margin); c != 0 {
			return c > 0
		}
		return out[i].Brand < out[j].Brand
	})
	if len(out) > TopLimit {
		out = out[:TopLimit]
	}
	return out
}
