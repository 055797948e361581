package perf

import (
	"sort"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/daya-auto/carsale/internal/analytics"
	analytichttp "github.com/daya-auto/carsale/internal/analytics/http"
	"github.com/daya-auto/carsale/internal/inventory"
)

var benchNow = time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

var brands = map[string][]string{
	"Toyota": {"Aqua", "Prius", "Axio", "Vitz"},
	"Honda":  {"Fit", "Vezel", "Grace"},
	"Suzuki": {"Wagon R", "Alto", "Swift"},
	"Nissan": {"Leaf", "Note", "X-Trail"},
}

func fakeInventory(n int) []inventory.Vehicle {
	f := gofakeit.New(11)
	names := make([]string, 0, len(brands))
	for b := range brands {
		names = append(names, b)
	}
	sort.Strings(names)

	out := make([]inventory.Vehicle, n)
	for i := range out {
		brand := names[f.Number(0, len(names)-1)]
		models := brands[brand]
		cif := decimal.NewFromInt(int64(f.Number(20, 120)) * 100_000)
		selling := cif.Mul(decimal.NewFromFloat(f.Float64Range(0.95, 1.4))).Round(-3)
		v := inventory.Vehicle{
			ID:           int64(i + 1),
			Brand:        brand,
			Model:        models[f.Number(0, len(models)-1)],
			CIFValue:     cif,
			SellingPrice: selling,
			NetProfit:    selling.Sub(cif),
			Status:       inventory.StatusAvailable,
			CreatedAt:    f.DateRange(benchNow.AddDate(-1, 0, 0), benchNow),
		}
		if f.Number(1, 3) == 1 {
			sold := f.DateRange(benchNow.AddDate(-1, 0, 0), benchNow)
			v.Status, v.SoldAt = inventory.StatusSold, &sold
		}
		out[i] = v
	}
	return out
}

func BenchmarkAnalyticsCompute(b *testing.B) {
	vehicles := fakeInventory(5_000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analytics.Compute(vehicles, benchNow)
	}
}

func BenchmarkSalesChart(b *testing.B) {
	summary := analytics.Compute(fakeInventory(1_000), benchNow)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := analytichttp.SalesChart(summary); err != nil {
			b.Fatal(err)
		}
	}
}

// A cold analytics request recomputes the summary from the full inventory,
// so the computation alone must stay well inside the request timeout.
func TestAnalyticsComputeLatencyBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("latency check skipped in short mode")
	}
	vehicles := fakeInventory(10_000)
	samples := make([]time.Duration, 0, 20)
	for i := 0; i < 20; i++ {
		start := time.Now()
		analytics.Compute(vehicles, benchNow)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > time.Second {
		t.Fatalf("analytics compute regression: p95=%s threshold=1s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
