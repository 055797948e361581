package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/inventory"
)

type stubSource struct {
	mu       sync.Mutex
	vehicles []inventory.Vehicle
	calls    atomic.Int32
	gate     chan struct{}
}

func (s *stubSource) Export(ctx context.Context, f inventory.Filters) ([]inventory.Vehicle, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Vehicle(nil), s.vehicles...), nil
}

var now = time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func at(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func fixture() []inventory.Vehicle {
	return []inventory.Vehicle{
		{Brand: "Toyota", Model: "Aqua", Price: d(2_000_000), SellingPrice: d(3_000_000), NetProfit: d(600_000), Status: inventory.StatusSold, SoldAt: at(2025, 6, 3)},
		{Brand: "Toyota", Model: "Aqua", PurchasePrice: d(2_200_000), SellingPrice: d(3_200_000), NetProfit: d(400_000), Status: inventory.StatusSold, SoldAt: at(2025, 4, 11)},
		{Brand: "Honda", Model: "Vezel", CIFValue: d(4_000_000), SellingPrice: d(5_000_000), NetProfit: d(1_000_000), Status: inventory.StatusReserved},
		{Brand: "Nissan", Model: "Leaf", Status: inventory.StatusAvailable},
		// sold before the window opens
		{Brand: "Suzuki", Model: "Alto", Price: d(1_000_000), SellingPrice: d(1_500_000), NetProfit: d(100_000), Status: inventory.StatusSold, SoldAt: at(2024, 12, 31)},
	}
}

func TestComputeSummary(t *testing.T) {
	s := Compute(fixture(), now)

	assert.Equal(t, 5, s.TotalVehicles)
	assert.True(t, d(9_200_000).Equal(s.InventoryValue), s.InventoryValue.String())
	assert.True(t, d(2_100_000).Equal(s.PotentialProfit))
	assert.True(t, d(1_840_000).Equal(s.AveragePrice))
	assert.Equal(t, StatusCounts{Available: 1, Reserved: 1, Sold: 3}, s.Status)

	require.Len(t, s.SalesByMonth, SalesWindowMonths)
	assert.Equal(t, "2025-01", s.SalesByMonth[0].Month)
	assert.Equal(t, "Jun 2025", s.SalesByMonth[5].Label)
	assert.Equal(t, 1, s.SalesByMonth[5].Count)
	assert.True(t, d(3_000_000).Equal(s.SalesByMonth[5].Revenue))
	assert.Equal(t, 1, s.SalesByMonth[3].Count)
	total := 0
	for _, m := range s.SalesByMonth {
		total += m.Count
	}
	assert.Equal(t, 2, total)

	require.NotEmpty(t, s.TopModels)
	assert.Equal(t, "Toyota Aqua", s.TopModels[0].Name())
	assert.Equal(t, 2, s.TopModels[0].Count)
	assert.True(t, d(6_200_000).Equal(s.TopModels[0].Revenue))

	require.NotEmpty(t, s.BrandMargins)
	assert.Equal(t, "Honda", s.BrandMargins[0].Brand)
	assert.True(t, d(20).Equal(s.BrandMargins[0].Margin))
	for _, b := range s.BrandMargins {
		if b.Brand == "Nissan" {
			assert.True(t, b.Margin.IsZero())
		}
	}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, now)
	assert.Zero(t, s.TotalVehicles)
	assert.True(t, s.AveragePrice.IsZero())
	assert.Len(t, s.SalesByMonth, SalesWindowMonths)
	assert.Empty(t, s.TopModels)
}

func TestTopModelsCapped(t *testing.T) {
	var vehicles []inventory.Vehicle
	for i, model := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		vehicles = append(vehicles, inventory.Vehicle{Brand: "Mazda", Model: model, SellingPrice: d(int64(i+1) * 1000)})
	}
	s := Compute(vehicles, now)
	require.Len(t, s.TopModels, TopLimit)
	assert.Equal(t, "G", s.TopModels[0].Model)
	assert.Equal(t, "C", s.TopModels[TopLimit-1].Model)
}

func newTestService(t *testing.T, source VehicleSource) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(source, NewCache(client, time.Minute), nil)
	svc.WithNow(func() time.Time { return now })
	return svc, mr
}

func TestSummaryCachesUntilBump(t *testing.T) {
	source := &stubSource{vehicles: fixture()}
	svc, mr := newTestService(t, source)
	ctx := context.Background()

	first, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, first.TotalVehicles)
	assert.True(t, mr.Exists("analytics:summary:2025-06:1"))

	source.mu.Lock()
	source.vehicles = source.vehicles[:2]
	source.mu.Unlock()

	cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, cached.TotalVehicles)
	assert.Equal(t, int32(1), source.calls.Load())

	require.NoError(t, svc.Bump(ctx))
	fresh, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalVehicles)
	assert.Equal(t, int32(2), source.calls.Load())
	assert.True(t, fresh.InventoryValue.Equal(d(4_200_000)))
}

func TestSummaryDeduplicatesConcurrentBuilds(t *testing.T) {
	source := &stubSource{vehicles: fixture(), gate: make(chan struct{})}
	svc, _ := newTestService(t, source)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := svc.Summary(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 5, s.TotalVehicles)
		}()
	}
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(source.gate)
	wg.Wait()
	assert.LessOrEqual(t, source.calls.Load(), int32(2))
}

func TestWarmRebuilds(t *testing.T) {
	source := &stubSource{vehicles: fixture()}
	svc, mr := newTestService(t, source)
	require.NoError(t, svc.Warm(context.Background()))
	assert.Equal(t, int32(1), source.calls.Load())
	// Incr on a missing version key starts it at 1.
	assert.True(t, mr.Exists("analytics:summary:2025-06:1"))
}

func TestSummaryWithoutRedis(t *testing.T) {
	source := &stubSource{vehicles: fixture()}
	svc := NewService(source, nil, nil)
	svc.WithNow(func() time.Time { return now })
	s, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, s.TotalVehicles)
	assert.NoError(t, svc.Warm(context.Background()))
}
