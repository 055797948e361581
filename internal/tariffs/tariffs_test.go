package tariffs

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/shared"
)

type memRepo struct {
	items  map[int64]Tariff
	nextID int64
}

func newMemRepo() *memRepo { return &memRepo{items: map[int64]Tariff{}} }

func (m *memRepo) List(ctx context.Context, filters ListFilters) ([]Tariff, error) {
	var out []Tariff
	for _, t := range m.items {
		out = append(out, t)
	}
	return out, nil
}

func (m *memRepo) Get(ctx context.Context, id int64) (Tariff, error) {
	t, ok := m.items[id]
	if !ok {
		return Tariff{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memRepo) FindByCountry(ctx context.Context, country string) (Tariff, error) {
	for _, t := range m.items {
		if strings.EqualFold(t.Country, country) {
			return t, nil
		}
	}
	return Tariff{}, shared.ErrNotFound
}

func (m *memRepo) Create(ctx context.Context, t Tariff) (Tariff, error) {
	if _, err := m.FindByCountry(ctx, t.Country); err == nil {
		return Tariff{}, ErrDuplicateCountry
	}
	m.nextID++
	t.ID = m.nextID
	m.items[t.ID] = t
	return t, nil
}

func (m *memRepo) Update(ctx context.Context, id int64, t Tariff) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	t.ID = id
	m.items[id] = t
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func TestCreateValidatesPercentages(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	_, err := svc.Create(context.Background(), 1, Tariff{
		Country:        "  ",
		TaxPercentage:  decimal.NewFromInt(-1),
		DutyPercentage: decimal.NewFromInt(1001),
	})
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, verr.Fields, 3)
}

func TestCreateRejectsDuplicateCountry(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, 1, Tariff{Country: "Japan", TaxPercentage: decimal.NewFromInt(15), DutyPercentage: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1, Tariff{Country: "japan"})
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "Country")
}

func TestForCountry(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, 1, Tariff{Country: "United  Kingdom", TaxPercentage: decimal.RequireFromString("12.5")})
	require.NoError(t, err)

	got, ok, err := svc.ForCountry(ctx, " united kingdom ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "United Kingdom", got.Country)
	assert.True(t, got.TaxPercentage.Equal(decimal.RequireFromString("12.5")))

	_, ok, err = svc.ForCountry(ctx, "Germany")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParsePercentage(t *testing.T) {
	v, err := ParsePercentage(" 7.5% ")
	require.NoError(t, err)
	assert.Equal(t, "7.5", v.String())

	v, err = ParsePercentage("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = ParsePercentage("abc")
	assert.Error(t, err)
}
