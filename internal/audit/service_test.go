package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubTimelineRepo) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = f, offset, limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) All(ctx context.Context, f TimelineFilters, limit int) ([]TimelineRow, error) {
	s.lastFilter, s.lastLimit = f, limit
	return s.rows, nil
}

func (s *stubTimelineRepo) Actions(ctx context.Context) ([]string, error) {
	return []string{"vehicle.create"}, nil
}

func mockRows(n int) []TimelineRow {
	out := make([]TimelineRow, n)
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = TimelineRow{
			ID:       int64(n - i),
			At:       base.Add(-time.Duration(i) * time.Hour),
			ActorID:  1,
			Actor:    "dayaauto@gmail.com",
			Action:   "vehicle.update",
			Entity:   "vehicle",
			EntityID: fmt.Sprint(i + 1),
		}
	}
	return out
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: mockRows(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Zero(t, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500, Page: -1})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, 1, result.Paging.Page)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, result.Paging.PageSize)
}

func TestServiceWithoutRepository(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
	_, err = svc.Export(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}

func TestExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: mockRows(2)}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Entity: "vehicle"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, MaxExportRows, repo.lastLimit)
	assert.Equal(t, "vehicle", repo.lastFilter.Entity)
}

func TestWriteCSV(t *testing.T) {
	rows := mockRows(1)
	rows[0].Meta = map[string]any{"status": "sold"}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Actor", records[0][3])
	assert.Equal(t, []string{"1", "2025-06-10T12:00:00Z", "1", "dayaauto@gmail.com", "vehicle.update", "vehicle", "1", `{"status":"sold"}`}, records[1])
}

func TestRowLink(t *testing.T) {
	assert.Equal(t, "/vehicles/7", TimelineRow{Entity: "vehicle", EntityID: "7"}.Link())
	assert.Equal(t, "/articles#article-3", TimelineRow{Entity: "article", EntityID: "3"}.Link())
	assert.Empty(t, TimelineRow{Entity: "user", EntityID: "3"}.Link())
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause(TimelineFilters{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	where, args = whereClause(TimelineFilters{From: from, To: to, Actor: " sales ", Action: "vehicle.delete"})
	assert.Equal(t, " WHERE l.occurred_at >= $1 AND l.occurred_at < $2 AND u.email ILIKE $3 AND l.action = $4", where)
	require.Len(t, args, 4)
	assert.Equal(t, to.Add(24*time.Hour), args[1])
	assert.Equal(t, "%sales%", args[2])
}
