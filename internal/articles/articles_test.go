package articles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/inventory"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
)

type memoryRepo struct {
	articles map[int64]Article
	reviews  map[int64]Review
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{articles: map[int64]Article{}, reviews: map[int64]Review{}}
}

func (m *memoryRepo) ListArticles(ctx context.Context, vehicleID int64, limit int) ([]Article, error) {
	var out []Article
	for _, a := range m.articles {
		if vehicleID > 0 && (a.VehicleID == nil || *a.VehicleID != vehicleID) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) GetArticle(ctx context.Context, id int64) (Article, error) {
	a, ok := m.articles[id]
	if !ok {
		return Article{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) CreateArticle(ctx context.Context, a Article) (Article, error) {
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	m.articles[a.ID] = a
	return a, nil
}

func (m *memoryRepo) UpdateArticle(ctx context.Context, id int64, title, body string) error {
	a, ok := m.articles[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.Title, a.Body = title, body
	m.articles[id] = a
	return nil
}

func (m *memoryRepo) DeleteArticle(ctx context.Context, id int64) error {
	if _, ok := m.articles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.articles, id)
	return nil
}

func (m *memoryRepo) ListReviews(ctx context.Context, vehicleID int64) ([]Review, error) {
	var out []Review
	for _, rv := range m.reviews {
		if rv.VehicleID == vehicleID {
			out = append(out, rv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) GetReview(ctx context.Context, id int64) (Review, error) {
	rv, ok := m.reviews[id]
	if !ok {
		return Review{}, shared.ErrNotFound
	}
	return rv, nil
}

func (m *memoryRepo) CreateReview(ctx context.Context, rv Review) (Review, error) {
	m.nextID++
	rv.ID = m.nextID
	m.reviews[rv.ID] = rv
	return rv, nil
}

func (m *memoryRepo) DeleteReview(ctx context.Context, id int64) error {
	if _, ok := m.reviews[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *memoryRepo) UnusedImages(ctx context.Context, urls []string) ([]string, error) {
	used := map[string]bool{}
	for _, a := range m.articles {
		for _, u := range a.Images {
			used[u] = true
		}
	}
	for _, rv := range m.reviews {
		for _, u := range rv.Images {
			used[u] = true
		}
	}
	var unused []string
	for _, u := range shared.UniqueStrings(urls) {
		if !used[u] {
			unused = append(unused, u)
		}
	}
	return unused, nil
}

type stubVehicles map[int64]inventory.Vehicle

func (s stubVehicles) Get(ctx context.Context, id int64) (inventory.Vehicle, error) {
	v, ok := s[id]
	if !ok {
		return inventory.Vehicle{}, shared.ErrNotFound
	}
	return v, nil
}

type recordingCleaner struct {
	urls []string
}

func (c *recordingCleaner) EnqueueImageCleanup(ctx context.Context, urls []string) error {
	c.urls = append(c.urls, urls...)
	return nil
}

var (
	admin  = rbac.Principal{UserID: 1, Email: "dayaauto@gmail.com", DisplayName: "Daya", Role: rbac.RoleAdmin}
	member = rbac.Principal{UserID: 2, Email: "kamal@example.com", Role: rbac.RoleUser}
)

func newTestService() (*Service, *memoryRepo, *recordingCleaner) {
	repo := newMemoryRepo()
	cleaner := &recordingCleaner{}
	vehicles := stubVehicles{7: {ID: 7, Brand: "Toyota", Model: "Prius", Year: 2019}}
	return NewService(repo, vehicles, nil, cleaner, nil, nil), repo, cleaner
}

func int64p(v int64) *int64 { return &v }

func TestCreateArticle(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateArticle(ctx, member, ArticleInput{Title: "x", Body: "y", VehicleName: "z"}, nil)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.CreateArticle(ctx, admin, ArticleInput{Title: " ", Body: ""}, nil)
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "Title")
	assert.Contains(t, verr.Fields, "Body")
	assert.Equal(t, "Choose a vehicle or enter its name", verr.Fields["Vehicle"])

	_, err = svc.CreateArticle(ctx, admin, ArticleInput{VehicleID: int64p(99), Title: "t", Body: "b"}, nil)
	verr, ok = shared.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Vehicle not found", verr.Fields["Vehicle"])

	a, err := svc.CreateArticle(ctx, admin, ArticleInput{VehicleID: int64p(7), Title: " First drive ", Body: "Smooth."}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Toyota Prius (2019)", a.VehicleName)
	assert.Equal(t, "First drive", a.Title)
	assert.Equal(t, "Daya", a.AuthorName)

	b, err := svc.CreateArticle(ctx, admin, ArticleInput{VehicleName: "Honda   Vezel", Title: "Import notes", Body: "Soon."}, nil)
	require.NoError(t, err)
	assert.Nil(t, b.VehicleID)
	assert.Equal(t, "Honda Vezel", b.VehicleName)
	assert.Len(t, repo.articles, 2)
}

func TestRecentArticlesLimit(t *testing.T) {
	svc, _, _ := newTestService()
	for i := 0; i < RecentLimit+3; i++ {
		_, err := svc.CreateArticle(context.Background(), admin, ArticleInput{VehicleName: "Car", Title: "t", Body: "b"}, nil)
		require.NoError(t, err)
	}
	data, err := svc.PageData(context.Background(), 0)
	require.NoError(t, err)
	recent := data["RecentArticles"].([]Article)
	assert.Len(t, recent, RecentLimit)
	assert.Greater(t, recent[0].ID, recent[1].ID)
}

func TestReviews(t *testing.T) {
	svc, _, cleaner := newTestService()
	ctx := context.Background()

	_, err := svc.CreateReview(ctx, member, 7, ReviewInput{Rating: 6, Comment: ""}, nil)
	verr, ok := shared.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "Rating")
	assert.Contains(t, verr.Fields, "Comment")

	_, err = svc.CreateReview(ctx, member, 99, ReviewInput{Rating: 4, Comment: "ok"}, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	first, err := svc.CreateReview(ctx, member, 7, ReviewInput{Rating: 4, Comment: "Great"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "kamal@example.com", first.UserName)
	_, err = svc.CreateReview(ctx, admin, 7, ReviewInput{Rating: 5, Comment: "Superb"}, nil)
	require.NoError(t, err)

	data, err := svc.PageData(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, data["Reviews"], 2)
	assert.Equal(t, Summary{Count: 2, Average: 4.5}, data["ReviewSummary"])

	_, err = svc.DeleteReview(ctx, member, first.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	deleted, err := svc.DeleteReview(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted.VehicleID)
	assert.Empty(t, cleaner.urls)
}

func TestDeleteArticleCleansImages(t *testing.T) {
	svc, repo, cleaner := newTestService()
	repo.articles[5] = Article{ID: 5, Title: "Old", Images: []string{"https://img.example/a.jpg"}}
	require.NoError(t, svc.DeleteArticle(context.Background(), admin, 5))
	assert.Equal(t, []string{"https://img.example/a.jpg"}, cleaner.urls)
	assert.ErrorIs(t, svc.DeleteArticle(context.Background(), admin, 5), shared.ErrNotFound)
}

func TestDeleteReviewKeepsImagesStillReferenced(t *testing.T) {
	svc, repo, cleaner := newTestService()
	repo.articles[5] = Article{ID: 5, Title: "Road test", Images: []string{"https://img.example/front.jpg"}}
	repo.reviews[6] = Review{ID: 6, VehicleID: 7, Rating: 5, Images: []string{"https://img.example/front.jpg", "https://img.example/seat.jpg"}}

	_, err := svc.DeleteReview(context.Background(), admin, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/seat.jpg"}, cleaner.urls)
}

func TestCreateReviewHandlerRedirectsToVehicle(t *testing.T) {
	svc, repo, _ := newTestService()
	h := NewHandler(nil, svc, nil, nil, rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/reviews", h.MountReviewRoutes)

	form := url.Values{"vehicle_id": {"7"}, "rating": {"5"}, "comment": {"Lovely car"}}
	req := httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(rbac.WithPrincipal(req.Context(), member))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/vehicles/7", rec.Header().Get("Location"))
	assert.Len(t, repo.reviews, 1)

	del := httptest.NewRequest(http.MethodPost, "/reviews/1/delete", nil)
	del = del.WithContext(rbac.WithPrincipal(del.Context(), member))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, del)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
