package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/daya-auto/carsale/internal/inventory"
	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
)

// VehicleLookup resolves the vehicle an article or review refers to.
type VehicleLookup interface {
	Get(ctx context.Context, id int64) (inventory.Vehicle, error)
}

// ImageCleaner schedules hosted images for deletion.
type ImageCleaner interface {
	EnqueueImageCleanup(ctx context.Context, urls []string) error
}

// Service coordinates articles and reviews.
type Service struct {
	repo     RepositoryPort
	vehicles VehicleLookup
	images   media.Store
	cleaner  ImageCleaner
	audit    shared.Auditor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service. cleaner and audit may be nil.
func NewService(repo RepositoryPort, vehicles VehicleLookup, images media.Store, cleaner ImageCleaner, audit shared.Auditor, logger *slog.Logger) *Service {
	if images == nil {
		images = media.DataURLStore{}
	}
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		vehicles: vehicles,
		images:   images,
		cleaner:  cleaner,
		audit:    audit,
		validate: validator.New(),
		logger:   logger.With(slog.String("module", "articles")),
	}
}

// Recent returns the newest articles for the dashboard.
func (s *Service) Recent(ctx context.Context) ([]Article, error) {
	return s.repo.ListArticles(ctx, 0, RecentLimit)
}

// All returns every article, newest first.
func (s *Service) All(ctx context.Context) ([]Article, error) {
	return s.repo.ListArticles(ctx, 0, 0)
}

// GetArticle loads one article.
func (s *Service) GetArticle(ctx context.Context, id int64) (Article, error) {
	return s.repo.GetArticle(ctx, id)
}

// PageData supplies the vehicle detail page with its reviews, articles and
// rating summary, or the dashboard with recent articles when vehicleID is 0.
func (s *Service) PageData(ctx context.Context, vehicleID int64) (map[string]any, error) {
	if vehicleID == 0 {
		recent, err := s.Recent(ctx)
		if err != nil {
			return nil, fmt.Errorf("recent articles: %w", err)
		}
		return map[string]any{"RecentArticles": recent}, nil
	}
	reviews, err := s.repo.ListReviews(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	articles, err := s.repo.ListArticles(ctx, vehicleID, 0)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return map[string]any{
		"Reviews":       reviews,
		"Articles":      articles,
		"ReviewSummary": summarize(reviews),
	}, nil
}

// CreateArticle stores an article. Administrators only.
func (s *Service) CreateArticle(ctx context.Context, actor rbac.Principal, in ArticleInput, uploads []media.Image) (Article, error) {
	if !actor.Can(rbac.PermArticlesManage) {
		return Article{}, shared.ErrForbidden
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.VehicleName = strings.Join(strings.Fields(in.VehicleName), " ")

	verr := shared.ValidateStruct(s.validate, in)
	if in.VehicleID == nil && in.VehicleName == "" {
		verr.Add("Vehicle", "Choose a vehicle or enter its name")
	}
	if len(uploads) > media.MaxArticleImages {
		verr.Add("Images", "At most "+strconv.Itoa(media.MaxArticleImages)+" images are allowed")
	}
	if in.VehicleID != nil && verr.Empty() {
		v, err := s.vehicles.Get(ctx, *in.VehicleID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			verr.Add("Vehicle", "Vehicle not found")
		case err != nil:
			return Article{}, err
		case in.VehicleName == "":
			in.VehicleName = v.DisplayName()
		}
	}
	if err := verr.Err(); err != nil {
		return Article{}, err
	}

	urls, err := s.upload(ctx, uploads, media.MaxArticleImages)
	if err != nil {
		return Article{}, err
	}
	a, err := s.repo.CreateArticle(ctx, Article{
		VehicleID:   in.VehicleID,
		VehicleName: in.VehicleName,
		Title:       in.Title,
		Body:        in.Body,
		Images:      urls,
		AuthorID:    actor.UserID,
		AuthorName:  actor.Name(),
	})
	if err != nil {
		s.discard(ctx, urls)
		return Article{}, err
	}
	s.record(ctx, actor, "article.create", "article", a.ID, map[string]any{"title": a.Title})
	return a, nil
}

// UpdateArticle edits the title and body. Administrators only.
func (s *Service) UpdateArticle(ctx context.Context, actor rbac.Principal, id int64, title, body string) (Article, error) {
	if !actor.Can(rbac.PermArticlesManage) {
		return Article{}, shared.ErrForbidden
	}
	in := ArticleInput{Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)}
	if err := shared.ValidateStruct(s.validate, in).Err(); err != nil {
		return Article{}, err
	}
	if err := s.repo.UpdateArticle(ctx, id, in.Title, in.Body); err != nil {
		return Article{}, err
	}
	s.record(ctx, actor, "article.update", "article", id, nil)
	return s.repo.GetArticle(ctx, id)
}

// DeleteArticle removes an article and schedules its images for deletion.
func (s *Service) DeleteArticle(ctx context.Context, actor rbac.Principal, id int64) error {
	if !actor.Can(rbac.PermArticlesManage) {
		return shared.ErrForbidden
	}
	a, err := s.repo.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteArticle(ctx, id); err != nil {
		return err
	}
	s.release(ctx, a.Images)
	s.record(ctx, actor, "article.delete", "article", id, map[string]any{"title": a.Title})
	return nil
}

// CreateReview posts a review of vehicleID by actor.
func (s *Service) CreateReview(ctx context.Context, actor rbac.Principal, vehicleID int64, in ReviewInput, uploads []media.Image) (Review, error) {
	if !actor.Can(rbac.PermReviewsCreate) {
		return Review{}, shared.ErrForbidden
	}
	in.Comment = strings.TrimSpace(in.Comment)
	verr := shared.ValidateStruct(s.validate, in)
	if len(uploads) > media.MaxReviewImages {
		verr.Add("Images", "At most "+strconv.Itoa(media.MaxReviewImages)+" images are allowed")
	}
	if err := verr.Err(); err != nil {
		return Review{}, err
	}
	if _, err := s.vehicles.Get(ctx, vehicleID); err != nil {
		return Review{}, err
	}

	urls, err := s.upload(ctx, uploads, media.MaxReviewImages)
	if err != nil {
		return Review{}, err
	}
	rv, err := s.repo.CreateReview(ctx, Review{
		VehicleID: vehicleID,
		UserID:    actor.UserID,
		UserName:  actor.Name(),
		Rating:    in.Rating,
		Comment:   in.Comment,
		Images:    urls,
	})
	if err != nil {
		s.discard(ctx, urls)
		return Review{}, err
	}
	s.record(ctx, actor, "review.create", "review", rv.ID, map[string]any{"vehicle_id": vehicleID, "rating": rv.Rating})
	return rv, nil
}

// DeleteReview removes a review. Administrators only.
func (s *Service) DeleteReview(ctx context.Context, actor rbac.Principal, id int64) (Review, error) {
	if !actor.Can(rbac.PermReviewsDelete) {
		return Review{}, shared.ErrForbidden
	}
	rv, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return Review{}, err
	}
	if err := s.repo.DeleteReview(ctx, id); err != nil {
		return Review{}, err
	}
	s.release(ctx, rv.Images)
	s.record(ctx, actor, "review.delete", "review", id, map[string]any{"vehicle_id": rv.VehicleID})
	return rv, nil
}

func (s *Service) upload(ctx context.Context, uploads []media.Image, max int) ([]string, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if err := media.Validate(uploads, max); err != nil {
		return nil, shared.NewValidationError(map[string]string{"Images": err.Error()})
	}
	urls, err := media.UploadAll(ctx, s.images, uploads)
	if err != nil {
		s.discard(ctx, urls)
		if errors.Is(err, media.ErrNotImage) || errors.Is(err, media.ErrTooLarge) {
			return nil, shared.NewValidationError(map[string]string{"Images": err.Error()})
		}
		return nil, err
	}
	return urls, nil
}

// release schedules deletion of the urls nothing references any more.
func (s *Service) release(ctx context.Context, urls []string) {
	if len(urls) == 0 || s.cleaner == nil {
		return
	}
	unused, err := s.repo.UnusedImages(ctx, urls)
	if err != nil {
		s.logger.Warn("check image references", slog.Int("images", len(urls)), slog.Any("error", err))
		return
	}
	s.discard(ctx, unused)
}

func (s *Service) discard(ctx context.Context, urls []string) {
	if len(urls) == 0 || s.cleaner == nil {
		return
	}
	if err := s.cleaner.EnqueueImageCleanup(ctx, urls); err != nil {
		s.logger.Warn("enqueue image cleanup", slog.Int("images", len(urls)), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action, entity string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       time.Now(),
	}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}
