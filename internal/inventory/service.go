package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/tariffs"
)

// MaxPerPage caps the page size accepted from clients.
const MaxPerPage = 100

const idempotencyScope = "vehicles.create"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, v Vehicle) (Vehicle, error)
	Get(ctx context.Context, id int64) (Vehicle, error)
	Update(ctx context.Context, v Vehicle) error
	UpdateStatus(ctx context.Context, id int64, status Status, soldAt *time.Time) error
	// Delete removes the vehicle and returns the image URLs of the articles
	// and reviews removed with it.
	Delete(ctx context.Context, id int64) ([]string, error)
	List(ctx context.Context, f Filters) ([]Vehicle, int, error)
	Stats(ctx context.Context, f Filters) (Stats, error)
	// UnusedImages filters urls down to those no stored row references.
	UnusedImages(ctx context.Context, urls []string) ([]string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TariffLookup resolves the tax and duty rates of a country.
type TariffLookup interface {
	ForCountry(ctx context.Context, country string) (tariffs.Tariff, bool, error)
}

// ImageCleaner schedules hosted images for deletion.
type ImageCleaner interface {
	EnqueueImageCleanup(ctx context.Context, urls []string) error
}

// CacheInvalidator drops cached aggregates after a mutation.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// IdempotencyPort claims client supplied request keys.
type IdempotencyPort interface {
	Reserve(ctx context.Context, key, scope string) (int64, error)
	Complete(ctx context.Context, key, scope string, resourceID int64) error
	Release(ctx context.Context, key, scope string) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Tariffs     TariffLookup
	Images      media.Store
	Cleaner     ImageCleaner
	Cache       CacheInvalidator
	Idempotency IdempotencyPort
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	cfg      ServiceConfig
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if cfg.Images == nil {
		cfg.Images = media.DataURLStore{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, validate: validator.New(), logger: logger.With(slog.String("module", "inventory"))}
}

// CanEdit reports whether p may edit or change the status of v.
func CanEdit(p rbac.Principal, v Vehicle) bool {
	return p.CanManageOwned(v.AddedBy)
}

// List returns a page of vehicles with stats over the whole filtered set.
func (s *Service) List(ctx context.Context, f Filters) (ListResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = shared.DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	vehicles, total, err := s.repo.List(ctx, f)
	if err != nil {
		return ListResult{}, fmt.Errorf("list vehicles: %w", err)
	}
	stats, err := s.repo.Stats(ctx, f)
	if err != nil {
		return ListResult{}, fmt.Errorf("vehicle stats: %w", err)
	}
	return ListResult{Vehicles: vehicles, Pagination: shared.NewPagination(f.Page, f.PerPage, total), Stats: stats}, nil
}

// Export returns every vehicle matching f, ignoring pagination.
func (s *Service) Export(ctx context.Context, f Filters) ([]Vehicle, error) {
	f.Page, f.PerPage = 1, 0
	vehicles, _, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export vehicles: %w", err)
	}
	return vehicles, nil
}

// Get loads one vehicle.
func (s *Service) Get(ctx context.Context, id int64) (Vehicle, error) {
	if id <= 0 {
		return Vehicle{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create validates in, uploads images and stores a new available vehicle.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in Input, uploads []media.Image) (Vehicle, error) {
	if !actor.Can(rbac.PermVehiclesCreate) {
		return Vehicle{}, shared.ErrForbidden
	}
	in = normalizeInput(in)
	if err := validateInput(s.validate, in, s.cfg.Now(), len(uploads)+len(in.ImageURLs), true); err != nil {
		return Vehicle{}, err
	}
	if err := s.checkImageURLs(in.ImageURLs, nil); err != nil {
		return Vehicle{}, err
	}
	if err := s.fillTariff(ctx, &in); err != nil {
		return Vehicle{}, err
	}
	v := fromInput(Vehicle{Status: StatusAvailable, AddedBy: actor.UserID}, in)
	applyDerived(&v)
	if err := validateDerived(v); err != nil {
		return Vehicle{}, err
	}

	uploaded, err := s.upload(ctx, uploads)
	if err != nil {
		return Vehicle{}, err
	}
	v.Images = append(append([]string{}, in.ImageURLs...), uploaded...)

	created, err := s.repo.Create(ctx, v)
	if err != nil {
		s.discard(ctx, uploaded)
		return Vehicle{}, err
	}
	s.afterMutation(ctx, actor, "vehicle.create", created, nil)
	return created, nil
}

// CreateIdempotent creates a vehicle once per key. A replayed key returns
// the vehicle created by the first request and replay set to true.
func (s *Service) CreateIdempotent(ctx context.Context, actor rbac.Principal, key string, in Input) (v Vehicle, replay bool, err error) {
	if key == "" || s.cfg.Idempotency == nil {
		v, err = s.Create(ctx, actor, in, nil)
		return v, false, err
	}
	scope := idempotencyScope + ":" + strconv.FormatInt(actor.UserID, 10)
	existing, err := s.cfg.Idempotency.Reserve(ctx, key, scope)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		if existing == 0 {
			return Vehicle{}, false, shared.ErrIdempotencyConflict
		}
		v, err = s.repo.Get(ctx, existing)
		return v, true, err
	}
	if err != nil {
		return Vehicle{}, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	v, err = s.Create(ctx, actor, in, nil)
	if err != nil {
		if rerr := s.cfg.Idempotency.Release(ctx, key, scope); rerr != nil {
			s.logger.Warn("release idempotency key", slog.Any("error", rerr))
		}
		return Vehicle{}, false, err
	}
	if cerr := s.cfg.Idempotency.Complete(ctx, key, scope, v.ID); cerr != nil {
		s.logger.Warn("complete idempotency key", slog.Any("error", cerr))
	}
	return v, false, nil
}

// Update replaces the editable fields of a vehicle. New uploads replace the
// whole image set; ImageURLs replace it when non-nil; otherwise images are
// kept. Replaced images are scheduled for deletion once nothing references them.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id int64, in Input, uploads []media.Image) (Vehicle, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	if !CanEdit(actor, existing) {
		return Vehicle{}, shared.ErrForbidden
	}
	keepURLs := in.ImageURLs != nil
	in = normalizeInput(in)

	imageCount := len(existing.Images)
	switch {
	case len(uploads) > 0:
		imageCount = len(uploads)
	case keepURLs:
		imageCount = len(in.ImageURLs)
	}
	if err := validateInput(s.validate, in, s.cfg.Now(), imageCount, false); err != nil {
		return Vehicle{}, err
	}
	if keepURLs && len(uploads) == 0 {
		if err := s.checkImageURLs(in.ImageURLs, existing.Images); err != nil {
			return Vehicle{}, err
		}
	}
	if err := s.fillTariff(ctx, &in); err != nil {
		return Vehicle{}, err
	}
	updated := fromInput(existing, in)
	applyDerived(&updated)
	if err := validateDerived(updated); err != nil {
		return Vehicle{}, err
	}

	images := existing.Images
	var uploaded []string
	switch {
	case len(uploads) > 0:
		if uploaded, err = s.upload(ctx, uploads); err != nil {
			return Vehicle{}, err
		}
		images = uploaded
	case keepURLs:
		images = in.ImageURLs
	}

	updated.Images = images
	if err := s.repo.Update(ctx, updated); err != nil {
		s.discard(ctx, uploaded)
		return Vehicle{}, err
	}
	s.release(ctx, removed(existing.Images, images))

	fresh, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	s.afterMutation(ctx, actor, "vehicle.update", fresh, map[string]any{"images_replaced": len(uploaded) > 0})
	return fresh, nil
}

// UpdateSection applies the fields of one section from in, leaving every
// other field untouched.
func (s *Service) UpdateSection(ctx context.Context, actor rbac.Principal, id int64, section Section, in Input) (Vehicle, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	if !CanEdit(actor, existing) {
		return Vehicle{}, shared.ErrForbidden
	}
	merged := InputFromVehicle(existing)
	switch section {
	case SectionBasic:
		merged.ChassisNumber, merged.Brand, merged.Model = in.ChassisNumber, in.Brand, in.Model
		merged.Year, merged.Grade, merged.Country = in.Year, in.Grade, in.Country
	case SectionFinancial:
		merged.PurchasePrice, merged.CIFValue, merged.LCValue = in.PurchasePrice, in.CIFValue, in.LCValue
		merged.SellingPrice, merged.AdvancePayment = in.SellingPrice, in.AdvancePayment
		merged.Price, merged.Tax, merged.Duty = in.Price, in.Tax, in.Duty
	case SectionShipping:
		merged.ShippingCompany, merged.ShippingDate, merged.ArrivalDate = in.ShippingCompany, in.ShippingDate, in.ArrivalDate
	case SectionPurchaser:
		merged.PurchaserName, merged.PurchaserPhone = in.PurchaserName, in.PurchaserPhone
		merged.PurchaserIDNumber, merged.PurchaserAddress = in.PurchaserIDNumber, in.PurchaserAddress
	default:
		return Vehicle{}, fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}
	merged = normalizeInput(merged)
	if err := validateInput(s.validate, merged, s.cfg.Now(), len(existing.Images), false); err != nil {
		return Vehicle{}, err
	}
	if err := s.fillTariff(ctx, &merged); err != nil {
		return Vehicle{}, err
	}

	updated := fromInput(existing, merged)
	applyDerived(&updated)
	if err := validateDerived(updated); err != nil {
		return Vehicle{}, err
	}
	if err := s.repo.Update(ctx, updated); err != nil {
		return Vehicle{}, err
	}
	fresh, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	s.afterMutation(ctx, actor, "vehicle.update_section", fresh, map[string]any{"section": string(section)})
	return fresh, nil
}

// ChangeStatus moves a vehicle between available, reserved and sold.
// Entering sold stamps sold_at; leaving it clears the stamp.
func (s *Service) ChangeStatus(ctx context.Context, actor rbac.Principal, id int64, raw string) (Vehicle, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return Vehicle{}, shared.NewValidationError(map[string]string{"Status": "Status must be available, reserved or sold"})
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	if !actor.Can(rbac.PermVehiclesStatusAny) && !CanEdit(actor, existing) {
		return Vehicle{}, shared.ErrForbidden
	}
	if existing.Status == status {
		return existing, nil
	}
	var soldAt *time.Time
	if status == StatusSold {
		now := s.cfg.Now().UTC()
		soldAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, status, soldAt); err != nil {
		return Vehicle{}, err
	}
	existing.Status, existing.SoldAt = status, soldAt
	s.afterMutation(ctx, actor, "vehicle.status", existing, map[string]any{"status": string(status)})
	return existing, nil
}

// Delete removes a vehicle with its articles and reviews. Administrators only.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id int64) error {
	if !actor.Can(rbac.PermVehiclesDelete) {
		return shared.ErrForbidden
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	related, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.release(ctx, append(append([]string{}, existing.Images...), related...))
	s.afterMutation(ctx, actor, "vehicle.delete", existing, nil)
	return nil
}

func (s *Service) fillTariff(ctx context.Context, in *Input) error {
	if s.cfg.Tariffs == nil || !in.Tax.IsZero() || !in.Duty.IsZero() || in.Country == "" {
		return nil
	}
	t, ok, err := s.cfg.Tariffs.ForCountry(ctx, in.Country)
	if err != nil {
		return fmt.Errorf("tariff lookup: %w", err)
	}
	if !ok {
		return nil
	}
	cost := CalculateTotalCost(in.CIFValue, t.TaxPercentage, t.DutyPercentage)
	in.Tax, in.Duty = cost.Tax, cost.Duty
	return nil
}

func (s *Service) upload(ctx context.Context, uploads []media.Image) ([]string, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if err := media.Validate(uploads, media.MaxVehicleImages); err != nil {
		return nil, shared.NewValidationError(map[string]string{"Images": err.Error()})
	}
	urls, err := media.UploadAll(ctx, s.cfg.Images, uploads)
	if err != nil {
		s.discard(ctx, urls)
		if errors.Is(err, media.ErrNotImage) || errors.Is(err, media.ErrTooLarge) {
			return nil, shared.NewValidationError(map[string]string{"Images": err.Error()})
		}
		return nil, err
	}
	return urls, nil
}

// checkImageURLs accepts URLs the vehicle already holds and URLs issued by
// the configured image store; anything else cannot be attached.
func (s *Service) checkImageURLs(urls, current []string) error {
	held := make(map[string]struct{}, len(current))
	for _, u := range current {
		held[u] = struct{}{}
	}
	for _, u := range urls {
		if _, ok := held[u]; ok {
			continue
		}
		if !s.cfg.Images.Owns(u) {
			return shared.NewValidationError(map[string]string{"ImageURLs": "Images must be hosted by the configured image store"})
		}
	}
	return nil
}

// release schedules urls for deletion once no vehicle, article or review
// references them any more.
func (s *Service) release(ctx context.Context, urls []string) {
	if len(urls) == 0 || s.cfg.Cleaner == nil {
		return
	}
	unused, err := s.repo.UnusedImages(ctx, urls)
	if err != nil {
		s.logger.Warn("check image references", slog.Int("images", len(urls)), slog.Any("error", err))
		return
	}
	s.discard(ctx, unused)
}

// discard schedules freshly uploaded urls that never made it into a row.
func (s *Service) discard(ctx context.Context, urls []string) {
	if len(urls) == 0 || s.cfg.Cleaner == nil {
		return
	}
	if err := s.cfg.Cleaner.EnqueueImageCleanup(ctx, urls); err != nil {
		s.logger.Warn("enqueue image cleanup", slog.Int("images", len(urls)), slog.Any("error", err))
	}
}

func (s *Service) afterMutation(ctx context.Context, actor rbac.Principal, action string, v Vehicle, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["chassis_number"] = v.ChassisNumber
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "vehicle",
		EntityID: strconv.FormatInt(v.ID, 10),
		Meta:     meta,
		At:       s.cfg.Now(),
	}); err != nil {
		s.logger.Warn("audit vehicle mutation", slog.String("action", action), slog.Any("error", err))
	}
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Bump(ctx); err != nil {
			s.logger.Warn("bump analytics cache", slog.Any("error", err))
		}
	}
}

func fromInput(base Vehicle, in Input) Vehicle {
	base.ChassisNumber, base.Brand, base.Model = in.ChassisNumber, in.Brand, in.Model
	base.Year, base.Grade, base.Country = in.Year, in.Grade, in.Country
	base.PurchasePrice, base.CIFValue, base.LCValue = in.PurchasePrice.Round(2), in.CIFValue.Round(2), in.LCValue.Round(2)
	base.SellingPrice, base.AdvancePayment = in.SellingPrice.Round(2), in.AdvancePayment.Round(2)
	base.Price, base.Tax, base.Duty = in.Price.Round(2), in.Tax.Round(2), in.Duty.Round(2)
	base.ShippingCompany, base.ShippingDate, base.ArrivalDate = in.ShippingCompany, in.ShippingDate, in.ArrivalDate
	base.PurchaserName, base.PurchaserPhone = in.PurchaserName, in.PurchaserPhone
	base.PurchaserIDNumber, base.PurchaserAddress = in.PurchaserIDNumber, in.PurchaserAddress
	return base
}

func removed(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, u := range after {
		keep[u] = struct{}{}
	}
	var out []string
	for _, u := range before {
		if _, ok := keep[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
