package tariffs

import (
	"context"
	"errors"
	"strconv"

	"github.com/daya-auto/carsale/internal/shared"
)

type Service struct {
	repo    Repository
	auditor shared.Auditor
}

func NewService(repo Repository, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{repo: repo, auditor: auditor}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Tariff, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Tariff, error) {
	if id <= 0 {
		return Tariff{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ForCountry returns the tariff configured for country. The boolean is
// false when none exists.
func (s *Service) ForCountry(ctx context.Context, country string) (Tariff, bool, error) {
	country = normalize(Tariff{Country: country}).Country
	if country == "" {
		return Tariff{}, false, nil
	}
	t, err := s.repo.FindByCountry(ctx, country)
	if errors.Is(err, shared.ErrNotFound) {
		return Tariff{}, false, nil
	}
	if err != nil {
		return Tariff{}, false, err
	}
	return t, true, nil
}

func (s *Service) Create(ctx context.Context, actorID int64, t Tariff) (Tariff, error) {
	t = normalize(t)
	if err := validate(t); err != nil {
		return Tariff{}, err
	}
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return Tariff{}, conflictAsValidation(err)
	}
	s.audit(ctx, actorID, "tariff.create", created)
	return created, nil
}

func (s *Service) Update(ctx context.Context, actorID, id int64, t Tariff) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	t = normalize(t)
	if err := validate(t); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, t); err != nil {
		return conflictAsValidation(err)
	}
	t.ID = id
	s.audit(ctx, actorID, "tariff.update", t)
	return nil
}

func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, actorID, "tariff.delete", Tariff{ID: id})
	return nil
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, t Tariff) {
	_ = s.auditor.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "tariff",
		EntityID: strconv.FormatInt(t.ID, 10),
		Meta: map[string]any{
			"country": t.Country,
			"tax":     t.TaxPercentage.String(),
			"duty":    t.DutyPercentage.String(),
		},
	})
}

func conflictAsValidation(err error) error {
	if errors.Is(err, ErrDuplicateCountry) {
		return shared.NewValidationError(map[string]string{"Country": "A tariff for this country already exists"})
	}
	return err
}
