package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rulegen-service/internal/entity"
	"rulegen-service/internal/rulexml"
)

type RuleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Rule, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*entity.Rule, error)
	List(ctx context.Context) ([]entity.Rule, error)
	UpdateXML(ctx context.Context, id uuid.UUID, ruleXML string, updatedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RuleService covers the explicit external edit path for generated rules.
// Creation happens only inside the job pipeline.
type RuleService struct {
	repo RuleRepository
	now  func() time.Time
}

func NewRuleService(repo RuleRepository) *RuleService {
	return &RuleService{repo: repo, now: time.Now}
}

func (s *RuleService) Get(ctx context.Context, id uuid.UUID) (*entity.Rule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *RuleService) GetByJob(ctx context.Context, jobID uuid.UUID) (*entity.Rule, error) {
	return s.repo.GetByJobID(ctx, jobID)
}

func (s *RuleService) List(ctx context.Context) ([]entity.Rule, error) {
	return s.repo.List(ctx)
}

// Update re-validates the new XML with the same checks the pipeline applies.
func (s *RuleService) Update(ctx context.Context, id uuid.UUID, ruleXML string) (*entity.Rule, error) {
	sanitized, err := rulexml.Validate(ruleXML)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateXML(ctx, id, sanitized, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *RuleService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
