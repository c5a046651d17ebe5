package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/planforge/internal/config"
	obsmetrics "github.com/smallbiznis/planforge/internal/observability/metrics"
	"github.com/smallbiznis/planforge/internal/orgcontext"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"github.com/smallbiznis/planforge/internal/tierset"
	"github.com/smallbiznis/planforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const codeUnsupportedUnit = "unsupported_unit"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    plandomain.Repository
	Guard   *config.PlanGuardrailHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    plandomain.Repository
	guard   *config.PlanGuardrailHolder
	metrics *obsmetrics.Metrics
}

func New(p Params) plandomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("plan.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		guard:   p.Guard,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreateRequest) (*plandomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, plandomain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, plandomain.ErrInvalidCode
	}

	unit := strings.TrimSpace(req.UnitOfMeasure)
	if unit == "" {
		unit = s.guard.Get().DefaultUnitOfMeasure
	}

	// New plans always start flat. Tiering is switched on through Update,
	// which is where the full tier validation runs.
	errs := s.validateConfig(tierset.Config{
		TieringEnabled: false,
		BaseRate:       req.BaseRate,
		MinimumUsage:   req.MinimumUsage,
		UnitOfMeasure:  unit,
	})
	if !errs.OK() {
		s.recordValidationFailures(ctx, errs)
		return nil, &plandomain.ValidationError{Fields: errs}
	}

	now := time.Now().UTC()
	entity := &plandomain.BillingPlan{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		Code:          code,
		Name:          req.Name,
		Description:   req.Description,
		UnitOfMeasure: unit,
		BaseRate:      req.BaseRate,
		MinimumUsage:  req.MinimumUsage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Metadata != nil {
		entity.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, plandomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("plan created",
		zap.String("plan_id", entity.ID.String()),
		zap.String("code", entity.Code),
	)
	if s.metrics != nil {
		s.metrics.RecordPlanSaved(ctx, "flat")
	}

	return s.toResponse(entity, nil), nil
}

func (s *Service) Get(ctx context.Context, id string) (*plandomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, plandomain.ErrInvalidOrganization
	}

	planID, err := parseID(id)
	if err != nil {
		return nil, plandomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, planID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, plandomain.ErrNotFound
	}

	tiers, err := s.loadTierSet(ctx, orgID, planID)
	if err != nil {
		return nil, err
	}

	return s.toResponse(entity, tiers.Tiers()), nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, plandomain.ErrInvalidOrganization
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]plandomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *s.toResponse(&items[i], nil))
	}

	return resp, nil
}

func (s *Service) Update(ctx context.Context, id string, req plandomain.UpdateRequest) (*plandomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, plandomain.ErrInvalidOrganization
	}

	planID, err := parseID(id)
	if err != nil {
		return nil, plandomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, planID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, plandomain.ErrNotFound
	}

	set := s.buildTierSet(req)
	errs := s.validateConfig(tierset.Config{
		TieringEnabled: req.EnableTieredPricing,
		BaseRate:       req.BaseRate,
		MinimumUsage:   req.MinimumUsage,
		UnitOfMeasure:  req.UnitOfMeasure,
		Tiers:          set.Tiers(),
	})
	if !errs.OK() {
		s.recordValidationFailures(ctx, errs)
		return nil, &plandomain.ValidationError{Fields: errs}
	}

	if req.Name != nil {
		entity.Name = *req.Name
	}
	if req.Description != nil {
		entity.Description = *req.Description
	}
	entity.UnitOfMeasure = strings.TrimSpace(req.UnitOfMeasure)
	entity.EnableTieredPricing = req.EnableTieredPricing
	entity.MinimumUsage = req.MinimumUsage
	entity.UpdatedAt = time.Now().UTC()

	mode := "flat"
	rows := []plandomain.PlanTier{}
	if req.EnableTieredPricing {
		mode = "tiered"
		entity.BaseRate = nil
		for _, tier := range set.PrepareForSave() {
			rows = append(rows, plandomain.PlanTier{
				ID:         s.genID.Generate(),
				OrgID:      orgID,
				PlanID:     planID,
				FromAmount: tier.FromAmount,
				ToAmount:   tier.ToAmount,
				Rate:       tier.Rate,
				CreatedAt:  entity.UpdatedAt,
				UpdatedAt:  entity.UpdatedAt,
			})
		}
	} else {
		entity.BaseRate = req.BaseRate
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, entity); err != nil {
			return err
		}
		return s.repo.ReplaceTiers(ctx, tx, orgID, planID, rows)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan saved",
		zap.String("plan_id", entity.ID.String()),
		zap.String("pricing_mode", mode),
		zap.Int("tiers", len(rows)),
	)
	if s.metrics != nil {
		s.metrics.RecordPlanSaved(ctx, mode)
	}

	if req.EnableTieredPricing {
		return s.toResponse(entity, set.Tiers()), nil
	}
	return s.toResponse(entity, nil), nil
}

func (s *Service) ValidateConfig(ctx context.Context, id string, req plandomain.UpdateRequest) (tierset.Errors, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, plandomain.ErrInvalidOrganization
	}

	planID, err := parseID(id)
	if err != nil {
		return nil, plandomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, planID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, plandomain.ErrNotFound
	}

	set := s.buildTierSet(req)
	errs := s.validateConfig(tierset.Config{
		TieringEnabled: req.EnableTieredPricing,
		BaseRate:       req.BaseRate,
		MinimumUsage:   req.MinimumUsage,
		UnitOfMeasure:  req.UnitOfMeasure,
		Tiers:          set.Tiers(),
	})
	if !errs.OK() {
		s.recordValidationFailures(ctx, errs)
	}
	return errs, nil
}

// buildTierSet loads the request tiers into an editor session so the save
// path reuses the same normalization (sorting, identity handling) the
// interactive editor applies.
func (s *Service) buildTierSet(req plandomain.UpdateRequest) *tierset.TierSet {
	set := tierset.New(s.genID)
	set.SetTieringEnabled(req.EnableTieredPricing)

	tiers := make([]tierset.Tier, 0, len(req.Tiers))
	for _, in := range req.Tiers {
		tiers = append(tiers, tierset.Tier{
			FromAmount: in.FromAmount,
			ToAmount:   in.ToAmount,
			Rate:       in.Rate,
		})
	}
	set.Load(tiers)
	return set
}

// validateConfig layers the operator guardrails on top of the core tier
// validation.
func (s *Service) validateConfig(cfg tierset.Config) tierset.Errors {
	errs := tierset.Validate(cfg)
	guard := s.guard.Get()

	if _, taken := errs[tierset.FieldTiers]; !taken && cfg.TieringEnabled && guard.MaxTiers > 0 && len(cfg.Tiers) > guard.MaxTiers {
		errs[tierset.FieldTiers] = tierset.FieldError{
			Code:    tierset.CodeTooManyTiers,
			Message: fmt.Sprintf("A plan cannot have more than %d tiers.", guard.MaxTiers),
		}
	}

	if _, taken := errs[tierset.FieldUnitOfMeasure]; !taken && len(guard.UnitsOfMeasure) > 0 {
		if !containsUnit(guard.UnitsOfMeasure, cfg.UnitOfMeasure) {
			errs[tierset.FieldUnitOfMeasure] = tierset.FieldError{
				Code:    codeUnsupportedUnit,
				Message: fmt.Sprintf("Unit of measure %q is not supported.", cfg.UnitOfMeasure),
			}
		}
	}

	return errs
}

func (s *Service) loadTierSet(ctx context.Context, orgID, planID snowflake.ID) (*tierset.TierSet, error) {
	rows, err := s.repo.ListTiers(ctx, s.db, orgID, planID)
	if err != nil {
		return nil, err
	}

	tiers := make([]tierset.Tier, 0, len(rows))
	for _, row := range rows {
		tiers = append(tiers, tierset.Tier{
			FromAmount: row.FromAmount,
			ToAmount:   row.ToAmount,
			Rate:       row.Rate,
		})
	}

	set := tierset.New(s.genID)
	set.Load(tiers)
	return set, nil
}

func (s *Service) recordValidationFailures(ctx context.Context, errs tierset.Errors) {
	if s.metrics == nil {
		return
	}
	for _, field := range errs.Fields() {
		s.metrics.RecordValidationFailure(ctx, field)
	}
}

func (s *Service) toResponse(p *plandomain.BillingPlan, tiers []tierset.Tier) *plandomain.Response {
	views := make([]plandomain.TierView, 0, len(tiers))
	for _, tier := range tiers {
		views = append(views, plandomain.TierView{
			Identity:   tier.Identity.String(),
			FromAmount: tier.FromAmount,
			ToAmount:   tier.ToAmount,
			Rate:       tier.Rate,
		})
	}

	return &plandomain.Response{
		ID:                  p.ID.String(),
		OrganizationID:      p.OrgID.String(),
		Code:                p.Code,
		Name:                p.Name,
		Description:         p.Description,
		UnitOfMeasure:       p.UnitOfMeasure,
		EnableTieredPricing: p.EnableTieredPricing,
		BaseRate:            p.BaseRate,
		MinimumUsage:        p.MinimumUsage,
		Tiers:               views,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

func containsUnit(allowed []string, unit string) bool {
	unit = strings.TrimSpace(unit)
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, unit) {
			return true
		}
	}
	return false
}
