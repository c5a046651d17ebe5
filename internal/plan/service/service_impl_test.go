package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/planforge/internal/config"
	"github.com/smallbiznis/planforge/internal/orgcontext"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"github.com/smallbiznis/planforge/internal/plan/repository"
	"github.com/smallbiznis/planforge/internal/tierset"
	"github.com/smallbiznis/planforge/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func f64(v float64) *float64 { return &v }

func guardrails() config.PlanGuardrails {
	return config.PlanGuardrails{
		MaxTiers:             5,
		DefaultUnitOfMeasure: "unit",
		UnitsOfMeasure:       []string{"unit", "GB", "api_call"},
	}
}

func setupPlanService(t *testing.T) (plandomain.Service, *gorm.DB, context.Context) {
	t.Helper()

	gormDB, err := db.NewTest(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gormDB.AutoMigrate(&plandomain.BillingPlan{}, &plandomain.PlanTier{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	svc := New(Params{
		DB:    gormDB,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Guard: config.StaticPlanGuardrails(guardrails()),
	})

	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), orgID)
	return svc, gormDB, ctx
}

func createPlan(t *testing.T, svc plandomain.Service, ctx context.Context) *plandomain.Response {
	t.Helper()
	resp, err := svc.Create(ctx, plandomain.CreateRequest{
		Code:          "storage",
		Name:          "Storage",
		UnitOfMeasure: "GB",
		BaseRate:      f64(0.25),
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return resp
}

func TestCreatePlanFlat(t *testing.T) {
	svc, _, ctx := setupPlanService(t)

	resp := createPlan(t, svc, ctx)
	if resp.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if resp.EnableTieredPricing {
		t.Fatalf("new plans must start flat")
	}
	if resp.BaseRate == nil || *resp.BaseRate != 0.25 {
		t.Fatalf("base rate not persisted: %+v", resp.BaseRate)
	}

	got, err := svc.Get(ctx, resp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != "storage" || got.UnitOfMeasure != "GB" {
		t.Fatalf("unexpected plan: %+v", got)
	}
	if len(got.Tiers) != 0 {
		t.Fatalf("flat plan must have no tiers, got %d", len(got.Tiers))
	}
}

func TestCreatePlanDefaultsUnitOfMeasure(t *testing.T) {
	svc, _, ctx := setupPlanService(t)

	resp, err := svc.Create(ctx, plandomain.CreateRequest{Code: "basic"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.UnitOfMeasure != "unit" {
		t.Fatalf("expected default unit, got %q", resp.UnitOfMeasure)
	}
}

func TestCreatePlanDuplicateCode(t *testing.T) {
	svc, _, ctx := setupPlanService(t)
	createPlan(t, svc, ctx)

	_, err := svc.Create(ctx, plandomain.CreateRequest{Code: "storage", UnitOfMeasure: "GB"})
	if !errors.Is(err, plandomain.ErrDuplicateCode) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestCreatePlanNegativeBaseRate(t *testing.T) {
	svc, _, ctx := setupPlanService(t)

	_, err := svc.Create(ctx, plandomain.CreateRequest{
		Code:          "bad",
		UnitOfMeasure: "GB",
		BaseRate:      f64(-1),
	})

	var verr *plandomain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields[tierset.FieldBaseRate].Code != tierset.CodeNegativeValue {
		t.Fatalf("unexpected fields: %+v", verr.Fields)
	}
}

func TestCreatePlanRequiresOrganization(t *testing.T) {
	svc, _, _ := setupPlanService(t)

	_, err := svc.Create(context.Background(), plandomain.CreateRequest{Code: "x", UnitOfMeasure: "GB"})
	if !errors.Is(err, plandomain.ErrInvalidOrganization) {
		t.Fatalf("expected invalid organization, got %v", err)
	}
}

func TestUpdateSwitchToTieredPricing(t *testing.T) {
	svc, _, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	resp, err := svc.Update(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure:       "GB",
		EnableTieredPricing: true,
		BaseRate:            f64(0.25),
		Tiers: []plandomain.TierInput{
			{FromAmount: 101, Rate: 0.5},
			{FromAmount: 0, ToAmount: f64(100), Rate: 1},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if resp.BaseRate != nil {
		t.Fatalf("tiered plans must not keep a base rate")
	}
	if len(resp.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(resp.Tiers))
	}
	if resp.Tiers[0].FromAmount != 0 || resp.Tiers[1].FromAmount != 101 {
		t.Fatalf("tiers not sorted: %+v", resp.Tiers)
	}
	if resp.Tiers[1].ToAmount != nil {
		t.Fatalf("tail tier must stay unbounded")
	}
	if resp.Tiers[0].Identity == "" {
		t.Fatalf("response tiers must carry identities")
	}

	got, err := svc.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if !got.EnableTieredPricing || len(got.Tiers) != 2 {
		t.Fatalf("tiers not persisted: %+v", got)
	}
}

func TestUpdateRejectsGap(t *testing.T) {
	svc, gormDB, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	_, err := svc.Update(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure:       "GB",
		EnableTieredPricing: true,
		Tiers: []plandomain.TierInput{
			{FromAmount: 0, ToAmount: f64(100), Rate: 1},
			{FromAmount: 200, Rate: 0.5},
		},
	})

	var verr *plandomain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields[tierset.FieldTiers].Code != tierset.CodeGap {
		t.Fatalf("unexpected fields: %+v", verr.Fields)
	}

	var count int64
	if err := gormDB.Raw(`SELECT COUNT(*) FROM billing_plan_tiers`).Scan(&count).Error; err != nil {
		t.Fatalf("count tiers: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected save must not persist tiers, found %d rows", count)
	}
}

func TestUpdateEnforcesMaxTiers(t *testing.T) {
	svc, _, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	tiers := make([]plandomain.TierInput, 0, 6)
	from := 0.0
	for i := 0; i < 6; i++ {
		in := plandomain.TierInput{FromAmount: from, Rate: 1}
		if i < 5 {
			to := from + 99
			in.ToAmount = &to
			from = to + 1
		}
		tiers = append(tiers, in)
	}

	_, err := svc.Update(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure:       "GB",
		EnableTieredPricing: true,
		Tiers:               tiers,
	})

	var verr *plandomain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields[tierset.FieldTiers].Code != tierset.CodeTooManyTiers {
		t.Fatalf("unexpected fields: %+v", verr.Fields)
	}
}

func TestUpdateRejectsUnsupportedUnit(t *testing.T) {
	svc, _, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	_, err := svc.Update(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure: "parsec",
		BaseRate:      f64(1),
	})

	var verr *plandomain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields[tierset.FieldUnitOfMeasure].Code != codeUnsupportedUnit {
		t.Fatalf("unexpected fields: %+v", verr.Fields)
	}
}

func TestUpdateBackToFlatDeletesTiers(t *testing.T) {
	svc, gormDB, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	_, err := svc.Update(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure:       "GB",
		EnableTieredPricing: true,
		Tiers: []plandomain.TierInput{
			{FromAmount: 0, ToAmount: f64(100), Rate: 1},
			{FromAmount: 101, Rate: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("update to tiered: %v", err)
	}

	resp, err := svc.Update(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure: "GB",
		BaseRate:      f64(2),
	})
	if err != nil {
		t.Fatalf("update to flat: %v", err)
	}
	if resp.EnableTieredPricing {
		t.Fatalf("plan should be flat again")
	}
	if resp.BaseRate == nil || *resp.BaseRate != 2 {
		t.Fatalf("base rate not restored: %+v", resp.BaseRate)
	}

	var count int64
	if err := gormDB.Raw(`SELECT COUNT(*) FROM billing_plan_tiers`).Scan(&count).Error; err != nil {
		t.Fatalf("count tiers: %v", err)
	}
	if count != 0 {
		t.Fatalf("flat save must delete tier rows, found %d", count)
	}
}

func TestValidateConfigDryRun(t *testing.T) {
	svc, gormDB, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	errs, err := svc.ValidateConfig(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure:       "GB",
		EnableTieredPricing: true,
		Tiers: []plandomain.TierInput{
			{FromAmount: 50, ToAmount: f64(100), Rate: 1},
			{FromAmount: 101, Rate: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if errs[tierset.FieldTiers].Code != tierset.CodeFirstTierNotZero {
		t.Fatalf("unexpected result: %+v", errs)
	}

	var count int64
	if err := gormDB.Raw(`SELECT COUNT(*) FROM billing_plan_tiers`).Scan(&count).Error; err != nil {
		t.Fatalf("count tiers: %v", err)
	}
	if count != 0 {
		t.Fatalf("dry run must not write")
	}
}

func TestValidateConfigCleanResult(t *testing.T) {
	svc, _, ctx := setupPlanService(t)
	plan := createPlan(t, svc, ctx)

	errs, err := svc.ValidateConfig(ctx, plan.ID, plandomain.UpdateRequest{
		UnitOfMeasure:       "GB",
		EnableTieredPricing: true,
		Tiers: []plandomain.TierInput{
			{FromAmount: 0, ToAmount: f64(100), Rate: 1},
			{FromAmount: 101, Rate: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !errs.OK() {
		t.Fatalf("expected clean result, got %+v", errs)
	}
}

func TestGetUnknownPlan(t *testing.T) {
	svc, _, ctx := setupPlanService(t)

	node, _ := snowflake.NewNode(2)
	_, err := svc.Get(ctx, node.Generate().String())
	if !errors.Is(err, plandomain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetInvalidID(t *testing.T) {
	svc, _, ctx := setupPlanService(t)

	_, err := svc.Get(ctx, "not-a-snowflake")
	if !errors.Is(err, plandomain.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestListScopedToOrganization(t *testing.T) {
	svc, _, ctx := setupPlanService(t)
	createPlan(t, svc, ctx)

	node, _ := snowflake.NewNode(3)
	otherCtx := orgcontext.WithOrgID(context.Background(), node.Generate())

	mine, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(mine))
	}

	theirs, err := svc.List(otherCtx)
	if err != nil {
		t.Fatalf("list other org: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("plans leaked across organizations: %d", len(theirs))
	}
}
