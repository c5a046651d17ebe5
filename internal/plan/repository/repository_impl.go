package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *plandomain.BillingPlan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_plans (
			id, org_id, code, name, description, unit_of_measure,
			enable_tiered_pricing, base_rate, minimum_usage, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OrgID,
		p.Code,
		p.Name,
		p.Description,
		p.UnitOfMeasure,
		p.EnableTieredPricing,
		p.BaseRate,
		p.MinimumUsage,
		p.Metadata,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *plandomain.BillingPlan) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_plans SET
			name = ?, description = ?, unit_of_measure = ?,
			enable_tiered_pricing = ?, base_rate = ?, minimum_usage = ?,
			updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		p.Name,
		p.Description,
		p.UnitOfMeasure,
		p.EnableTieredPricing,
		p.BaseRate,
		p.MinimumUsage,
		p.UpdatedAt,
		p.OrgID,
		p.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*plandomain.BillingPlan, error) {
	var p plandomain.BillingPlan
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, description, unit_of_measure,
		 enable_tiered_pricing, base_rate, minimum_usage, metadata,
		 created_at, updated_at
		 FROM billing_plans WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]plandomain.BillingPlan, error) {
	var items []plandomain.BillingPlan
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, description, unit_of_measure,
		 enable_tiered_pricing, base_rate, minimum_usage, metadata,
		 created_at, updated_at
		 FROM billing_plans WHERE org_id = ? ORDER BY created_at ASC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]plandomain.PlanTier, error) {
	var items []plandomain.PlanTier
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, plan_id, from_amount, to_amount, rate,
		 created_at, updated_at
		 FROM billing_plan_tiers WHERE org_id = ? AND plan_id = ?
		 ORDER BY from_amount ASC`,
		orgID,
		planID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceTiers swaps the full tier set of a plan. Callers run it inside a
// transaction together with the plan row update.
func (r *repo) ReplaceTiers(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID, tiers []plandomain.PlanTier) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM billing_plan_tiers WHERE org_id = ? AND plan_id = ?`,
		orgID,
		planID,
	).Error; err != nil {
		return err
	}

	for i := range tiers {
		t := &tiers[i]
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO billing_plan_tiers (
				id, org_id, plan_id, from_amount, to_amount, rate,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID,
			t.OrgID,
			t.PlanID,
			t.FromAmount,
			t.ToAmount,
			t.Rate,
			t.CreatedAt,
			t.UpdatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
