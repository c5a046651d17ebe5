package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *BillingPlan) error
	Update(ctx context.Context, db *gorm.DB, plan *BillingPlan) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BillingPlan, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]BillingPlan, error)
	ListTiers(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]PlanTier, error)
	ReplaceTiers(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID, tiers []PlanTier) error
}
