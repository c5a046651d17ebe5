package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BillingPlan struct {
	ID                  snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID               snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_billing_plans_org_code"`
	Code                string            `json:"code" gorm:"type:text;not null;uniqueIndex:ux_billing_plans_org_code"`
	Name                string            `json:"name" gorm:"type:text"`
	Description         string            `json:"description" gorm:"type:text"`
	UnitOfMeasure       string            `json:"unit_of_measure" gorm:"type:text;not null"`
	EnableTieredPricing bool              `json:"enable_tiered_pricing" gorm:"not null;default:false"`
	BaseRate            *float64          `json:"base_rate,omitempty" gorm:"type:numeric"`
	MinimumUsage        *float64          `json:"minimum_usage,omitempty" gorm:"type:numeric"`
	Metadata            datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt           time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BillingPlan) TableName() string { return "billing_plans" }

// PlanTier is one persisted pricing band. Client-local tier identities
// never reach this table; rows are addressed by plan and lower bound.
type PlanTier struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	PlanID     snowflake.ID `json:"plan_id" gorm:"column:plan_id;not null;index"`
	FromAmount float64      `json:"from_amount" gorm:"type:numeric;not null"`
	ToAmount   *float64     `json:"to_amount,omitempty" gorm:"type:numeric"`
	Rate       float64      `json:"rate" gorm:"type:numeric;not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PlanTier) TableName() string { return "billing_plan_tiers" }
