package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/planforge/internal/tierset"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	ValidateConfig(ctx context.Context, id string, req UpdateRequest) (tierset.Errors, error)
}

// TierInput is the wire shape of one tier. It deliberately has no identity
// field: identities are client-local and assigned on load.
type TierInput struct {
	FromAmount float64  `json:"from_amount"`
	ToAmount   *float64 `json:"to_amount"`
	Rate       float64  `json:"rate"`
}

type CreateRequest struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	UnitOfMeasure string         `json:"unit_of_measure"`
	BaseRate      *float64       `json:"base_rate"`
	MinimumUsage  *float64       `json:"minimum_usage"`
	Metadata      map[string]any `json:"metadata"`
}

type UpdateRequest struct {
	Name                *string     `json:"name"`
	Description         *string     `json:"description"`
	UnitOfMeasure       string      `json:"unit_of_measure"`
	EnableTieredPricing bool        `json:"enable_tiered_pricing"`
	BaseRate            *float64    `json:"base_rate"`
	MinimumUsage        *float64    `json:"minimum_usage"`
	Tiers               []TierInput `json:"tiers"`
}

type TierView struct {
	Identity   string   `json:"identity"`
	FromAmount float64  `json:"from_amount"`
	ToAmount   *float64 `json:"to_amount,omitempty"`
	Rate       float64  `json:"rate"`
}

type Response struct {
	ID                  string     `json:"id"`
	OrganizationID      string     `json:"organization_id"`
	Code                string     `json:"code"`
	Name                string     `json:"name,omitempty"`
	Description         string     `json:"description,omitempty"`
	UnitOfMeasure       string     `json:"unit_of_measure"`
	EnableTieredPricing bool       `json:"enable_tiered_pricing"`
	BaseRate            *float64   `json:"base_rate,omitempty"`
	MinimumUsage        *float64   `json:"minimum_usage,omitempty"`
	Tiers               []TierView `json:"tiers"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidID           = errors.New("invalid_id")
	ErrDuplicateCode       = errors.New("duplicate_code")
	ErrNotFound            = errors.New("not_found")
)

// ValidationError carries the validator's field errors across the service
// boundary. It is data, not a fault: the HTTP layer renders it as a 400
// with per-field entries.
type ValidationError struct {
	Fields tierset.Errors
}

func (e *ValidationError) Error() string { return "invalid_plan_configuration" }
