package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanGuardrails(t *testing.T) {
	cfg := DefaultPlanGuardrails()

	require.NoError(t, validatePlanGuardrails(cfg))
	assert.Equal(t, 20, cfg.MaxTiers)
	assert.Contains(t, cfg.UnitsOfMeasure, cfg.DefaultUnitOfMeasure)
}

func TestValidatePlanGuardrailsRejectsBadValues(t *testing.T) {
	assert.Error(t, validatePlanGuardrails(PlanGuardrails{MaxTiers: 0, DefaultUnitOfMeasure: "unit"}))
	assert.Error(t, validatePlanGuardrails(PlanGuardrails{MaxTiers: 10, DefaultUnitOfMeasure: "  "}))
}

func TestStaticPlanGuardrails(t *testing.T) {
	want := PlanGuardrails{MaxTiers: 3, DefaultUnitOfMeasure: "GB", UnitsOfMeasure: []string{"GB"}}

	holder := StaticPlanGuardrails(want)

	assert.Equal(t, want, holder.Get())
}
