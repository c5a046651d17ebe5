package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
)

type createPlanRequest struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	UnitOfMeasure string         `json:"unit_of_measure"`
	BaseRate      *float64       `json:"base_rate"`
	MinimumUsage  *float64       `json:"minimum_usage"`
	Metadata      map[string]any `json:"metadata"`
}

type updatePlanRequest struct {
	Name                *string                `json:"name"`
	Description         *string                `json:"description"`
	UnitOfMeasure       string                 `json:"unit_of_measure"`
	EnableTieredPricing bool                   `json:"enable_tiered_pricing"`
	BaseRate            *float64               `json:"base_rate"`
	MinimumUsage        *float64               `json:"minimum_usage"`
	Tiers               []plandomain.TierInput `json:"tiers"`
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Create(c.Request.Context(), plandomain.CreateRequest{
		Code:          strings.TrimSpace(req.Code),
		Name:          req.Name,
		Description:   req.Description,
		UnitOfMeasure: req.UnitOfMeasure,
		BaseRate:      req.BaseRate,
		MinimumUsage:  req.MinimumUsage,
		Metadata:      req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlans(c *gin.Context) {
	resp, err := s.planSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPlan(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.planSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePlan(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Update(c.Request.Context(), id, plandomain.UpdateRequest{
		Name:                req.Name,
		Description:         req.Description,
		UnitOfMeasure:       req.UnitOfMeasure,
		EnableTieredPricing: req.EnableTieredPricing,
		BaseRate:            req.BaseRate,
		MinimumUsage:        req.MinimumUsage,
		Tiers:               req.Tiers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ValidatePlanConfig dry-runs the save validation so the editor can surface
// field errors without committing anything.
func (s *Server) ValidatePlanConfig(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	errs, err := s.planSvc.ValidateConfig(c.Request.Context(), id, plandomain.UpdateRequest{
		Name:                req.Name,
		Description:         req.Description,
		UnitOfMeasure:       req.UnitOfMeasure,
		EnableTieredPricing: req.EnableTieredPricing,
		BaseRate:            req.BaseRate,
		MinimumUsage:        req.MinimumUsage,
		Tiers:               req.Tiers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fieldErrors := planValidationErrors(&plandomain.ValidationError{Fields: errs})
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"valid":  errs.OK(),
		"errors": fieldErrors,
	}})
}

func isPlanValidationError(err error) bool {
	switch err {
	case plandomain.ErrInvalidOrganization,
		plandomain.ErrInvalidCode,
		plandomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
