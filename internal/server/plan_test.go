package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/planforge/internal/config"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"github.com/smallbiznis/planforge/internal/tierset"
)

type fakePlanService struct {
	createCalls   int
	updateCalls   int
	validateCalls int

	createErr   error
	updateErr   error
	validateRes tierset.Errors

	lastUpdate plandomain.UpdateRequest
}

func (f *fakePlanService) Create(ctx context.Context, req plandomain.CreateRequest) (*plandomain.Response, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &plandomain.Response{ID: "100", Code: req.Code, UnitOfMeasure: req.UnitOfMeasure}, nil
}

func (f *fakePlanService) Get(ctx context.Context, id string) (*plandomain.Response, error) {
	if id == "404" {
		return nil, plandomain.ErrNotFound
	}
	return &plandomain.Response{ID: id, Code: "storage"}, nil
}

func (f *fakePlanService) List(ctx context.Context) ([]plandomain.Response, error) {
	return []plandomain.Response{{ID: "100", Code: "storage"}}, nil
}

func (f *fakePlanService) Update(ctx context.Context, id string, req plandomain.UpdateRequest) (*plandomain.Response, error) {
	f.updateCalls++
	f.lastUpdate = req
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &plandomain.Response{ID: id, EnableTieredPricing: req.EnableTieredPricing}, nil
}

func (f *fakePlanService) ValidateConfig(ctx context.Context, id string, req plandomain.UpdateRequest) (tierset.Errors, error) {
	f.validateCalls++
	if f.validateRes != nil {
		return f.validateRes, nil
	}
	return tierset.Errors{}, nil
}

func newTestServer(svc plandomain.Service) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:  router,
		cfg:     config.Config{DefaultOrgID: 42},
		planSvc: svc,
	}
	srv.registerAPIRoutes()

	return srv, router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreatePlanHandler(t *testing.T) {
	svc := &fakePlanService{}
	_, router := newTestServer(svc)

	resp := doJSON(router, http.MethodPost, "/api/plans", `{"code":"storage","unit_of_measure":"GB"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.createCalls != 1 {
		t.Fatalf("expected create to be called once, got %d", svc.createCalls)
	}
}

func TestCreatePlanHandlerRejectsBadJSON(t *testing.T) {
	svc := &fakePlanService{}
	_, router := newTestServer(svc)

	resp := doJSON(router, http.MethodPost, "/api/plans", `{"code":`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if svc.createCalls != 0 {
		t.Fatal("create must not be called on malformed input")
	}
}

func TestUpdatePlanHandlerRendersFieldErrors(t *testing.T) {
	svc := &fakePlanService{
		updateErr: &plandomain.ValidationError{Fields: tierset.Errors{
			tierset.FieldTiers: {Code: tierset.CodeGap, Message: "Gap detected between Tier 1 and Tier 2. Tiers must be contiguous."},
		}},
	}
	_, router := newTestServer(svc)

	resp := doJSON(router, http.MethodPut, "/api/plans/100", `{"unit_of_measure":"GB","enable_tiered_pricing":true,"tiers":[]}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Error struct {
			Type   string `json:"type"`
			Errors []struct {
				Field string `json:"field"`
				Code  string `json:"code"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Type != "validation_error" {
		t.Fatalf("expected validation_error, got %q", payload.Error.Type)
	}
	if len(payload.Error.Errors) != 1 || payload.Error.Errors[0].Field != "tiers" || payload.Error.Errors[0].Code != "gap" {
		t.Fatalf("unexpected errors: %+v", payload.Error.Errors)
	}
}

func TestUpdatePlanHandlerDuplicateCodeConflict(t *testing.T) {
	svc := &fakePlanService{updateErr: plandomain.ErrDuplicateCode}
	_, router := newTestServer(svc)

	resp := doJSON(router, http.MethodPut, "/api/plans/100", `{"unit_of_measure":"GB"}`)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestGetPlanHandlerNotFound(t *testing.T) {
	_, router := newTestServer(&fakePlanService{})

	req := httptest.NewRequest(http.MethodGet, "/api/plans/404", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestValidatePlanConfigHandler(t *testing.T) {
	svc := &fakePlanService{validateRes: tierset.Errors{
		tierset.FieldTiers: {Code: tierset.CodeFirstTierNotZero, Message: "The first tier must start from 0."},
	}}
	_, router := newTestServer(svc)

	resp := doJSON(router, http.MethodPost, "/api/plans/100/validate", `{"unit_of_measure":"GB","enable_tiered_pricing":true,"tiers":[{"from_amount":50,"rate":1}]}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Data struct {
			Valid  bool `json:"valid"`
			Errors []struct {
				Field string `json:"field"`
				Code  string `json:"code"`
			} `json:"errors"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Valid {
		t.Fatal("expected invalid result")
	}
	if len(payload.Data.Errors) != 1 || payload.Data.Errors[0].Code != "first_tier_not_zero" {
		t.Fatalf("unexpected errors: %+v", payload.Data.Errors)
	}
}

func TestOrgContextHeaderOverridesDefault(t *testing.T) {
	svc := &fakePlanService{}
	_, router := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	req.Header.Set(HeaderOrg, "not-a-snowflake")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed org header, got %d", resp.Code)
	}
}

func TestOrgContextRequiredWithoutDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv := &Server{
		engine:  router,
		cfg:     config.Config{},
		planSvc: &fakePlanService{},
	}
	srv.registerAPIRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when no organization can be resolved, got %d", resp.Code)
	}
}
