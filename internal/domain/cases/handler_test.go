package cases

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/secondopinion/secondopinion/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockCaseRepo, *mockRecordStore, *echo.Echo) {
	svc, caseRepo, recStore, _ := newTestService()
	return NewHandler(svc), caseRepo, recStore, echo.New()
}

func authedContext(e *echo.Echo, method, target, body string, userID uuid.UUID, role string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	ctx := req.Context()
	ctx = context.WithValue(ctx, auth.UserIDKey, userID.String())
	ctx = context.WithValue(ctx, auth.UserRoleKey, role)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Submit(t *testing.T) {
	h, _, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)

	body := `{"recordIds":["` + r1.String() + `"]}`
	c, rec := authedContext(e, http.MethodPost, "/", body, patientID, auth.RolePatient)

	if err := h.Submit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != string(StatusAIProcessing) {
		t.Errorf("expected AI_PROCESSING, got %q", resp["status"])
	}
}

func TestHandler_Submit_LegacyReportIDs(t *testing.T) {
	h, _, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)

	body := `{"reportIds":["` + r1.String() + `"]}`
	c, rec := authedContext(e, http.MethodPost, "/", body, patientID, auth.RolePatient)

	if err := h.Submit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_Submit_EmptyList(t *testing.T) {
	h, _, _, e := newTestHandler()
	c, _ := authedContext(e, http.MethodPost, "/", `{"recordIds":[]}`, uuid.New(), auth.RolePatient)

	err := h.Submit(c)
	if err == nil {
		t.Fatal("expected error for empty record list")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Submit_ForeignRecord(t *testing.T) {
	h, _, recStore, e := newTestHandler()
	foreign := recStore.add(uuid.New())

	body := `{"recordIds":["` + foreign.String() + `"]}`
	c, _ := authedContext(e, http.MethodPost, "/", body, uuid.New(), auth.RolePatient)

	err := h.Submit(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_SubmitOpinion_LegacyFieldNames(t *testing.T) {
	h, caseRepo, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)
	created, _ := h.svc.Submit(context.Background(), patientID, []uuid.UUID{r1})
	caseRepo.SetAnalysis(context.Background(), created.ID, FallbackAnalysis(time.Now()), PriorityNormal)

	body := `{"caseId":"` + created.ID.String() + `","diagnosis":"Stable","summary":"Rest and hydrate"}`
	c, rec := authedContext(e, http.MethodPost, "/", body, uuid.New(), auth.RoleDoctor)

	if err := h.SubmitOpinion(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var got Case
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.DoctorOpinion == nil || got.DoctorOpinion.FinalVerdict != "Stable" || got.DoctorOpinion.Recommendations != "Rest and hydrate" {
		t.Errorf("legacy field names not normalized: %+v", got.DoctorOpinion)
	}
}

func TestHandler_SubmitOpinion_Conflict(t *testing.T) {
	h, _, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)
	created, _ := h.svc.Submit(context.Background(), patientID, []uuid.UUID{r1})
	h.svc.Finalize(context.Background(), created.ID, uuid.New(), "v", "r")

	body := `{"caseId":"` + created.ID.String() + `","finalVerdict":"v2","recommendations":"r2"}`
	c, _ := authedContext(e, http.MethodPost, "/", body, uuid.New(), auth.RoleDoctor)

	err := h.SubmitOpinion(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_SubmitOpinion_MissingFields(t *testing.T) {
	h, _, _, e := newTestHandler()
	body := `{"caseId":"` + uuid.New().String() + `","finalVerdict":"only verdict"}`
	c, _ := authedContext(e, http.MethodPost, "/", body, uuid.New(), auth.RoleDoctor)

	err := h.SubmitOpinion(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Get_OwnerSeesSteps(t *testing.T) {
	h, _, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)
	created, _ := h.svc.Submit(context.Background(), patientID, []uuid.UUID{r1})

	c, rec := authedContext(e, http.MethodGet, "/", "", patientID, auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Steps map[string]bool `json:"steps"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Steps["submitted"] || resp.Steps["aiAnalysisComplete"] || resp.Steps["doctorReviewComplete"] {
		t.Errorf("unexpected steps for processing case: %v", resp.Steps)
	}
}

func TestHandler_Get_ForeignPatientForbidden(t *testing.T) {
	h, _, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)
	created, _ := h.svc.Submit(context.Background(), patientID, []uuid.UUID{r1})

	c, _ := authedContext(e, http.MethodGet, "/", "", uuid.New(), auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_Pending(t *testing.T) {
	h, caseRepo, recStore, e := newTestHandler()
	patientID := uuid.New()
	r1 := recStore.add(patientID)
	created, _ := h.svc.Submit(context.Background(), patientID, []uuid.UUID{r1})
	caseRepo.SetAnalysis(context.Background(), created.ID, FallbackAnalysis(time.Now()), PriorityNormal)

	c, rec := authedContext(e, http.MethodGet, "/", "", uuid.New(), auth.RoleDoctor)
	if err := h.Pending(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Cases []*Case `json:"cases"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Cases) != 1 {
		t.Errorf("expected 1 pending case, got %d", len(resp.Cases))
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, _, e := newTestHandler()
	patient := e.Group("/api/patient")
	doctor := e.Group("/api/doctor")
	admin := e.Group("/api/admin")
	h.RegisterPatientRoutes(patient)
	h.RegisterDoctorRoutes(doctor)
	h.RegisterAdminRoutes(admin)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}
	expected := []string{
		"POST:/api/patient/cases",
		"GET:/api/patient/cases",
		"GET:/api/patient/cases/:id",
		"GET:/api/doctor/cases/pending",
		"GET:/api/doctor/cases/:id",
		"POST:/api/doctor/opinions",
		"POST:/api/admin/cases/:id/cancel",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing expected route: %s", path)
		}
	}
}
