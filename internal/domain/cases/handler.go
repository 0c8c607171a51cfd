package cases

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/secondopinion/secondopinion/internal/platform/auth"
	"github.com/secondopinion/secondopinion/pkg/pagination"
)

// Handler exposes the review case endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPatientRoutes registers the patient-facing case endpoints.
func (h *Handler) RegisterPatientRoutes(g *echo.Group) {
	g.POST("/cases", h.Submit, auth.RequireRole(auth.RolePatient))
	g.GET("/cases", h.History, auth.RequireRole(auth.RolePatient))
	g.GET("/cases/:id", h.Get, auth.RequireRole(auth.RolePatient))
}

// RegisterDoctorRoutes registers the doctor-facing case endpoints.
func (h *Handler) RegisterDoctorRoutes(g *echo.Group) {
	g.GET("/cases/pending", h.Pending, auth.RequireRole(auth.RoleDoctor))
	g.GET("/cases/:id", h.Get, auth.RequireRole(auth.RoleDoctor))
	g.POST("/opinions", h.SubmitOpinion, auth.RequireRole(auth.RoleDoctor))
}

// RegisterAdminRoutes registers the admin case endpoints.
func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/cases/:id/cancel", h.Cancel, auth.RequireRole(auth.RoleAdmin))
}

// submitRequest accepts both the current and the legacy field name for the
// record list.
type submitRequest struct {
	RecordIDs []uuid.UUID `json:"recordIds"`
	ReportIDs []uuid.UUID `json:"reportIds"`
}

func (r submitRequest) normalized() []uuid.UUID {
	if len(r.RecordIDs) > 0 {
		return r.RecordIDs
	}
	return r.ReportIDs
}

func (h *Handler) Submit(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := h.svc.Submit(c.Request().Context(), userID, req.normalized())
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotOwner):
			return echo.NewHTTPError(http.StatusForbidden, "one or more records do not belong to you")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "submitting case failed")
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"caseId": created.ID,
		"status": created.Status,
	})
}

// opinionRequest accepts the current field names plus the legacy aliases
// (diagnosis for finalVerdict, summary for recommendations).
type opinionRequest struct {
	CaseID          uuid.UUID `json:"caseId"`
	FinalVerdict    string    `json:"finalVerdict"`
	Diagnosis       string    `json:"diagnosis"`
	Recommendations string    `json:"recommendations"`
	Summary         string    `json:"summary"`
}

func (r opinionRequest) verdict() string {
	if r.FinalVerdict != "" {
		return r.FinalVerdict
	}
	return r.Diagnosis
}

func (r opinionRequest) recommendations() string {
	if r.Recommendations != "" {
		return r.Recommendations
	}
	return r.Summary
}

func (h *Handler) SubmitOpinion(c echo.Context) error {
	doctorID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	var req opinionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CaseID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "caseId is required")
	}

	finalized, err := h.svc.Finalize(c.Request().Context(), req.CaseID, doctorID, req.verdict(), req.recommendations())
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrCaseClosed):
			return echo.NewHTTPError(http.StatusConflict, "case not found or already finalized")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "finalizing case failed")
		}
	}

	return c.JSON(http.StatusOK, finalized)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}

	found, err := h.svc.Get(ctx, caseID, userID, auth.RoleFromContext(ctx))
	if err != nil {
		switch {
		case errors.Is(err, ErrCaseNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		case errors.Is(err, ErrNotOwner):
			return echo.NewHTTPError(http.StatusForbidden, "not allowed to view this case")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "loading case failed")
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"case":  found,
		"steps": progressSteps(found.Status),
	})
}

// progressSteps derives the patient-facing progress indicator from the case
// status.
func progressSteps(status Status) map[string]bool {
	return map[string]bool{
		"submitted":            true,
		"aiAnalysisComplete":   status == StatusPendingDoctor || status == StatusCompleted,
		"doctorReviewComplete": status == StatusCompleted,
	}
}

func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	p := pagination.FromContext(c)
	list, total, err := h.svc.History(ctx, userID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing cases failed")
	}
	if list == nil {
		list = []*Case{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, p.Limit, p.Offset))
}

func (h *Handler) Pending(c echo.Context) error {
	list, err := h.svc.Pending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing pending cases failed")
	}
	if list == nil {
		list = []*Case{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"cases": list})
}

func (h *Handler) Cancel(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}

	if err := h.svc.Cancel(c.Request().Context(), caseID); err != nil {
		if errors.Is(err, ErrCaseClosed) {
			return echo.NewHTTPError(http.StatusConflict, "case not found or already closed")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cancelling case failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
