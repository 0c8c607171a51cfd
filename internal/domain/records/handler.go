package records

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/secondopinion/secondopinion/internal/platform/auth"
	"github.com/secondopinion/secondopinion/pkg/pagination"
)

// Handler exposes the medical record endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPatientRoutes registers the patient-facing record endpoints.
func (h *Handler) RegisterPatientRoutes(g *echo.Group) {
	g.POST("/records", h.Upload, auth.RequireRole(auth.RolePatient))
	g.GET("/records", h.List, auth.RequireRole(auth.RolePatient))
	g.GET("/dashboard", h.Dashboard, auth.RequireRole(auth.RolePatient))
}

// RegisterSharedRoutes registers endpoints reachable by patients and doctors.
func (h *Handler) RegisterSharedRoutes(g *echo.Group) {
	g.GET("/records/:id/file", h.File)
}

func (h *Handler) Upload(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}

	contentType := fileHeader.Header.Get("Content-Type")

	rec, err := h.svc.Upload(c.Request().Context(), userID, UploadInput{
		Title:       c.FormValue("title"),
		Category:    c.FormValue("category"),
		ReportDate:  c.FormValue("reportDate"),
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		FileData:    data,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	p := pagination.FromContext(c)
	recs, total, err := h.svc.List(c.Request().Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing records failed")
	}
	if recs == nil {
		recs = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, p.Limit, p.Offset))
}

func (h *Handler) Dashboard(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	recs, stats, err := h.svc.Dashboard(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "dashboard failed")
	}
	if recs == nil {
		recs = []*Record{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"recentRecords": recs,
		"stats":         stats,
	})
}

func (h *Handler) File(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}

	rec, err := h.svc.Payload(ctx, recordID, userID, auth.RoleFromContext(ctx))
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "not allowed to access this record")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "loading record failed")
		}
	}

	c.Response().Header().Set("Content-Disposition", `inline; filename="`+rec.FileName+`"`)
	return c.Blob(http.StatusOK, rec.ContentType, rec.FileData)
}
