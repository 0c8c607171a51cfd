package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/secondopinion/secondopinion/internal/platform/audit"
	"github.com/secondopinion/secondopinion/internal/platform/auth"
)

// Handler exposes the auth and profile endpoints.
type Handler struct {
	svc   *Service
	audit *audit.Recorder
}

func NewHandler(svc *Service, rec *audit.Recorder) *Handler {
	return &Handler{svc: svc, audit: rec}
}

// RegisterPublicRoutes registers the unauthenticated auth endpoints.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
}

// RegisterRoutes registers the authenticated profile endpoints.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/me", h.Me)
	g.PUT("/me/push-token", h.SavePushToken)
}

type registerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Mobile         string `json:"mobile"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
	MCINumber      string `json:"mciNumber"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.svc.Register(c.Request().Context(), RegisterInput{
		Name:           req.Name,
		Email:          req.Email,
		Mobile:         req.Mobile,
		Password:       req.Password,
		Role:           req.Role,
		Specialization: req.Specialization,
		MCINumber:      req.MCINumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrEmailTaken):
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
		}
	}

	h.audit.Record(c.Request().Context(), &u.ID, "USER_REGISTERED", c.RealIP(), c.Request().UserAgent())
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	u, token, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.audit.Record(ctx, nil, "LOGIN_FAILED", c.RealIP(), c.Request().UserAgent())
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	h.audit.Record(ctx, &u.ID, "LOGIN_SUCCESS", c.RealIP(), c.Request().UserAgent())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  u,
	})
}

func (h *Handler) Me(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	u, err := h.svc.Profile(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "profile lookup failed")
	}
	return c.JSON(http.StatusOK, u)
}

type pushTokenRequest struct {
	PushToken string `json:"pushToken"`
}

func (h *Handler) SavePushToken(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	var req pushTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.svc.SavePushToken(c.Request().Context(), userID, req.PushToken); err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "saving push token failed")
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}
