package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router uses the standard library http.ServeMux; each handler dispatches its own sub-paths.
type Router struct {
	mux     *http.ServeMux
	auth    *Authenticator
	metrics *Metrics
	logger  *zap.Logger
}

// NewRouter builds a router. metrics may be nil.
func NewRouter(auth *Authenticator, metrics *Metrics, logger *zap.Logger) *Router {
	return &Router{
		mux:     http.NewServeMux(),
		auth:    auth,
		metrics: metrics,
		logger:  logger,
	}
}

// Handle registers an unauthenticated route.
func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	if r.metrics != nil {
		h = r.metrics.Instrument(pattern, h)
	}
	r.mux.HandleFunc(pattern, h)
}

// HandleAuth registers a route that requires a bearer token.
func (r *Router) HandleAuth(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, r.auth.Wrap(h))
}

// HandleHandler registers a plain http.Handler (e.g. /metrics).
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) RegisterUserRoutes(h *UserHandler) {
	r.HandleAuth("/api/v1/me", h.ServeHTTP)
	r.HandleAuth("/api/v1/users", h.ServeHTTP)
	r.HandleAuth("/api/v1/users/", h.ServeHTTP)
}

func (r *Router) RegisterAlertRoutes(h *AlertHandler) {
	r.HandleAuth("/api/v1/alerts", h.ServeHTTP)
	r.HandleAuth("/api/v1/alerts/", h.ServeHTTP)
}

func (r *Router) RegisterVehicleRoutes(h *VehicleHandler) {
	r.HandleAuth("/api/v1/vehicles/", h.ServeHTTP)
}

func (r *Router) RegisterItemRoutes(h *ItemHandler) {
	r.HandleAuth("/api/v1/locations/", h.ServeHTTP)
	r.HandleAuth("/api/v1/items/", h.ServeHTTP)
}

func (r *Router) RegisterAuditRoutes(h *AuditHandler) {
	r.HandleAuth("/api/v1/audit", h.ServeHTTP)
}

func (r *Router) RegisterCalibrationRoutes(h *CalibrationHandler) {
	r.HandleAuth("/api/v1/calibration", h.ServeHTTP)
	r.HandleAuth("/api/v1/calibration/", h.ServeHTTP)
}

func (r *Router) RegisterTrainingRoutes(h *TrainingHandler) {
	r.HandleAuth("/api/v1/training", h.ServeHTTP)
	r.HandleAuth("/api/v1/training/", h.ServeHTTP)
}

func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.Handle("/healthz", h.ServeHTTP)
}
