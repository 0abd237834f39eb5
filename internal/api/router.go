package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/internal/websocket"
	"github.com/yegors/co-gcs/pkg/logger"
)

// Router wires the HTTP routes
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
	config   *config.Config
	logger   *logger.Logger
}

func NewRouter(handler *Handler, wsServer *websocket.Server, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		handler:  handler,
		wsServer: wsServer,
		config:   cfg,
		logger:   log.Named("router"),
	}
}

// Routes returns the root handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(rt.cors)

	h := rt.handler
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/config", h.GetConfig)

		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", h.GetVehicles)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetVehicle)
				r.Get("/image", h.GetVehicleImage)
				r.Post("/image/request", h.RequestImage)
				r.Get("/events", h.GetVehicleEvents)
				r.Post("/calibration", h.StartVehicleCalibration)
				r.Delete("/calibration", h.StopVehicleCalibration)
				r.Post("/home", h.SetHome)
			})
		})

		r.Route("/input-calibration", func(r chi.Router) {
			r.Post("/", h.StartInputCalibration)
			r.Get("/{sid}", h.GetInputCalibration)
			r.Post("/{sid}/axes", h.InputCalibrationAxes)
			r.Post("/{sid}/{action:next|skip|cancel}", h.InputCalibrationButton)
		})
	})

	if rt.wsServer != nil {
		r.Get("/ws", rt.wsServer.HandleConnection)
	}

	if dir := rt.config.Server.StaticFilesDir; dir != "" {
		r.Handle("/*", NewStaticFileHandler(dir, rt.logger))
	}
	return r
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)))
	})
}

func (rt *Router) cors(next http.Handler) http.Handler {
	allowed := rt.config.Server.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
