package httpapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesargomez89/spotdown/internal/app"
	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/realtime"
)

type Handler struct {
	Tasks  *app.TaskService
	Hub    *realtime.Hub
	Logger *logger.Logger

	// Files serves locally stored artifacts. It stays nil with an object store.
	Files   http.Handler
	Metrics http.Handler
}

func NewHandler(tasks *app.TaskService, hub *realtime.Hub, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		Tasks:  tasks,
		Hub:    hub,
		Logger: log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", h.SubmitTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Get("/tasks/{id}/tracks", h.ListTracks)
		r.Get("/tasks/{id}/events", h.StreamEvents)
		r.Get("/failures", h.RecentFailures)
	})

	if h.Files != nil {
		r.Handle(constants.FilesRoutePath+"/*", http.StripPrefix(constants.FilesRoutePath, h.Files))
	}
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}
