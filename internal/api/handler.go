package api

import (
	"log/slog"
	"net/http"

	"github.com/shaiso/Courier/internal/app"
	"github.com/shaiso/Courier/internal/task"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	app      *app.App
	registry *task.Registry
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	App *app.App

	// Registry — известные задачи для GET /tasks (опционально).
	Registry *task.Registry

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		app:      cfg.App,
		registry: cfg.Registry,
		logger:   logger,
	}
}

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks/{name}", chain(http.HandlerFunc(h.SendTask)))
	mux.Handle("GET /api/v1/results/{id}", chain(http.HandlerFunc(h.GetResult)))
}
