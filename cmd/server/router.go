package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/mediagate/internal/api"
	apiMiddleware "github.com/phrazzld/mediagate/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.taskService, app.webhookService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api/{kind}", func(r chi.Router) {
		// Provider callbacks carry no bearer token; the stored job
		// handle correlates and guards them instead.
		r.Post("/{taskID}/webhook", taskHandler.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/", taskHandler.SubmitTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/{taskID}", taskHandler.GetTask)
			r.Get("/{taskID}/result", taskHandler.GetTaskResult)
			r.Post("/{taskID}/restart", taskHandler.RestartTask)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
