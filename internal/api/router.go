package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(apiHandler *APIHandler, hub *Hub, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Diagram source, theme and rendering
		r.Get("/diagram", apiHandler.GetDiagramHandler)
		r.Put("/diagram", apiHandler.UpdateDiagramHandler)
		r.Put("/diagram/theme", apiHandler.UpdateThemeHandler)
		r.Post("/diagram/render", apiHandler.RenderDiagramHandler)
		r.Get("/themes", apiHandler.ListThemesHandler)

		// AI settings and generation
		r.Get("/settings/ai", apiHandler.GetAISettingsHandler)
		r.Put("/settings/ai", apiHandler.UpdateAISettingsHandler)
		r.Get("/ai/models", apiHandler.ListModelsHandler)
		r.Post("/ai/generate", apiHandler.GenerateHandler)
		r.Post("/ai/fetch-url", apiHandler.FetchURLHandler)

		// Snapshots
		r.Get("/history", apiHandler.ListHistoryHandler)
		r.Post("/history", apiHandler.CreateHistoryHandler)
		r.Delete("/history/{id}", apiHandler.DeleteHistoryHandler)
		r.Post("/history/{id}/load", apiHandler.LoadHistoryHandler)

		r.Get("/examples", apiHandler.ListExamplesHandler)
		r.Post("/examples/{name}/load", apiHandler.LoadExampleHandler)

		r.Post("/export", apiHandler.ExportHandler)

		// Pan/zoom
		r.Get("/view", apiHandler.GetViewHandler)
		r.Post("/view/{action}", apiHandler.ViewActionHandler)

		// Transient UI flags
		r.Get("/ui", apiHandler.GetUIHandler)
		r.Post("/ui/modal", apiHandler.OpenModalHandler)
		r.Delete("/ui/modal", apiHandler.CloseModalHandler)
		r.Put("/ui/tab", apiHandler.SetTabHandler)

		if hub != nil {
			r.Get("/live", hub.ServeHTTP)
		}
	})

	return r
}
