package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/upload", func(r chi.Router) {
			r.Post("/", h.UploadLogFile)
			r.Get("/", h.ListLogFiles)
			r.Get("/{id}", h.GetLogFile)
			r.Get("/{id}/sample", h.GetLogFileSample)
			r.Delete("/{id}", h.DeleteLogFile)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/generate", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{id}", h.GetJob)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Get("/job/{jobID}", h.GetRuleByJob)
			r.Get("/{id}", h.GetRule)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeleteRule)
		})

		r.Route("/corpus", func(r chi.Router) {
			r.Post("/scan", h.ScanCorpus)
			r.Get("/", h.ListCorpusRules)
			r.Get("/statistics", h.CorpusStatistics)
			r.Get("/conflicts", h.CorpusConflicts)
			r.Get("/heatmap", h.CorpusHeatmap)
			r.Get("/id-suggestion", h.SuggestCorpusIDs)
			r.Get("/{ruleID}", h.GetCorpusRule)
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
