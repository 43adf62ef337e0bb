package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIVersion is the route prefix version.
const APIVersion = "v1"

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "URLNotFound", "no route for "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method+" not allowed on "+r.URL.Path, nil)
	})

	r.Route("/api/"+APIVersion, func(r chi.Router) {
		r.Get("/test", s.handleTest)
		r.Get("/version", s.handleVersion)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/config", s.handleConfig)

			r.Route("/plugins", func(r chi.Router) {
				r.Get("/", s.handlePlugins)
				r.Post("/", s.handleRegisterPlugin)
				r.Get("/health", s.handlePluginHealth)
			})

			r.Get("/scan", s.handleScan)
			r.Get("/scan/{rack}", s.handleScan)
			r.Get("/scan/{rack}/{board}", s.handleScan)

			r.Get("/read/{rack}/{board}/{device}", s.handleRead)
			r.Post("/write/{rack}/{board}/{device}", s.handleWrite)

			r.Get("/transaction", s.handleTransactions)
			r.Get("/transaction/{id}", s.handleTransaction)

			r.Get("/info/{rack}", s.handleRackInfo)
			r.Get("/info/{rack}/{board}", s.handleBoardInfo)
			r.Get("/info/{rack}/{board}/{device}", s.handleDeviceInfo)

			if s.audit != nil {
				r.Get("/audit", s.handleAudit)
			}
			if s.processes != nil {
				r.Get("/processes", s.handleProcesses)
			}

			r.Get("/stream", s.handleStream)
		})
	})

	return r
}
