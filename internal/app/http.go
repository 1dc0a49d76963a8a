package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pixelpet/internal/health"
	"pixelpet/internal/telemetry"
)

// newRouter wires the JSON API, metrics and health endpoints on one mux.
func newRouter(runtime *Runtime) http.Handler {
	router := chi.NewRouter()
	traceMode := telemetry.TraceMode()

	api := &apiHandlers{runtime: runtime}

	router.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Post("/auth/login", wrapHandlerFunc(traceMode, "login", api.login))
		apiRouter.Get("/state", wrapHandlerFunc(traceMode, "state", api.getState))
		apiRouter.Get("/pet", wrapHandlerFunc(traceMode, "pet", api.getPet))
		apiRouter.Post("/pet/adjust", wrapHandlerFunc(traceMode, "adjust_pet", api.adjustPet))
		apiRouter.Get("/projects", wrapHandlerFunc(traceMode, "projects", api.listProjects))
		apiRouter.Post("/projects", wrapHandlerFunc(traceMode, "add_project", api.addProject))
		apiRouter.Delete("/projects/{id}", wrapHandlerFunc(traceMode, "delete_project", api.deleteProject))
		apiRouter.Post("/projects/{id}/activate", wrapHandlerFunc(traceMode, "activate_project", api.activateProject))
		apiRouter.Post("/projects/{id}/sync", wrapHandlerFunc(traceMode, "sync_project", api.syncProject))
		apiRouter.Post("/sync", wrapHandlerFunc(traceMode, "sync_active", api.syncActive))
		apiRouter.Post("/simulate", wrapHandlerFunc(traceMode, "simulate_commit", api.simulateCommit))
		apiRouter.Get("/memories", wrapHandlerFunc(traceMode, "memories", api.listMemories))
		apiRouter.Post("/memories", wrapHandlerFunc(traceMode, "save_memory", api.saveMemory))
		apiRouter.Delete("/memories/{id}", wrapHandlerFunc(traceMode, "delete_memory", api.deleteMemory))
		apiRouter.Delete("/memories", wrapHandlerFunc(traceMode, "clear_memories", api.clearMemories))
	})

	healthHandler := health.NewHandler(runtime)
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", runtime.metrics.Handler()))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	return router
}

func wrapHandlerFunc(traceMode, route string, handler http.HandlerFunc) http.HandlerFunc {
	return wrapHTTPHandler(traceMode, route, handler).ServeHTTP
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("pixelpet/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
