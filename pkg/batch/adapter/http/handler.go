// Package http exposes run requests and execution queries over a chi router.
package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	usecase "github.com/tigerroll/surfin-flow/pkg/batch/core/application/usecase"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunRequest is the body of POST /jobs/{name}/executions. Parameters holds JSON values;
// Args holds "name(type)=value" strings as accepted on the command line. Both may be
// combined, Args wins on conflicts.
type RunRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
	Args       []string               `json:"args"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the batch API.
type Handler struct {
	launcher usecase.JobLauncher
	operator usecase.JobOperator
	explorer usecase.JobExplorer
	registry *support.JobRegistry
	gatherer prometheus.Gatherer
}

// NewHandler creates a Handler. gatherer backs GET /metrics.
func NewHandler(
	launcher usecase.JobLauncher,
	operator usecase.JobOperator,
	explorer usecase.JobExplorer,
	registry *support.JobRegistry,
	gatherer prometheus.Gatherer,
) *Handler {
	return &Handler{
		launcher: launcher,
		operator: operator,
		explorer: explorer,
		registry: registry,
		gatherer: gatherer,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Route("/{name}", func(r chi.Router) {
			r.Post("/executions", h.runJob)
			r.Post("/next", h.startNextInstance)
			r.Get("/instances", h.listInstances)
			r.Get("/executions/running", h.listRunning)
		})
	})
	r.Route("/executions/{id}", func(r chi.Router) {
		r.Get("/", h.getExecution)
		r.Post("/stop", h.stopExecution)
		r.Post("/restart", h.restartExecution)
		r.Post("/abandon", h.abandonExecution)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Infof("HTTP %s %s -> %d (%s, request %s)", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"jobs": h.registry.Names()})
}

// runJob submits a run request. With ?wait=true the response carries the terminal
// execution; otherwise the execution is returned as soon as it is recorded.
func (h *Handler) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	params, err := decodeRunRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var je *model.JobExecution
	if r.URL.Query().Get("wait") == "true" {
		je, err = h.launcher.Run(r.Context(), name, params)
	} else {
		je, err = h.launcher.Launch(r.Context(), name, params)
	}
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, usecase.NewJobExecutionSummary(je))
}

func (h *Handler) startNextInstance(w http.ResponseWriter, r *http.Request) {
	je, err := h.operator.StartNextInstance(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, usecase.NewJobExecutionSummary(je))
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.explorer.FindJobInstances(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	type instanceView struct {
		ID         string    `json:"id"`
		JobName    string    `json:"jobName"`
		Parameters string    `json:"parameters"`
		CreateTime time.Time `json:"createTime"`
	}
	out := make([]instanceView, 0, len(instances))
	for _, in := range instances {
		out = append(out, instanceView{ID: in.ID, JobName: in.JobName, Parameters: in.Parameters.String(), CreateTime: in.CreateTime})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listRunning(w http.ResponseWriter, r *http.Request) {
	executions, err := h.explorer.FindRunningJobExecutions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	out := make([]usecase.JobExecutionSummary, 0, len(executions))
	for _, je := range executions {
		out = append(out, usecase.NewJobExecutionSummary(je))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	je, err := h.explorer.GetJobExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, usecase.NewJobExecutionSummary(je))
}

func (h *Handler) stopExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.operator.Stop(r.Context(), id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	h.getExecution(w, r)
}

func (h *Handler) restartExecution(w http.ResponseWriter, r *http.Request) {
	je, err := h.operator.Restart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, usecase.NewJobExecutionSummary(je))
}

func (h *Handler) abandonExecution(w http.ResponseWriter, r *http.Request) {
	je, err := h.operator.Abandon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, usecase.NewJobExecutionSummary(je))
}

// number is the decoded form of a JSON number under UseNumber.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
}

func decodeRunRequest(body io.Reader) (model.JobParameters, error) {
	params := model.NewJobParameters()
	raw, err := io.ReadAll(body)
	if err != nil {
		return params, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return params, nil
	}

	var req RunRequest
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		return params, exception.NewConfigurationError("http", "invalid run request: %v", err)
	}
	for k, v := range req.Parameters {
		if n, ok := v.(number); ok {
			if i, err := n.Int64(); err == nil {
				params.Put(k, i)
				continue
			}
			f, err := n.Float64()
			if err != nil {
				return params, exception.NewConfigurationError("http", "invalid number for parameter %q", k)
			}
			params.Put(k, f)
			continue
		}
		params.Put(k, v)
	}
	parsed, err := model.ParseJobParameters(req.Args)
	if err != nil {
		return params, err
	}
	for k, v := range parsed.Params {
		params.Put(k, v)
	}
	return params, nil
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, exception.ErrJobNotFound),
		errors.Is(err, repository.ErrJobExecutionNotFound),
		errors.Is(err, repository.ErrJobInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrJobInstanceAlreadyComplete),
		errors.Is(err, exception.ErrJobExecutionAlreadyRunning),
		errors.Is(err, exception.ErrJobExecutionNotRunning),
		errors.Is(err, exception.ErrJobInstanceClaimed):
		return http.StatusConflict
	case errors.Is(err, exception.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("HTTP: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Errorf("HTTP: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
