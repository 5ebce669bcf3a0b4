package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joescharf/issuetracker/internal/logger"
	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/service"
)

const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	issues *service.IssueService
}

// NewServer creates a new API server.
func NewServer(svc *service.IssueService) *Server {
	return &Server{issues: svc}
}

// Router returns an http.Handler for the API routes. The project route is
// served with and without a trailing slash.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	for _, path := range []string{"/api/issues/{project}", "/api/issues/{project}/{$}"} {
		mux.HandleFunc("GET "+path, s.listIssues)
		mux.HandleFunc("POST "+path, s.createIssue)
		mux.HandleFunc("PUT "+path, s.updateIssue)
		mux.HandleFunc("DELETE "+path, s.deleteIssue)
	}

	mux.HandleFunc("GET /healthz", s.healthz)

	return logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithLogFields(r.Context(), logger.LogFields{Component: "api"})
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctx))

		slog.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// writeJSON writes v with status 200. Application errors use the same
// status and are reported in the body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	ID    string `json:"_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		writeJSON(w, errorBody{Error: svcErr.Message, ID: svcErr.ID})
		return
	}
	slog.ErrorContext(r.Context(), "unexpected error", "error", err)
	writeJSON(w, errorBody{Error: "internal error"})
}

// requestBody holds the request fields in string form. Falsy marks JSON
// false and 0, which count as absent for required inputs.
type requestBody struct {
	values map[string]string
	falsy  map[string]bool
}

// required returns the value of key, or "" when it was sent as a falsy
// JSON scalar.
func (b requestBody) required(key string) string {
	if b.falsy[key] {
		return ""
	}
	return b.values[key]
}

// readBody parses a JSON object or urlencoded form. A body that cannot be
// parsed is treated as empty.
func readBody(r *http.Request) requestBody {
	body := requestBody{values: map[string]string{}, falsy: map[string]bool{}}
	if r.Body == nil {
		return body
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(data) == 0 {
		return body
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(data))
		if err != nil {
			return body
		}
		body.values = firstValues(form)
		return body
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.DebugContext(r.Context(), "ignoring unparseable body", "error", err)
		return body
	}
	for k, v := range raw {
		if s, ok := stringify(v); ok {
			body.values[k] = s
		}
		if v == false || v == float64(0) {
			body.falsy[k] = true
		}
	}
	return body
}

// stringify converts a decoded JSON scalar to its string form. Null,
// objects and arrays are reported as absent.
func stringify(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func firstValues(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	issues, err := s.issues.List(r.Context(), project, firstValues(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, issues)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	body := readBody(r)

	issue, err := s.issues.Create(r.Context(), project, models.CreateInput{
		IssueTitle: body.required(models.FieldIssueTitle),
		IssueText:  body.required(models.FieldIssueText),
		CreatedBy:  body.required(models.FieldCreatedBy),
		AssignedTo: body.values[models.FieldAssignedTo],
		StatusText: body.values[models.FieldStatusText],
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	body := readBody(r)
	id := body.required(models.FieldID)
	delete(body.values, models.FieldID)

	res, err := s.issues.Update(r.Context(), id, body.values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	body := readBody(r)

	res, err := s.issues.Delete(r.Context(), body.required(models.FieldID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
