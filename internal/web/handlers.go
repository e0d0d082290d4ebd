package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/auth"
	"github.com/thavelick/insight-magician-sub000/internal/sqlcheck"
	"github.com/thavelick/insight-magician-sub000/internal/uploads"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

type chatRequest struct {
	Message      string                 `json:"message"`
	ChatHistory  []models.Message       `json:"chatHistory"`
	DatabasePath string                 `json:"databasePath"`
	Widgets      []models.WidgetSummary `json:"widgets"`
}

type chatResponse struct {
	Success bool `json:"success"`
	*agent.ChatResult
}

// handleChat runs one chat turn through the orchestrator.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	dbPath, err := s.resolveDatabasePath(req.DatabasePath)
	if err != nil {
		s.jsonError(w, "Invalid database path", http.StatusBadRequest)
		return
	}

	result, err := s.config.Orchestrator.Run(r.Context(), &agent.ChatRequest{
		Message:      req.Message,
		History:      req.ChatHistory,
		DatabasePath: dbPath,
		Widgets:      req.Widgets,
	})
	if err != nil {
		s.respondChatError(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, chatResponse{Success: true, ChatResult: result})
}

// respondChatError maps orchestrator failures onto the HTTP contract:
// invalid input 400, workflow timeout 408, provider failure 503 with a
// generic body, anything else 500.
func (s *Server) respondChatError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *agent.ValidationError
	var timeoutErr *agent.TimeoutError
	var providerErr *agent.ProviderError

	switch {
	case errors.As(err, &validationErr):
		s.jsonError(w, validationErr.Message, http.StatusBadRequest)
	case errors.As(err, &timeoutErr):
		s.jsonError(w, timeoutErr.Error(), http.StatusRequestTimeout)
	case errors.As(err, &providerErr):
		s.logger.Error(r.Context(), "provider failure",
			"code", string(providerErr.Code),
			"error", providerErr)
		s.jsonError(w, "AI service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error(r.Context(), "chat turn failed", "error", err)
		s.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// resolveDatabasePath maps the client-supplied database reference to a
// path under the uploads root. Clients send either a bare upload
// filename or a path ending in one; only the base name is trusted.
func (s *Server) resolveDatabasePath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return s.config.Uploads.Resolve(filepath.Base(raw))
}

type queryRequest struct {
	Filename string `json:"filename"`
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type queryResponse struct {
	Success bool `json:"success"`
	*models.QueryResult
}

// handleQuery runs a widget query directly, with server-side
// pagination.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.jsonError(w, "Query is required", http.StatusBadRequest)
		return
	}
	path, err := s.config.Uploads.Resolve(req.Filename)
	if err != nil {
		s.jsonError(w, "Invalid database filename", http.StatusBadRequest)
		return
	}
	if err := sqlcheck.Validate(req.Query, sqlcheck.ModeWidget); err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.config.Executor.Execute(r.Context(), path, req.Query, userdb.Options{
		Page:        req.Page,
		PageSize:    req.PageSize,
		MaxPageSize: userdb.MaxWidgetPageSize,
		Source:      "http",
	})
	if err != nil {
		s.respondQueryError(w, err)
		return
	}

	s.respond(w, http.StatusOK, queryResponse{Success: true, QueryResult: result})
}

type schemaResponse struct {
	Success bool           `json:"success"`
	Schema  *userdb.Schema `json:"schema"`
}

// handleSchema returns the full schema of one uploaded database.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, err := s.config.Uploads.Resolve(r.URL.Query().Get("filename"))
	if err != nil {
		s.jsonError(w, "Invalid database filename", http.StatusBadRequest)
		return
	}

	schema, err := s.config.Schema.ReadAll(r.Context(), path)
	if err != nil {
		s.respondQueryError(w, err)
		return
	}

	s.respond(w, http.StatusOK, schemaResponse{Success: true, Schema: schema})
}

// respondQueryError maps user-database failures for the direct /query
// and /schema endpoints. Missing files are 404, bad SQL or unknown
// identifiers 400, everything else 500.
func (s *Server) respondQueryError(w http.ResponseWriter, err error) {
	var queryErr *userdb.QueryError
	if errors.As(err, &queryErr) {
		switch queryErr.Kind {
		case userdb.KindOpenFailed:
			s.jsonError(w, "Database file not found", http.StatusNotFound)
			return
		case userdb.KindTableNotFound, userdb.KindColumnNotFound, userdb.KindSyntax:
			s.jsonError(w, queryErr.Err.Error(), http.StatusBadRequest)
			return
		}
	}
	s.jsonError(w, "Failed to execute query", http.StatusInternalServerError)
}

type uploadResponse struct {
	Success bool `json:"success"`
	*uploads.StoredDatabase
}

// handleUpload accepts a multipart database upload in the `database`
// field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Cap the whole request body at the file limit plus multipart
	// framing headroom.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Uploads.MaxBytes()+1<<20)

	file, header, err := r.FormFile("database")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.config.Metrics.RecordUpload("rejected")
			s.jsonError(w, "File exceeds the upload size limit", http.StatusRequestEntityTooLarge)
			return
		}
		s.jsonError(w, "Missing file field 'database'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	stored, err := s.config.Uploads.Store(r.Context(), header.Filename, file)
	if err != nil {
		s.config.Metrics.RecordUpload("rejected")
		switch {
		case errors.Is(err, uploads.ErrFileTooLarge):
			s.jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, uploads.ErrUnsupportedType), errors.Is(err, uploads.ErrNotSQLite):
			s.jsonError(w, err.Error(), http.StatusBadRequest)
		default:
			s.logger.Error(r.Context(), "upload failed", "error", err)
			s.jsonError(w, "Failed to store upload", http.StatusInternalServerError)
		}
		return
	}

	s.config.Metrics.RecordUpload("accepted")
	s.respond(w, http.StatusOK, uploadResponse{Success: true, StoredDatabase: stored})
}

type requestLinkRequest struct {
	Email string `json:"email"`
}

// handleRequestLink starts the magic-link flow.
func (s *Server) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req requestLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	err := s.config.Auth.RequestLink(r.Context(), req.Email)
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Check your email for a login link.",
		})
	case errors.Is(err, auth.ErrAuthDisabled):
		s.jsonError(w, "Authentication is not enabled", http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidEmail):
		s.jsonError(w, "A valid email address is required", http.StatusBadRequest)
	default:
		s.logger.Error(r.Context(), "failed to issue login link", "error", err)
		s.jsonError(w, "Failed to send login link", http.StatusInternalServerError)
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

// handleVerify completes the magic-link flow and returns a JWT.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	user, token, err := s.config.Auth.VerifyLink(r.Context(), req.Token)
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   token,
			"user":    user,
		})
	case errors.Is(err, auth.ErrAuthDisabled):
		s.jsonError(w, "Authentication is not enabled", http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidToken):
		s.jsonError(w, "Invalid or expired login link", http.StatusBadRequest)
	default:
		s.logger.Error(r.Context(), "login verification failed", "error", err)
		s.jsonError(w, "Failed to verify login link", http.StatusInternalServerError)
	}
}

// respond writes a JSON response.
func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error(context.Background(), "json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
