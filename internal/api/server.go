// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/quillbox/quillbox/internal/config"
	"github.com/quillbox/quillbox/internal/events"
	"github.com/quillbox/quillbox/internal/logging"
	"github.com/quillbox/quillbox/internal/metrics"
	"github.com/quillbox/quillbox/internal/pathsafe"
	"github.com/quillbox/quillbox/internal/ratelimit"
	"github.com/quillbox/quillbox/internal/sftpgate"
	"github.com/quillbox/quillbox/internal/token"
)

// Error codes returned in the JSON envelope.
const (
	codeMissingPath      = "MISSING_PATH"
	codeMissingParameter = "MISSING_PARAMETER"
	codeInvalidPath      = "INVALID_PATH"
	codeInvalidPassword  = "INVALID_PASSWORD"
	codeFileNotFound     = "FILE_NOT_FOUND"
	codeDirNotFound      = "DIR_NOT_FOUND"
	codeFileExists       = "FILE_EXISTS"
	codeDirNotEmpty      = "DIR_NOT_EMPTY"
	codeAuthRequired     = "AUTH_REQUIRED"
	codeAuthInvalid      = "AUTH_INVALID"
	codeServerError      = "SERVER_ERROR"
	codeNotConfigured    = "SFTP_NOT_CONFIGURED"
	codeRateLimited      = "RATE_LIMITED"
)

// Store is the remote filesystem surface the handlers operate on. All
// paths are remote paths, already resolved under the configured root.
// Implemented by *sftpgate.Gateway.
type Store interface {
	List(ctx context.Context, dir string) ([]sftpgate.Entry, error)
	Read(ctx context.Context, p string) ([]byte, sftpgate.Entry, error)
	Write(ctx context.Context, p string, data []byte) error
	Append(ctx context.Context, p string, data []byte) error
	Exists(ctx context.Context, p string) (sftpgate.Kind, error)
	Mkdir(ctx context.Context, p string, recursive bool) error
	Delete(ctx context.Context, p string) error
	Rmdir(ctx context.Context, p string, recursive bool) error
	Rename(ctx context.Context, from, to string) error
	Walk(ctx context.Context, dir string, fn func(remotePath string, e sftpgate.Entry) bool) error
}

// Server is the HTTP server.
type Server struct {
	config      *config.Config
	root        string // SFTPRoot with any trailing slash stripped
	tokens      *token.Service
	store       Store
	broadcaster *events.Broadcaster
	limiter     *ratelimit.Limiter
}

// NewServer creates a new server.
func NewServer(cfg *config.Config, tokens *token.Service, store Store, broadcaster *events.Broadcaster, limiter *ratelimit.Limiter) *Server {
	root := strings.TrimSuffix(cfg.SFTPRoot, "/")
	if root == "" {
		root = "/"
	}
	return &Server{
		config:      cfg,
		root:        root,
		tokens:      tokens,
		store:       store,
		broadcaster: broadcaster,
		limiter:     limiter,
	}
}

// Handler returns the HTTP handler with auth, CORS, logging and metrics
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)

	// Serve endpoint does its own auth (share token or session)
	mux.HandleFunc("GET /api/serve", s.handleServe)

	// Session-protected file operations
	files := http.NewServeMux()
	files.HandleFunc("GET /api/files/list", s.handleList)
	files.HandleFunc("GET /api/files/read", s.handleRead)
	files.HandleFunc("POST /api/files/create", s.handleCreate)
	files.HandleFunc("PUT /api/files/update", s.handleUpdate)
	files.HandleFunc("POST /api/files/upload", s.handleUpload)
	files.HandleFunc("DELETE /api/files/delete", s.handleDelete)
	files.HandleFunc("POST /api/files/rename", s.handleRename)
	files.HandleFunc("POST /api/files/dir/create", s.handleMkdir)
	files.HandleFunc("GET /api/files/search", s.handleSearch)
	files.HandleFunc("POST /api/files/share", s.handleShare)
	files.HandleFunc("GET /api/files/events", s.handleEvents)
	mux.Handle("/api/files/", s.requireSession(files))

	return metrics.Middleware(logging.Middleware(s.corsMiddleware(mux)))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── Auth middleware ────────────────────────────────────────────────────────

// extractToken pulls a token from the Authorization header or, failing
// that, the token query parameter.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}

// requireSession rejects requests without a valid session token. Share
// tokens are only honored by the serve endpoint, and refresh tokens
// only by the refresh endpoint, never here.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := extractToken(r)
		if tok == "" {
			s.sendError(w, http.StatusUnauthorized, codeAuthRequired, "authentication required")
			return
		}
		claims := s.tokens.Verify(tok)
		if claims == nil || claims.IsShare() || claims.Subject == refreshSubject {
			s.sendError(w, http.StatusUnauthorized, codeAuthInvalid, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── CORS ───────────────────────────────────────────────────────────────────

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.config.CORSOrigin; origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ─── JSON envelope ──────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, status int, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

// ─── Path resolution and error mapping ──────────────────────────────────────

// resolvePath normalizes a raw client path and maps it under the SFTP
// root. An empty raw path is an error so handlers can distinguish a
// missing parameter from the root directory.
func (s *Server) resolvePath(raw string) (logical, remote string, err error) {
	logical, err = pathsafe.Normalize(raw)
	if err != nil {
		return "", "", err
	}
	remote, err = pathsafe.ToRemote(logical, s.root)
	if err != nil {
		return "", "", err
	}
	return logical, remote, nil
}

// sendStoreError maps a gateway error onto the envelope. notFound lets
// directory endpoints report DIR_NOT_FOUND while file endpoints report
// FILE_NOT_FOUND for the same gateway error.
func (s *Server) sendStoreError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case sftpgate.IsNotFound(err):
		s.sendError(w, http.StatusNotFound, notFound, "path does not exist")
	case sftpgate.IsNotEmpty(err):
		s.sendError(w, http.StatusBadRequest, codeDirNotEmpty, "directory not empty")
	case errors.Is(err, sftpgate.ErrNotConfigured):
		// Operator action required, not a transient failure.
		s.sendError(w, http.StatusInternalServerError, codeNotConfigured, "remote store not configured")
	default:
		logging.Error("remote store operation failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, codeServerError, "internal server error")
	}
}

// clientIP extracts the client address for rate limiting, without the
// port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
