package api

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/quillbox/quillbox/internal/metrics"
	"github.com/quillbox/quillbox/internal/pathsafe"
	"github.com/quillbox/quillbox/internal/sftpgate"
)

// Static extension table so served content types do not depend on the
// host's mime database.
var mimeTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".json":  "application/json",
	".xml":   "application/xml",
	".txt":   "text/plain; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".csv":   "text/csv; charset=utf-8",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".wasm":  "application/wasm",
}

func contentTypeFor(p string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// handleServe delivers file content to browsers. It accepts either a
// share token bound to the requested path (or a sibling in the same
// directory, so shared HTML pages can load their assets) or a regular
// session token. Share tokens are checked first; the first authorization
// that succeeds wins.
func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		metrics.RecordServeRequest("none", http.StatusBadRequest)
		s.sendError(w, http.StatusBadRequest, codeMissingPath, "path parameter required")
		return
	}

	logical, err := pathsafe.Normalize(raw)
	if err != nil {
		metrics.RecordServeRequest("none", http.StatusForbidden)
		s.sendError(w, http.StatusForbidden, codeInvalidPath, "invalid path")
		return
	}

	tok := extractToken(r)
	authMode := s.authorizeServe(tok, logical)
	if authMode == "" {
		metrics.RecordServeRequest("none", http.StatusUnauthorized)
		s.sendError(w, http.StatusUnauthorized, codeAuthRequired, "authentication required")
		return
	}

	remote, err := pathsafe.ToRemote(logical, s.root)
	if err != nil {
		metrics.RecordServeRequest(authMode, http.StatusForbidden)
		s.sendError(w, http.StatusForbidden, codeInvalidPath, "invalid path")
		return
	}

	data, _, err := s.store.Read(r.Context(), remote)
	if err != nil {
		if sftpgate.IsNotFound(err) {
			metrics.RecordServeRequest(authMode, http.StatusNotFound)
		} else {
			metrics.RecordServeRequest(authMode, http.StatusInternalServerError)
		}
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	contentType := contentTypeFor(logical)
	if strings.HasPrefix(contentType, "text/html") {
		data = rewriteHTML(data, pathsafe.Dir(logical), tok)
		metrics.RecordHTMLRewrite()
	}

	metrics.RecordServeRequest(authMode, http.StatusOK)
	metrics.RecordContentServed(int64(len(data)))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// authorizeServe returns "share", "session" or "" depending on which
// credential, if any, grants access to logical.
func (s *Server) authorizeServe(tok, logical string) string {
	claims := s.tokens.Verify(tok)
	if claims == nil {
		return ""
	}
	if claims.IsShare() {
		if claims.Path == logical {
			return "share"
		}
		// A shared page may fetch assets that sit next to it, but
		// nothing outside its own directory.
		if pathsafe.Dir(claims.Path) == pathsafe.Dir(logical) {
			return "share"
		}
		return ""
	}
	// Refresh tokens mint new sessions; they are not sessions.
	if claims.Subject == refreshSubject {
		return ""
	}
	return "session"
}
