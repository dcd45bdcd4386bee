package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quillbox/quillbox/internal/events"
	"github.com/quillbox/quillbox/internal/logging"
	"github.com/quillbox/quillbox/internal/metrics"
	"github.com/quillbox/quillbox/internal/pathsafe"
	"github.com/quillbox/quillbox/internal/sftpgate"
)

// entryPayload is one row of a listing or search response.
func entryPayload(logical string, e sftpgate.Entry) map[string]any {
	kind := "file"
	if e.IsDir {
		kind = "directory"
	}
	return map[string]any{
		"name":       e.Name,
		"path":       logical,
		"type":       kind,
		"size":       e.Size,
		"modifiedAt": e.ModTime.UTC().Format(time.RFC3339),
	}
}

// logicalFromRemote maps a remote path back under the logical root.
// The result always carries a leading slash, including when the root is
// "/" itself.
func (s *Server) logicalFromRemote(remote string) string {
	rest := strings.TrimPrefix(remote, s.root)
	if rest == "" {
		return "/"
	}
	if !strings.HasPrefix(rest, "/") {
		return "/" + rest
	}
	return rest
}

// queryPath reads, normalizes and resolves the path query parameter,
// writing the error response itself on failure.
func (s *Server) queryPath(w http.ResponseWriter, r *http.Request) (logical, remote string, ok bool) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		s.sendError(w, http.StatusBadRequest, codeMissingPath, "path parameter required")
		return "", "", false
	}
	logical, remote, err := s.resolvePath(raw)
	if err != nil {
		s.sendError(w, http.StatusForbidden, codeInvalidPath, "invalid path")
		return "", "", false
	}
	return logical, remote, true
}

// bodyPath resolves a path taken from a decoded request body.
func (s *Server) bodyPath(w http.ResponseWriter, raw string) (logical, remote string, ok bool) {
	if raw == "" {
		s.sendError(w, http.StatusBadRequest, codeMissingPath, "path required")
		return "", "", false
	}
	logical, remote, err := s.resolvePath(raw)
	if err != nil {
		s.sendError(w, http.StatusForbidden, codeInvalidPath, "invalid path")
		return "", "", false
	}
	return logical, remote, true
}

func (s *Server) publish(eventType, path, target string, size int64) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(events.Event{
		Type:   eventType,
		Path:   path,
		Target: target,
		Size:   size,
	})
}

// ─── List ───────────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	logical, remote, ok := s.queryPath(w, r)
	if !ok {
		return
	}

	entries, err := s.store.List(r.Context(), remote)
	if err != nil {
		if sftpgate.IsNotFound(err) && logical == "/" {
			// First contact with an empty remote: create the root and
			// report an empty listing.
			if mkErr := s.store.Mkdir(r.Context(), remote, true); mkErr != nil {
				s.sendStoreError(w, mkErr, codeDirNotFound)
				return
			}
			s.sendJSON(w, http.StatusOK, map[string]any{"path": logical, "entries": []any{}})
			return
		}
		s.sendStoreError(w, err, codeDirNotFound)
		return
	}

	// Directories first, then case-insensitive lexical by name.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		a, b := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if a != b {
			return a < b
		}
		return entries[i].Name < entries[j].Name
	})

	payload := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		child, err := pathsafe.Join(logical, e.Name)
		if err != nil {
			continue
		}
		payload = append(payload, entryPayload(child, e))
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"path": logical, "entries": payload})
}

// ─── Read ───────────────────────────────────────────────────────────────────

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	logical, remote, ok := s.queryPath(w, r)
	if !ok {
		return
	}

	data, entry, err := s.store.Read(r.Context(), remote)
	if err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	sum := sha256.Sum256(data)
	metrics.RecordContentServed(int64(len(data)))
	s.sendJSON(w, http.StatusOK, map[string]any{
		"path":       logical,
		"content":    string(data),
		"checksum":   hex.EncodeToString(sum[:]),
		"size":       entry.Size,
		"modifiedAt": entry.ModTime.UTC().Format(time.RFC3339),
	})
}

// ─── Create ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	logical, remote, ok := s.bodyPath(w, req.Path)
	if !ok {
		return
	}

	// Existence check then write. A concurrent writer can still slip in
	// between the two calls; the second write wins.
	kind, err := s.store.Exists(r.Context(), remote)
	if err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}
	if kind != sftpgate.KindNone {
		s.sendError(w, http.StatusConflict, codeFileExists, "target already exists")
		return
	}

	if err := s.store.Write(r.Context(), remote, []byte(req.Content)); err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	metrics.RecordContentWritten(int64(len(req.Content)))
	s.publish(events.EventCreate, logical, "", int64(len(req.Content)))
	s.sendJSON(w, http.StatusOK, map[string]any{"path": logical, "size": len(req.Content)})
}

// ─── Update (text chunks) ───────────────────────────────────────────────────

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path        string `json:"path"`
		Content     string `json:"content"`
		ChunkIndex  int    `json:"chunkIndex"`
		TotalChunks int    `json:"totalChunks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	logical, remote, ok := s.bodyPath(w, req.Path)
	if !ok {
		return
	}

	s.writeChunk(w, r, logical, remote, []byte(req.Content), req.ChunkIndex, req.TotalChunks)
}

// ─── Upload (base64 chunks) ─────────────────────────────────────────────────

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path          string `json:"path"`
		ContentBase64 string `json:"contentBase64"`
		ChunkIndex    int    `json:"chunkIndex"`
		TotalChunks   int    `json:"totalChunks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	logical, remote, ok := s.bodyPath(w, req.Path)
	if !ok {
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "contentBase64 is not valid base64")
		return
	}
	if int64(len(data)) > s.config.MaxUploadSize {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter,
			fmt.Sprintf("chunk exceeds maximum upload size of %d bytes", s.config.MaxUploadSize))
		return
	}

	s.writeChunk(w, r, logical, remote, data, req.ChunkIndex, req.TotalChunks)
}

// writeChunk overwrites on the first chunk and appends on every later
// one. Chunks must arrive in order; there is no reassembly buffer.
func (s *Server) writeChunk(w http.ResponseWriter, r *http.Request, logical, remote string, data []byte, chunkIndex, totalChunks int) {
	var err error
	if chunkIndex <= 0 {
		err = s.store.Write(r.Context(), remote, data)
	} else {
		err = s.store.Append(r.Context(), remote, data)
	}
	if err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	metrics.RecordContentWritten(int64(len(data)))
	if totalChunks <= 1 || chunkIndex >= totalChunks-1 {
		s.publish(events.EventModify, logical, "", int64(len(data)))
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"path":       logical,
		"chunkIndex": chunkIndex,
		"written":    len(data),
	})
}

// ─── Delete ─────────────────────────────────────────────────────────────────

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	logical, remote, ok := s.bodyPath(w, req.Path)
	if !ok {
		return
	}

	kind, err := s.store.Exists(r.Context(), remote)
	if err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	switch kind {
	case sftpgate.KindNone:
		s.sendError(w, http.StatusNotFound, codeFileNotFound, "path does not exist")
		return
	case sftpgate.KindDir:
		err = s.store.Rmdir(r.Context(), remote, req.Recursive)
	default:
		err = s.store.Delete(r.Context(), remote)
	}
	if err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	s.publish(events.EventDelete, logical, "", 0)
	s.sendJSON(w, http.StatusOK, map[string]any{"path": logical})
}

// ─── Rename ─────────────────────────────────────────────────────────────────

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	fromLogical, fromRemote, ok := s.bodyPath(w, req.From)
	if !ok {
		return
	}
	toLogical, toRemote, ok := s.bodyPath(w, req.To)
	if !ok {
		return
	}

	if err := s.store.Rename(r.Context(), fromRemote, toRemote); err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}

	s.publish(events.EventRename, fromLogical, toLogical, 0)
	s.sendJSON(w, http.StatusOK, map[string]any{"from": fromLogical, "to": toLogical})
}

// ─── Mkdir ──────────────────────────────────────────────────────────────────

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	logical, remote, ok := s.bodyPath(w, req.Path)
	if !ok {
		return
	}

	if err := s.store.Mkdir(r.Context(), remote, true); err != nil {
		s.sendStoreError(w, err, codeDirNotFound)
		return
	}

	s.publish(events.EventMkdir, logical, "", 0)
	s.sendJSON(w, http.StatusOK, map[string]any{"path": logical})
}

// ─── Search ─────────────────────────────────────────────────────────────────

const searchLimitMax = 200

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len(query) < 2 {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "query must be at least 2 characters")
		return
	}

	limit := s.config.SearchMaxResults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > searchLimitMax {
		limit = searchLimitMax
	}

	needle := strings.ToLower(query)
	start := time.Now()
	results := make([]map[string]any, 0, 16)
	err := s.store.Walk(r.Context(), s.root, func(remotePath string, e sftpgate.Entry) bool {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			results = append(results, entryPayload(s.logicalFromRemote(remotePath), e))
		}
		return len(results) < limit
	})
	if err != nil {
		s.sendStoreError(w, err, codeDirNotFound)
		return
	}

	metrics.RecordSearch(time.Since(start))
	logging.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	s.sendJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

// ─── Share ──────────────────────────────────────────────────────────────────

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		ExpiresIn string `json:"expiresIn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	logical, remote, ok := s.bodyPath(w, req.Path)
	if !ok {
		return
	}
	if req.ExpiresIn == "" {
		req.ExpiresIn = "24h"
	}

	kind, err := s.store.Exists(r.Context(), remote)
	if err != nil {
		s.sendStoreError(w, err, codeFileNotFound)
		return
	}
	if kind == sftpgate.KindNone {
		s.sendError(w, http.StatusNotFound, codeFileNotFound, "path does not exist")
		return
	}

	tok, expiresAt, err := s.tokens.IssueShare(logical, req.ExpiresIn)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid expiresIn")
		return
	}

	base := s.config.PublicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	shareURL := base + "/api/serve?path=" + url.QueryEscape(logical) + "&token=" + tok

	metrics.RecordShareTokenIssued()
	payload := map[string]any{
		"shareUrl": shareURL,
		"token":    tok,
		"path":     logical,
	}
	if !expiresAt.IsZero() {
		payload["expiresAt"] = expiresAt.UTC().Format(time.RFC3339)
	}
	s.sendJSON(w, http.StatusOK, payload)
}

// ─── SSE events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, codeServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broadcaster.Subscribe()
	defer func() {
		s.broadcaster.Unsubscribe(ch)
		metrics.SetSSEConnectionsActive(int64(s.broadcaster.Count()))
	}()
	metrics.SetSSEConnectionsActive(int64(s.broadcaster.Count()))

	// Initial comment so proxies start streaming immediately.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event := <-ch:
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
