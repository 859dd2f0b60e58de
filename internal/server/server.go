// Package server exposes a Store over HTTP: the query endpoints a
// remote reader polls, and the sync endpoints internal/sync.Transport
// drives from a peer's HTTPTransport.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/scbrown/irs/internal/model"
	"github.com/scbrown/irs/internal/query"
	"github.com/scbrown/irs/internal/store"
	"github.com/scbrown/irs/internal/sync"
)

// Server wraps a store.Store and exposes it over HTTP.
type Server struct {
	store *store.Store
	mux   *http.ServeMux
	srv   *http.Server
}

// New creates a Server that delegates to s.
func New(s *store.Store) *Server {
	srv := &Server{store: s, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/invocations", s.handleListInvocations)
	s.mux.HandleFunc("GET /api/v1/invocations/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/v1/sync/{table}/ids", s.handleSyncIDs)
	s.mux.HandleFunc("GET /api/v1/sync/{table}/rows", s.handleSyncFetch)
	s.mux.HandleFunc("POST /api/v1/sync/{table}/rows", s.handleSyncPush)
	s.mux.HandleFunc("GET /api/v1/blobs/{hash}", s.handleBlobFetch)
	s.mux.HandleFunc("POST /api/v1/blobs/{hash}", s.handleBlobPush)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.srv.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.srv = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.srv.Serve(ln)
}

// Handler returns the HTTP handler, for use with httptest.Server.
func (s *Server) Handler() http.Handler { return s.mux }

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := query.Filter{
		SessionID: q.Get("session_id"),
		Status:    model.Status(q.Get("status")),
		Since:     q.Get("since"),
		Tag:       q.Get("tag"),
	}
	if lim := q.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid limit: %v", err)
			return
		}
		filter.Limit = n
	}

	invs, err := s.store.Query.ListInvocations(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "listing invocations: %v", err)
		return
	}
	if invs == nil {
		invs = []model.Invocation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := query.Filter{SessionID: q.Get("session_id"), Since: q.Get("since")}
	stats, err := s.store.Query.Stats(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "computing stats: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSyncIDs(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	q := r.URL.Query()
	ids, err := s.store.IDsSince(r.Context(), table, q.Get("since"), q.Get("client"), q.Get("tag"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "listing ids for %s: %v", table, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleSyncFetch(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	ids := r.URL.Query()["id"]
	rows, err := s.store.FetchRows(r.Context(), table, ids)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "fetching rows for %s: %v", table, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(rows)
}

func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	var rows json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeErr(w, http.StatusBadRequest, "decoding request body: %v", err)
		return
	}
	if err := s.store.UpsertRows(r.Context(), table, rows); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "writing rows for %s: %v", table, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlobFetch(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	payload, ok, err := s.store.ReadBlob(r.Context(), hash)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "reading blob %s: %v", hash, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Blob-Tier", string(payload.Tier))
	w.Header().Set("X-Blob-Storage-Path", payload.StoragePath)
	w.Header().Set("X-Blob-Byte-Length", strconv.FormatInt(payload.ByteLength, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(payload.Data)
}

func (s *Server) handleBlobPush(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "reading blob body: %v", err)
		return
	}
	byteLength, _ := strconv.ParseInt(r.Header.Get("X-Blob-Byte-Length"), 10, 64)
	payload := sync.BlobPayload{
		Hash:        hash,
		Tier:        model.StorageTier(r.Header.Get("X-Blob-Tier")),
		StoragePath: r.Header.Get("X-Blob-Storage-Path"),
		ByteLength:  byteLength,
		Data:        data,
	}
	if err := s.store.WriteBlob(r.Context(), payload); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "writing blob %s: %v", hash, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// writeErr writes a JSON error response.
func writeErr(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
