// Package blobserver is the demo application served over the HTTP/1.1
// protocol handler. It exposes a blob.Store as a small REST API:
//
//	GET    /blobs/{key}   fetch a blob (HEAD returns headers only)
//	PUT    /blobs/{key}   create or replace a blob
//	DELETE /blobs/{key}   remove a blob
//	GET    /healthz       liveness probe
//	GET    /stats         dispatcher counters as JSON
//
// Keys may contain slashes. Handlers run on dispatcher workers and may block
// on the store.
package blobserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/store/blob"
)

// StatsFunc returns a JSON-serializable snapshot of server counters.
type StatsFunc func() any

// Handler serves the blob API.
type Handler struct {
	store blob.Store
	stats StatsFunc
	mux   *http.ServeMux
}

// New creates a Handler for store. stats may be nil, in which case /stats
// returns 404.
func New(store blob.Store, stats StatsFunc) *Handler {
	if store == nil {
		panic("blobserver: nil store")
	}

	h := &Handler{
		store: store,
		stats: stats,
		mux:   http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /blobs/{key...}", h.getBlob)
	h.mux.HandleFunc("PUT /blobs/{key...}", h.putBlob)
	h.mux.HandleFunc("DELETE /blobs/{key...}", h.deleteBlob)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	if stats != nil {
		h.mux.HandleFunc("GET /stats", h.serveStats)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) getBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	data, err := h.store.Get(r.Context(), key)
	if err != nil {
		writeStoreError(w, "get", key, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) putBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	existed, err := h.store.Exists(r.Context(), key)
	if err != nil {
		writeStoreError(w, "put", key, err)
		return
	}

	if err := h.store.Put(r.Context(), key, data); err != nil {
		writeStoreError(w, "put", key, err)
		return
	}

	if existed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Location", "/blobs/"+key)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) deleteBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := h.store.Delete(r.Context(), key); err != nil {
		writeStoreError(w, "delete", key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) serveStats(w http.ResponseWriter, _ *http.Request) {
	data, err := json.Marshal(h.stats())
	if err != nil {
		logger.Error("blobserver: failed to encode stats: %v", err)
		http.Error(w, "failed to encode stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, op, key string, err error) {
	switch {
	case errors.Is(err, blob.ErrNotFound):
		http.Error(w, fmt.Sprintf("blob %q not found", key), http.StatusNotFound)
	case errors.Is(err, blob.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Warn("blobserver: %s %q failed: %v", op, key, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
