// Package admin implements the administrative object-store endpoints under
// /api/admin/audio/..., guarded by the same bearer-token verification as
// pkg/ticket's issuer (C11).
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"asrgateway/pkg/objectstore"
	"asrgateway/pkg/ticket"
)

const audioPrefix = "audio-sessions/"

// Verifier authenticates the bearer token presented to every admin endpoint.
type Verifier interface {
	Verify(token string) (subject string, err error)
}

// Handler serves the administrative audio endpoints. Mount its methods
// individually, or use Routes to get a ready-made *http.ServeMux.
type Handler struct {
	store    objectstore.Client
	verifier Verifier
}

// NewHandler constructs a Handler backed by store, guarded by verifier.
func NewHandler(store objectstore.Client, verifier Verifier) *Handler {
	return &Handler{store: store, verifier: verifier}
}

// Routes returns a ServeMux with every administrative endpoint registered
// at the paths enumerated in §6.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/audio/stats", h.withAuth(h.handleStats))
	mux.HandleFunc("/api/admin/audio/list", h.withAuth(h.handleList))
	mux.HandleFunc("/api/admin/audio/download", h.withAuth(h.handleDownload))
	mux.HandleFunc("/api/admin/audio/retention-sweep", h.withAuth(h.handleRetentionSweep))
	mux.HandleFunc("/api/admin/audio", h.withAuth(h.handleDelete))
	return mux
}

func (h *Handler) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if auth == "" || !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		if _, err := h.verifier.Verify(token); err != nil {
			if errors.Is(err, ticket.ErrTokenVerificationFailed) {
				writeJSONError(w, http.StatusUnauthorized, "Token verification failed")
				return
			}
			writeJSONError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r)
	}
}

type statsResponse struct {
	ObjectCount int   `json:"objectCount"`
	TotalBytes  int64 `json:"totalBytes"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	objs, err := h.store.List(r.Context(), audioPrefix)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list objects")
		return
	}
	resp := statsResponse{ObjectCount: len(objs)}
	for _, o := range objs {
		resp.TotalBytes += o.Size
	}
	writeJSON(w, http.StatusOK, resp)
}

type listEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	objs, err := h.store.List(r.Context(), audioPrefix)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list objects")
		return
	}

	entries := make([]listEntry, 0, len(objs))
	for _, o := range objs {
		if userID != "" {
			meta := o.Metadata
			if meta == nil {
				head, err := h.store.Head(r.Context(), o.Key)
				if err != nil {
					continue
				}
				meta = head.Metadata
			}
			if meta["userId"] != userID {
				continue
			}
		}
		entries = append(entries, listEntry{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "missing key")
		return
	}
	body, err := h.store.Get(r.Context(), key)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "object not found")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key))
	w.Write(body)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "missing key")
		return
	}
	if err := h.store.Delete(r.Context(), key); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to delete object")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retentionSweepRequest struct {
	MaxAgeDays int `json:"maxAgeDays"`
}

type retentionSweepResponse struct {
	Deleted int      `json:"deleted"`
	Keys    []string `json:"keys"`
}

func (h *Handler) handleRetentionSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req retentionSweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxAgeDays < 1 || req.MaxAgeDays > 365 {
		writeJSONError(w, http.StatusBadRequest, "maxAgeDays must be between 1 and 365")
		return
	}

	cutoff := time.Now().Add(-time.Duration(req.MaxAgeDays) * 24 * time.Hour)

	objs, err := h.store.List(r.Context(), audioPrefix)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list objects")
		return
	}

	resp := retentionSweepResponse{Keys: []string{}}
	for _, o := range objs {
		uploadedAt := o.LastModified
		meta := o.Metadata
		if meta == nil {
			head, err := h.store.Head(r.Context(), o.Key)
			if err == nil {
				meta = head.Metadata
			}
		}
		if meta != nil {
			if ts, err := time.Parse(time.RFC3339Nano, meta["uploadedAt"]); err == nil {
				uploadedAt = ts
			}
		}
		if uploadedAt.After(cutoff) {
			continue
		}
		if err := h.store.Delete(r.Context(), o.Key); err != nil {
			continue
		}
		resp.Deleted++
		resp.Keys = append(resp.Keys, o.Key)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
