// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/crosswatch/internal/providers"
	"github.com/tomtom215/crosswatch/internal/snapshot"
	"github.com/tomtom215/crosswatch/internal/state"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(out)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleManifests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Manifests(s.deps()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.registry.AggregateHealth(r.Context(), s.deps())
	status := http.StatusOK
	for _, h := range health {
		if !h.OK && h.Status != providers.ReasonMissingConfig {
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, health)
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !providers.IsKnown(provider) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":  provider,
		"instances": s.registry.Instances(provider),
	})
}

// handleSync triggers reconciliation. With ?pair=<scope> only the
// matching pair runs; otherwise every enabled pair runs in declaration
// order. The request blocks until the runs finish; per-run deadlines
// come from sync.deadline.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("pair")

	if filter == "" {
		writeJSON(w, http.StatusOK, s.runner.RunAll(r.Context()))
		return
	}

	for _, pair := range s.cfg.Pairs {
		if pair.Scope() != filter {
			continue
		}
		results, err := s.runner.RunPair(r.Context(), pair)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{pair.Scope(): results})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown pair " + filter})
}

// handleRuns returns the recent run history, keyed by pair scope.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	out := map[string][]state.RunSummary{}
	for _, pair := range s.cfg.Pairs {
		store, err := state.NewStore(s.cfg.StateDir(), pair.Scope(), false)
		if err != nil {
			continue
		}
		runs, err := store.RecentRuns()
		if err != nil || len(runs) == 0 {
			continue
		}
		out[pair.Scope()] = runs
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	metas, err := s.snaps.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if metas == nil {
		metas = []snapshot.Meta{}
	}
	writeJSON(w, http.StatusOK, metas)
}

func (s *Server) handleSnapshotCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Feature  string `json:"feature"`
		Label    string `json:"label"`
		Instance string `json:"instance"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !providers.IsKnown(req.Provider) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}
	if req.Feature == "" {
		req.Feature = "all"
	}

	meta, err := s.snaps.Create(r.Context(), req.Provider, req.Feature, req.Label, req.Instance)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleSnapshotRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	doc, err := s.snaps.Read(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Mode     string `json:"mode"`
		Instance string `json:"instance"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.snaps.Restore(r.Context(), req.Path, req.Mode, req.Instance)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status := http.StatusOK
	if !result.OK {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

func (s *Server) handleSnapshotDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		A          string `json:"a"`
		B          string `json:"b"`
		Limit      int    `json:"limit"`
		MaxDepth   int    `json:"max_depth"`
		MaxChanges int    `json:"max_changes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.snaps.Diff(req.A, req.B, snapshot.DiffOptions{
		Limit:      req.Limit,
		MaxDepth:   req.MaxDepth,
		MaxChanges: req.MaxChanges,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	deleteChildren, _ := strconv.ParseBool(r.URL.Query().Get("delete_children"))

	if err := s.snaps.Delete(path, deleteChildren); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleClearFeatures(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !providers.IsKnown(provider) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	var req struct {
		Features []string `json:"features"`
		Instance string   `json:"instance"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Features) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no features given"})
		return
	}

	results, err := s.snaps.ClearProviderFeatures(r.Context(), provider, req.Features, req.Instance)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
