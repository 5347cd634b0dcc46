package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ora2es/migsim/internal/mapping"
)

type suggestRequest struct {
	Columns map[string]string `json:"columns"`
}

func (s *Server) listMappings(w http.ResponseWriter, _ *http.Request) {
	configs := s.mappings.List()
	writeJSON(w, http.StatusOK, map[string]any{"mappings": configs, "count": len(configs)}, s.logger)
}

func (s *Server) createMapping(w http.ResponseWriter, r *http.Request) {
	var cfg mapping.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	now := s.clock.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := s.mappings.Create(cfg); err != nil {
		if errors.Is(err, mapping.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "mapping configuration already exists", s.logger)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"name":    cfg.Name,
		"message": "Mapping configuration created",
	}, s.logger)
}

func (s *Server) getMapping(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.mappings.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "mapping configuration not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, cfg, s.logger)
}

func (s *Server) updateMapping(w http.ResponseWriter, r *http.Request) {
	var cfg mapping.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	cfg.Name = chi.URLParam(r, "name")
	if err := s.mappings.Update(cfg, s.clock.Now()); err != nil {
		if errors.Is(err, mapping.ErrNotFound) {
			writeError(w, http.StatusNotFound, "mapping configuration not found", s.logger)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    cfg.Name,
		"message": "Mapping configuration updated",
	}, s.logger)
}

func (s *Server) deleteMapping(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.mappings.Delete(name); err != nil {
		writeError(w, http.StatusNotFound, "mapping configuration not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "message": "Mapping configuration deleted"}, s.logger)
}

func (s *Server) validateMapping(w http.ResponseWriter, r *http.Request) {
	var cfg mapping.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Validate(), s.logger)
}

func (s *Server) suggestMapping(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	if len(req.Columns) == 0 {
		writeError(w, http.StatusBadRequest, "columns is required", s.logger)
		return
	}
	fields := mapping.SuggestFields(req.Columns)
	writeJSON(w, http.StatusOK, map[string]any{"field_mappings": fields, "count": len(fields)}, s.logger)
}

func (s *Server) exportMapping(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, err := s.mappings.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "mapping configuration not found", s.logger)
		return
	}
	data, err := cfg.Export(s.clock.Now())
	if err != nil {
		s.logger.Error("export mapping failed", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export mapping failed", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".json"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write export failed", zap.Error(err))
	}
}

func (s *Server) archiveMapping(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, err := s.mappings.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "mapping configuration not found", s.logger)
		return
	}
	now := s.clock.Now()
	data, err := cfg.Export(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export mapping failed", s.logger)
		return
	}
	path := fmt.Sprintf("%s/%s-%s.json", s.cfg.Storage.Prefix, name, now.UTC().Format("20060102T150405Z"))
	uri, err := s.blobs.PutObject(r.Context(), path, "application/json", bytes.NewReader(data))
	if err != nil {
		s.logger.Error("archive mapping failed", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusBadGateway, "archive mapping failed", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "uri": uri}, s.logger)
}

func (s *Server) importMapping(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body failed", s.logger)
		return
	}
	cfg, err := mapping.Import(data, s.clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if err := s.mappings.Create(cfg); err != nil {
		if errors.Is(err, mapping.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "mapping configuration already exists", s.logger)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"name":    cfg.Name,
		"message": "Mapping configuration imported",
	}, s.logger)
}
