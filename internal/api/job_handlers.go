package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ora2es/migsim/internal/mapping"
	"github.com/ora2es/migsim/internal/store"
)

type createJobRequest struct {
	MappingName string `json:"mapping_configuration_name"`
}

type jobResponse struct {
	ID                 string  `json:"id"`
	MappingName        string  `json:"mapping_configuration_name"`
	Status             string  `json:"status"`
	TotalBatches       int     `json:"total_batches"`
	RecordsPerBatch    int     `json:"records_per_batch"`
	TotalRecords       int64   `json:"total_records"`
	ProcessedRecords   int64   `json:"processed_records"`
	FailedRecords      int64   `json:"failed_records"`
	ProgressPercentage float64 `json:"progress_percentage"`
	StartTime          *string `json:"start_time"`
	EndTime            *string `json:"end_time"`
	ErrorMessage       *string `json:"error_message"`
	CreatedAt          string  `json:"created_at"`
}

type batchResponse struct {
	BatchIndex       int    `json:"batch_index"`
	Offset           int64  `json:"offset"`
	Limit            int64  `json:"limit"`
	Status           string `json:"status"`
	ProcessedRecords int64  `json:"processed_records"`
	UpdatedAt        string `json:"updated_at"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	if req.MappingName == "" {
		writeError(w, http.StatusBadRequest, "mapping_configuration_name is required", s.logger)
		return
	}
	if _, err := s.mappings.Get(req.MappingName); err != nil {
		if errors.Is(err, mapping.ErrNotFound) {
			writeError(w, http.StatusNotFound, "mapping configuration not found", s.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "load mapping configuration failed", s.logger)
		return
	}

	id, err := s.idGen.NewRawID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job ID failed", s.logger)
		return
	}
	job := store.Job{
		ID:              id,
		MappingName:     req.MappingName,
		Status:          store.JobStatusPending,
		TotalBatches:    s.cfg.Sim.TotalBatches,
		RecordsPerBatch: s.cfg.Sim.RecordsPerBatch,
		TotalRecords:    int64(s.cfg.Sim.TotalBatches) * int64(s.cfg.Sim.RecordsPerBatch),
		CreatedAt:       s.clock.Now(),
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.logger.Error("create job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create job failed", s.logger)
		return
	}
	if err := s.runner.StartJob(job); err != nil {
		s.logger.Error("start job failed", zap.String("job_id", id.String()), zap.Error(err))
		writeError(w, http.StatusConflict, "start job failed", s.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  id.String(),
		"message": "Migration job started successfully",
	}, s.logger)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var statusFilter *store.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.JobStatus(raw)
		statusFilter = &status
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	jobs, err := s.jobs.ListJobs(r.Context(), statusFilter, limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list jobs failed", s.logger)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "count": len(out)}, s.logger)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toJobResponse(job), s.logger)
}

func (s *Server) togglePauseJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	paused, err := s.runner.TogglePause(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Job is not running", s.logger)
		return
	}
	status := "running"
	if paused {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id.String(), "status": status}, s.logger)
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	if err := s.runner.StopJob(id); err != nil {
		writeError(w, http.StatusBadRequest, "Job is not running", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id.String(), "message": "Migration job stopped"}, s.logger)
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	if !job.Status.IsTerminal() {
		writeError(w, http.StatusBadRequest, "Job has not finished", s.logger)
		return
	}
	if err := s.jobs.ResetForRetry(r.Context(), id); err != nil {
		s.logger.Error("reset job failed", zap.String("job_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset job failed", s.logger)
		return
	}
	job, err = s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	if err := s.runner.StartJob(job); err != nil {
		writeError(w, http.StatusConflict, "start job failed", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id.String(), "message": "Migration job restarted"}, s.logger)
}

func (s *Server) clearCompletedJobs(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.jobs.DeleteCompleted(r.Context())
	if err != nil {
		s.logger.Error("clear completed jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "clear completed jobs failed", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted}, s.logger)
}

func (s *Server) listJobBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	batches, err := s.jobs.ListBatches(r.Context(), id)
	if err != nil {
		s.logger.Error("list batches failed", zap.String("job_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list batches failed", s.logger)
		return
	}
	grid := batchGrid(job, batches)
	writeJSON(w, http.StatusOK, map[string]any{"batches": grid, "count": len(grid)}, s.logger)
}

func (s *Server) getJobBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "batch_index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid batch index", s.logger)
		return
	}
	// Prefer the live view when the job is still in memory.
	if label, ok := s.runner.BatchDetails(id, index); ok {
		writeJSON(w, http.StatusOK, map[string]any{"batch_index": index, "status": label}, s.logger)
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.jobLookupError(w, err)
		return
	}
	if index >= job.TotalBatches {
		writeError(w, http.StatusNotFound, "batch not found", s.logger)
		return
	}
	batches, err := s.jobs.ListBatches(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list batches failed", s.logger)
		return
	}
	for _, b := range batchGrid(job, batches) {
		if b.BatchIndex == index {
			writeJSON(w, http.StatusOK, b, s.logger)
			return
		}
	}
	writeError(w, http.StatusNotFound, "batch not found", s.logger)
}

// batchGrid fills the gaps between persisted batch rows so callers always
// see one row per batch index.
func batchGrid(job store.Job, batches []store.Batch) []batchResponse {
	byIndex := make(map[int]store.Batch, len(batches))
	for _, b := range batches {
		byIndex[b.Index] = b
	}
	out := make([]batchResponse, 0, job.TotalBatches)
	for i := 0; i < job.TotalBatches; i++ {
		if b, ok := byIndex[i]; ok {
			out = append(out, batchResponse{
				BatchIndex:       b.Index,
				Offset:           b.Offset,
				Limit:            b.Limit,
				Status:           string(b.Status),
				ProcessedRecords: b.ProcessedRecords,
				UpdatedAt:        b.UpdatedAt.Format(time.RFC3339),
			})
			continue
		}
		out = append(out, batchResponse{
			BatchIndex: i,
			Offset:     int64(i) * int64(job.RecordsPerBatch),
			Limit:      int64(job.RecordsPerBatch),
			Status:     string(store.BatchStatusPending),
		})
	}
	return out
}

func (s *Server) toJobResponse(job store.Job) jobResponse {
	resp := jobResponse{
		ID:                 job.ID.String(),
		MappingName:        job.MappingName,
		Status:             string(job.Status),
		TotalBatches:       job.TotalBatches,
		RecordsPerBatch:    job.RecordsPerBatch,
		TotalRecords:       job.TotalRecords,
		ProcessedRecords:   job.ProcessedRecords,
		FailedRecords:      job.FailedRecords,
		ProgressPercentage: job.ProgressPercent(),
		ErrorMessage:       job.ErrorMessage,
		CreatedAt:          job.CreatedAt.Format(time.RFC3339),
	}
	if st, ok := s.runner.State(job.ID); ok {
		resp.ProcessedRecords = int64(st.CurrentRecord)
		if job.TotalRecords > 0 {
			resp.ProgressPercentage = float64(st.CurrentRecord) / float64(job.TotalRecords) * 100
		}
	}
	if job.StartedAt != nil {
		v := job.StartedAt.Format(time.RFC3339)
		resp.StartTime = &v
	}
	if job.FinishedAt != nil {
		v := job.FinishedAt.Format(time.RFC3339)
		resp.EndTime = &v
	}
	return resp
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID", s.logger)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) jobLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found", s.logger)
		return
	}
	s.logger.Error("load job failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "load job failed", s.logger)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
