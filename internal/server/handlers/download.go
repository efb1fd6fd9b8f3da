package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vidgrab/vidgrab/pkg/fetch"
	"github.com/vidgrab/vidgrab/pkg/jobstore"
	"github.com/vidgrab/vidgrab/pkg/runner"
	"github.com/vidgrab/vidgrab/pkg/transcript"
)

// API bundles the services behind the download and transcript endpoints.
type API struct {
	Store       *jobstore.Store
	Runner      *runner.Runner
	Transcripts *transcript.Service
	Logger      *zap.Logger
}

// NewAPI creates the endpoint handler set.
func NewAPI(store *jobstore.Store, run *runner.Runner, ts *transcript.Service, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{Store: store, Runner: run, Transcripts: ts, Logger: logger}
}

// DownloadRequest is the body accepted by both download endpoints.
type DownloadRequest struct {
	URL       string `json:"url"`
	Quality   string `json:"quality,omitempty"`
	Format    string `json:"format,omitempty"`
	AudioOnly bool   `json:"audio_only,omitempty"`
}

// DownloadResponse is the body returned by the synchronous endpoint.
type DownloadResponse struct {
	Message     string          `json:"message"`
	VideoInfo   fetch.VideoInfo `json:"video_info"`
	DownloadURL string          `json:"download_url"`
}

// AsyncResponse is the body returned by the asynchronous endpoint.
type AsyncResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse is the body returned by the status endpoint.
type StatusResponse struct {
	Status string            `json:"status"`
	Result *jobstore.Result  `json:"result,omitempty"`
	Error  *jobstore.Failure `json:"error,omitempty"`
}

// TranscriptRequest is the body accepted by the transcript endpoint.
type TranscriptRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

func (a *API) decodeDownload(r *http.Request) (*DownloadRequest, error) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", fetch.ErrInvalidURL)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("url is required: %w", fetch.ErrInvalidURL)
	}
	return &req, nil
}

func fetchRequest(req *DownloadRequest) fetch.Request {
	return fetch.Request{
		URL:       strings.TrimSpace(req.URL),
		Quality:   req.Quality,
		Format:    req.Format,
		AudioOnly: req.AudioOnly,
	}
}

// Download handles POST /download: the request blocks until the video is
// fetched and, when configured, uploaded.
func (a *API) Download(w http.ResponseWriter, r *http.Request) {
	req, err := a.decodeDownload(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	result, err := a.Runner.RunSync(r.Context(), fetchRequest(req))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DownloadResponse{
		Message:     "Video downloaded successfully",
		VideoInfo:   result.Info,
		DownloadURL: result.ArtifactURL,
	})
}

// DownloadAsync handles POST /download-async: the job is validated and
// queued, and the caller polls /status/{job_id} for the outcome.
func (a *API) DownloadAsync(w http.ResponseWriter, r *http.Request) {
	req, err := a.decodeDownload(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	id, err := a.Runner.Submit(r.Context(), fetchRequest(req))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, AsyncResponse{JobID: id})
}

// Status handles GET /status/{job_id}.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	job, err := a.Store.Get(id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status: string(job.Status),
		Result: job.Result,
		Error:  job.Failure,
	})
}

// Cancel handles POST /cancel/{job_id}: sets the cooperative cancellation
// flag. The job reaches a CANCELLED terminal state at the worker's next
// checkpoint.
func (a *API) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	if err := a.Runner.Cancel(id); err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancel_requested"})
}

// Transcript handles POST /transcript: synchronous extraction with a
// duration cap enforced before any subtitle fetch.
func (a *API) Transcript(w http.ResponseWriter, r *http.Request) {
	var req TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, fmt.Errorf("malformed request body: %w", fetch.ErrInvalidURL))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondWithError(w, r, fmt.Errorf("url is required: %w", fetch.ErrInvalidURL))
		return
	}

	tr, err := a.Transcripts.Extract(r.Context(), strings.TrimSpace(req.URL), req.Language)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}
