package scribe

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/stream"
	"github.com/bosley/relayscribe/transcript"
)

const (
	uploadField = "audio"

	// Limit on the JSON body of a URL submission.
	maxURLRequestBytes = 64 << 10
)

type urlRequest struct {
	AudioURL string `json:"audioUrl"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Scribe) routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/transcribe/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/api/transcribe/url", s.handleURL).Methods(http.MethodPost)
	router.HandleFunc("/ws/transcribe", s.handleWebSocket).Methods(http.MethodGet)

	router.HandleFunc("/api/jobs", s.handleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{jobID}", s.handleCancelJob).Methods(http.MethodDelete)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return router
}

// handleUpload transcribes a multipart upload. The body is copied into the
// artifact before any response byte is written, so a streaming response
// only opens once the upload is complete.
func (s *Scribe) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	part, err := uploadPart(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer part.Close()

	in := acquire.Input{Kind: acquire.KindUpload, Name: part.FileName(), Body: part}
	s.serveJob(w, r, in, false)
}

// uploadPart returns the part named audio, or the first file part before it.
func uploadPart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, &RequestError{
			Status:  http.StatusUnsupportedMediaType,
			Message: "upload must be multipart/form-data",
		}
	}
	if err != nil {
		return nil, badRequest("malformed multipart body", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, badRequest("upload has no audio file", nil)
		}
		if err != nil {
			return nil, badRequest("malformed multipart body", err)
		}
		if part.FormName() == uploadField || part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Scribe) handleURL(w http.ResponseWriter, r *http.Request) {
	req, err := decodeURLRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveJob(w, r, acquire.Input{URL: req.AudioURL}, true)
}

func decodeURLRequest(w http.ResponseWriter, r *http.Request) (urlRequest, error) {
	var req urlRequest
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return req, &RequestError{
			Status:  http.StatusUnsupportedMediaType,
			Message: "request body must be application/json",
		}
	}
	body := http.MaxBytesReader(w, r.Body, maxURLRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, badRequest("malformed JSON body", err)
	}
	req.AudioURL = strings.TrimSpace(req.AudioURL)
	if req.AudioURL == "" {
		return req, badRequest("audioUrl is required", nil)
	}
	return req, nil
}

// serveJob runs one job for an HTTP request and writes either a live event
// stream or a single JSON response, depending on Accept. With eager set the
// stream opens before acquisition, so acquisition errors arrive as an error
// frame.
func (s *Scribe) serveJob(w http.ResponseWriter, r *http.Request, in acquire.Input, eager bool) {
	job, ctx := s.startJob(r.Context(), in)
	defer s.endJob(job)

	if !wantsEventStream(r) {
		res, err := s.execute(ctx, job, in, jobHooks{})
		if err = job.settle(ctx, err); err != nil {
			s.logger.Warn("job failed", "jobID", job.ID.String(), "error", err)
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
		return
	}

	sink := stream.NewSSESink(w)
	defer sink.Finish()
	relay := stream.NewRelay(sink, stream.Options{
		Heartbeat: s.config.Heartbeat,
		OnDisconnect: func(error) {
			job.Cancel(errClientGone)
		},
		Logger: s.logger.With("jobID", job.ID.String()),
	})
	defer relay.Close()

	open := func() {
		if err := sink.Open(); err != nil {
			job.Cancel(errClientGone)
		}
	}
	if eager {
		open()
	}

	hooks := jobHooks{progress: relay.Progress, acquired: open}
	if !eager {
		hooks.acquired = func() {
			// Finish the request body before the response starts.
			_, _ = io.Copy(io.Discard, r.Body)
			open()
		}
	}
	res, err := s.execute(ctx, job, in, hooks)
	err = job.settle(ctx, err)
	if err != nil && !sink.Opened() && isRequestShapeError(err) {
		// Nothing is committed yet, so a rejected upload keeps its status.
		s.logger.Warn("job rejected", "jobID", job.ID.String(), "error", err)
		s.writeError(w, err)
		return
	}
	s.deliver(relay, job, err, res)
}

// deliver writes the job's terminal frame. A client that already went away
// only gets a log line.
func (s *Scribe) deliver(relay *stream.Relay, job *Job, err error, res transcript.Result) {
	if err == nil {
		relay.Complete(res)
		return
	}
	if relay.Disconnected() {
		s.logger.Info("client went away before the job finished", "jobID", job.ID.String(), "error", err)
		return
	}
	s.logger.Warn("job failed", "jobID", job.ID.String(), "error", err)
	relay.Fail(err.Error())
}

func wantsEventStream(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		if strings.Contains(accept, "text/event-stream") {
			return true
		}
	}
	return false
}

func (s *Scribe) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	s.logger.Debug("listing jobs", "numJobs", len(jobs))
	s.writeJSON(w, http.StatusOK, jobs)
}

// handleCancelJob cancels a running job. Its own response then ends with
// an error.
func (s *Scribe) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["jobID"])
	if err != nil {
		s.writeError(w, badRequest("invalid job id", err))
		return
	}
	job, ok := s.jobs.Get(id)
	if !ok {
		s.writeError(w, &RequestError{Status: http.StatusNotFound, Message: "job not found"})
		return
	}
	job.Cancel(errJobCancelled)
	s.logger.Info("job cancel requested", "jobID", id.String())
	s.writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Scribe) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": s.jobs.Len(),
	})
}

func (s *Scribe) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func (s *Scribe) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", "error", err, "status", status)
	}
}
