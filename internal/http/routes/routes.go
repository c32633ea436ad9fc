package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	appmw "github.com/briangreenhill/thumbcache/internal/http/middleware"
	"github.com/briangreenhill/thumbcache/internal/jobs"
	"github.com/briangreenhill/thumbcache/metadata"
	"github.com/briangreenhill/thumbcache/thumbnail"
)

// Thumbnails is the part of thumbnail.Service the API serves
type Thumbnails interface {
	Get(ctx context.Context, u *url.URL) (image.Image, error)
	Remove(u *url.URL) error
	Available() bool
}

var _ Thumbnails = (*thumbnail.Service)(nil)

// Enqueuer is satisfied by *asynq.Client
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router  *chi.Mux
	Thumbs  Thumbnails
	Queue   Enqueuer // nil disables the warm endpoint
	Timeout time.Duration
}

type ServerOptions struct {
	Thumbs  Thumbnails
	Queue   Enqueuer
	APIKey  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Thumbs: opts.Thumbs, Queue: opts.Queue, Timeout: opts.Timeout}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}

	r.Get("/healthz", s.handleHealth)

	r.Group(func(pr chi.Router) {
		pr.Use(appmw.RequireAPIKey(opts.APIKey))
		pr.Get("/thumbnails", s.handleGetThumbnail)
		pr.Delete("/thumbnails", s.handleDeleteThumbnail)
		pr.Post("/thumbnails/warm", s.handleWarm)
	})

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.Thumbs.Available() {
		http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
	}
}

func (s *Server) handleGetThumbnail(w http.ResponseWriter, r *http.Request) {
	u, err := jobs.ParseTarget(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()

	img, err := s.Thumbs.Get(ctx, u)
	if err != nil {
		status := statusFor(err)
		if status == StatusClientClosedRequest {
			// nobody is left to read the response; the fetch still completes and caches
			hlog.FromRequest(r).Debug().Str("target", u.String()).Msg("client went away")
			w.WriteHeader(status)
			return
		}
		hlog.FromRequest(r).Debug().Err(err).Str("target", u.String()).Int("status", status).Msg("thumbnail lookup failed")
		http.Error(w, http.StatusText(status), status)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode thumbnail")
		http.Error(w, "could not encode thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(buf.Bytes()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write thumbnail")
	}
}

func (s *Server) handleDeleteThumbnail(w http.ResponseWriter, r *http.Request) {
	u, err := jobs.ParseTarget(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Thumbs.Remove(u); err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway {
			status = http.StatusInternalServerError
		}
		hlog.FromRequest(r).Error().Err(err).Str("target", u.String()).Msg("remove thumbnail")
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type warmRequest struct {
	URL string `json:"url"`
}

type warmResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		http.Error(w, "background jobs disabled", http.StatusServiceUnavailable)
		return
	}

	var req warmRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "bad json body", http.StatusBadRequest)
		return
	}
	task, err := jobs.NewWarmThumbnailTask(req.URL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.Queue.EnqueueContext(r.Context(), task)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("target", req.URL).Msg("enqueue warm task")
		http.Error(w, "failed to queue warm job", http.StatusInternalServerError)
		return
	}
	hlog.FromRequest(r).Info().Str("task_id", info.ID).Str("queue", info.Queue).Str("target", req.URL).Msg("warm task queued")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(warmResponse{TaskID: info.ID, Queue: info.Queue}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write warm response")
	}
}

// StatusClientClosedRequest reports a lookup abandoned by the client
const StatusClientClosedRequest = 499

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, thumbnail.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrUnsupportedURL):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
