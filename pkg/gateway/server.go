// Package gateway exposes GridDFS transfers over HTTP.
package gateway

import (
	"context"
	"net/http"
	"time"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/namenode"
	"griddfs/pkg/session"
	"griddfs/pkg/transfer"
	"griddfs/signer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	UserHeader        = "X-Griddfs-User"
	DefaultMaxUpload  = 64 << 20
	DefaultPresignTTL = 15 * time.Minute
)

type Transfers interface {
	Upload(ctx context.Context, sess session.Session, path dfspath.Path, content []byte) (*transfer.UploadResult, error)
	Download(ctx context.Context, sess session.Session, path dfspath.Path) (*transfer.DownloadResult, error)
}

type Namespace interface {
	List(ctx context.Context, sess session.Session, dir dfspath.Path) ([]namenode.Entry, error)
	Delete(ctx context.Context, sess session.Session, path dfspath.Path) error
}

type Options struct {
	Transfers  Transfers
	Namespace  Namespace
	Signer     *signer.Signer      // nil disables presigned URLs
	Gatherer   prometheus.Gatherer // nil disables /metrics
	MaxUpload  int64
	PresignTTL time.Duration
	Log        *zerolog.Logger
	// BaseURL prefixes presigned links; empty yields relative links.
	BaseURL string
}

type Server struct {
	h   http.Handler
	opt Options
	log zerolog.Logger
	now func() time.Time
}

func New(opt Options) *Server {
	if opt.MaxUpload <= 0 {
		opt.MaxUpload = DefaultMaxUpload
	}
	if opt.PresignTTL <= 0 {
		opt.PresignTTL = DefaultPresignTTL
	}
	s := &Server{opt: opt, log: log.Logger, now: time.Now}
	if opt.Log != nil {
		s.log = *opt.Log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if opt.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opt.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/v1", func(r chi.Router) {
		r.Put("/files/*", s.putFile)
		r.Get("/files/*", s.getFile)
		r.Delete("/files/*", s.deleteFile)
		r.Get("/dirs", s.listDir)
		r.Get("/dirs/*", s.listDir)
		r.Post("/presign/*", s.presign)
	})
	s.h = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.h
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("http")
	})
}
