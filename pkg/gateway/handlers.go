package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/namenode"
	"griddfs/pkg/plan"
	"griddfs/pkg/session"
	"griddfs/pkg/transfer"

	"github.com/go-chi/chi/v5"
)

type blockJSON struct {
	Ordinal        int    `json:"ordinal"`
	BlockID        string `json:"block_id"`
	Size           int    `json:"size"`
	ReplicasOK     int    `json:"replicas_ok"`
	ReplicasFailed int    `json:"replicas_failed"`
}

type uploadJSON struct {
	Path   string      `json:"path"`
	Bytes  int64       `json:"bytes"`
	Blocks []blockJSON `json:"blocks"`
}

type entryJSON struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

type errorJSON struct {
	Error   string `json:"error"`
	Ordinal *int   `json:"ordinal,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps the error taxonomy onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		commit      *transfer.BlockCommitError
		unavailable *transfer.BlockUnavailableError
		notFound    *namenode.NotFoundError
		auth        *namenode.AuthorizationError
	)
	body := errorJSON{Error: err.Error()}
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &commit):
		code, body.Ordinal = http.StatusBadGateway, &commit.Ordinal
	case errors.As(err, &unavailable):
		code, body.Ordinal = http.StatusServiceUnavailable, &unavailable.Ordinal
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.As(err, &auth):
		code = http.StatusUnauthorized
	case errors.Is(err, namenode.ErrExists):
		code = http.StatusConflict
	case errors.Is(err, namenode.ErrNoDataNodes):
		code = http.StatusServiceUnavailable
	case errors.Is(err, namenode.ErrPrecondition):
		code = http.StatusConflict
	case errors.Is(err, plan.ErrPlanMismatch):
		code = http.StatusBadGateway
	case errors.Is(err, dfspath.ErrInvalid):
		code = http.StatusBadRequest
	}
	if code >= 500 {
		s.log.Error().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	}
	writeJSON(w, code, body)
}

func dirPath(r *http.Request) (dfspath.Path, error) {
	return dfspath.Parse("/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
}

func filePath(r *http.Request) (dfspath.Path, error) {
	p, err := dirPath(r)
	if err == nil && p.IsRoot() {
		return p, fmt.Errorf("%w: a file path is required", dfspath.ErrInvalid)
	}
	return p, err
}

// caller resolves the user from the header or, for presigned GETs, from the query.
func (s *Server) caller(r *http.Request) (session.Session, error) {
	if uid := r.Header.Get(UserHeader); uid != "" {
		return session.New(uid, ""), nil
	}
	if s.opt.Signer != nil && r.Method == http.MethodGet && r.URL.Query().Has("sig") {
		uid, err := s.opt.Signer.Verify(r.Method, r.URL.Path, r.URL.Query(), s.now())
		if err != nil {
			return session.Session{}, &namenode.AuthorizationError{Msg: err.Error()}
		}
		return session.New(uid, ""), nil
	}
	return session.Session{}, &namenode.AuthorizationError{Msg: "missing " + UserHeader}
}

func (s *Server) putFile(w http.ResponseWriter, r *http.Request) {
	sess, err := s.caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := filePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opt.MaxUpload))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorJSON{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}

	res, err := s.opt.Transfers.Upload(r.Context(), sess, p, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := uploadJSON{Path: res.Path.String(), Bytes: res.Bytes}
	for _, b := range res.Blocks {
		out.Blocks = append(out.Blocks, blockJSON{
			Ordinal:        b.Ordinal,
			BlockID:        b.BlockID,
			Size:           b.Size,
			ReplicasOK:     b.Succeeded(),
			ReplicasFailed: b.Failed(),
		})
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	sess, err := s.caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := filePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.opt.Transfers.Download(r.Context(), sess, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
	w.Header().Set("X-Griddfs-Blocks", strconv.Itoa(len(res.Blocks)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Content)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	sess, err := s.caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := filePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.opt.Namespace.Delete(r.Context(), sess, p); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDir(w http.ResponseWriter, r *http.Request) {
	sess, err := s.caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dir, err := dirPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.opt.Namespace.List(r.Context(), sess, dir)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryJSON{Name: e.Name, IsDir: e.IsDir, Size: e.Size, Created: e.Created})
	}
	writeJSON(w, http.StatusOK, out)
}

type presignJSON struct {
	URL     string    `json:"url"`
	Expires time.Time `json:"expires"`
}

// presign returns a GET link for a file that works without the user header until it expires.
func (s *Server) presign(w http.ResponseWriter, r *http.Request) {
	if s.opt.Signer == nil {
		writeJSON(w, http.StatusNotImplemented, errorJSON{Error: "presigning disabled"})
		return
	}
	sess, err := s.caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := filePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ttl := s.opt.PresignTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > ttl {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "ttl must be a duration up to " + ttl.String()})
			return
		}
		ttl = d
	}
	exp := s.now().Add(ttl)
	target := "/v1/files" + p.String()
	q := s.opt.Signer.Sign(http.MethodGet, target, sess.UserID, exp)
	writeJSON(w, http.StatusOK, presignJSON{URL: s.opt.BaseURL + target + "?" + q, Expires: exp.UTC()})
}
