package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/middleware"
	"github.com/rumor-ml/commons.systems/strdash/internal/pipeline"
	"github.com/rumor-ml/commons.systems/strdash/internal/streaming"
)

const (
	maxUploadBytes    = 100 << 20
	heartbeatInterval = 15 * time.Second
)

// ImportHandler accepts export uploads and streams import progress
type ImportHandler struct {
	// ctx outlives requests; background imports stop when it is cancelled
	ctx     context.Context
	deps    pipeline.Deps
	opts    pipeline.Options
	tracker *streaming.Tracker
	tempDir string
}

// NewImportHandler creates an import handler. Uploaded files are staged
// under tempDir ("" means the OS default).
func NewImportHandler(ctx context.Context, deps pipeline.Deps, opts pipeline.Options, tracker *streaming.Tracker, tempDir string) *ImportHandler {
	return &ImportHandler{ctx: ctx, deps: deps, opts: opts, tracker: tracker, tempDir: tempDir}
}

// StartImport handles POST /api/imports (multipart "files", optional
// "property", "source", "year" and "fallback" fields). The import runs in
// the background; the response carries the session id to follow.
func (h *ImportHandler) StartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	opts, err := h.importOptions(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := logger.FromContext(r.Context())
	dir, err := os.MkdirTemp(h.tempDir, "strdash-import-")
	if err != nil {
		log.Error().Err(err).Msg("failed to create upload directory")
		middleware.WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	for _, fh := range files {
		if err := saveUpload(fh, dir); err != nil {
			os.RemoveAll(dir)
			log.Error().Err(err).Str("file", fh.Filename).Msg("failed to save upload")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to store upload")
			return
		}
	}

	sessionID := uuid.NewString()
	session := h.tracker.Begin(h.ctx, sessionID)
	ctx := logger.WithContext(h.ctx, log.With().Str("session", sessionID).Logger())
	go h.run(ctx, session, dir, opts)

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":   true,
		"sessionId": sessionID,
	})
}

func (h *ImportHandler) run(ctx context.Context, session *streaming.Session, dir string, opts pipeline.Options) {
	log := logger.FromContext(ctx)
	defer os.RemoveAll(dir)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("import panicked")
			session.Finish(true, "import failed")
		}
	}()

	deps := h.deps
	deps.Reporter = session
	p, err := pipeline.New(deps, opts)
	if err != nil {
		log.Error().Err(err).Msg("failed to create pipeline")
		session.Finish(true, "import failed")
		return
	}

	report, err := p.Import(ctx, dir)
	if err != nil {
		log.Error().Err(err).Msg("import failed")
		session.Finish(true, "import failed")
		return
	}
	log.Info().
		Int("files", len(report.Files)).
		Int("revenues", report.Revenues).
		Int("expenses", report.Expenses).
		Int("failed", report.Failed).
		Msg("import finished")
	session.Finish(false, "")
}

func (h *ImportHandler) importOptions(r *http.Request) (pipeline.Options, error) {
	opts := h.opts
	if v := strings.TrimSpace(r.FormValue("property")); v != "" {
		if h.deps.Catalog != nil {
			if _, err := h.deps.Catalog.Get(v); err != nil {
				return opts, fmt.Errorf("unknown property")
			}
		}
		opts.PropertyID = v
	}
	if v := strings.TrimSpace(r.FormValue("source")); v != "" {
		src, err := domain.ParseSource(v)
		if err != nil {
			return opts, fmt.Errorf("unknown source")
		}
		opts.Source = src
	}
	if v := strings.TrimSpace(r.FormValue("year")); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil || year < 2000 || year > 2100 {
			return opts, fmt.Errorf("year must be a four-digit year")
		}
		opts.Year = year
	}
	if v := strings.TrimSpace(r.FormValue("fallback")); v != "" {
		c := domain.Category(v)
		if !domain.ValidateCategory(c) {
			return opts, fmt.Errorf("invalid fallback category")
		}
		opts.Fallback = c
	}
	return opts, nil
}

// saveUpload copies an uploaded file into dir under its base name
func saveUpload(fh *multipart.FileHeader, dir string) error {
	name := filepath.Base(filepath.Clean("/" + fh.Filename))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		name = "upload-" + uuid.NewString()[:8] + filepath.Ext(fh.Filename)
	}

	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return dst.Close()
}

// GetImport handles GET /api/imports/{id}
func (h *ImportHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.tracker.Get(r.PathValue("id"))
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "import session not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": session.Snapshot().Data,
	})
}

// StreamImport handles GET /api/imports/{id}/events as Server-Sent Events.
// The first event is a snapshot of the session; the stream ends after the
// session's complete or error event.
func (h *ImportHandler) StreamImport(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	session, ok := h.tracker.Get(sessionID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "import session not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	// Streams outlive the server write timeout. Recorders in tests do not
	// support deadlines, which is fine.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	hub := h.tracker.Hub()
	client := hub.Register(h.ctx, sessionID)
	defer hub.Unregister(sessionID, client)

	// Registered before the snapshot so nothing between the two is lost
	if err := writeEvent(w, session.Snapshot()); err != nil {
		return
	}
	flusher.Flush()
	if session.Done() {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := writeEvent(w, streaming.NewEvent(streaming.EventTypeHeartbeat, nil)); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
			if event.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, event streaming.SSEEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
