package http

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sagarc03/filepulse"
)

type Service interface {
	Upload(ctx context.Context, req filepulse.UploadRequest) (filepulse.Share, error)
	Download(ctx context.Context, code string) (filepulse.Share, io.ReadSeekCloser, error)
	Info(ctx context.Context, code string) (filepulse.Share, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	// TrustProxy makes the handler take the client origin from
	// X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	CORS       CORSConfig
}

// formField is the multipart field carrying the uploaded file.
const formField = "file"

// Handler provides HTTP handlers for share operations.
type Handler struct {
	config  HandlerConfig
	service Service
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	return &Handler{
		config:  *config,
		service: service,
	}
}

// Router returns an http.Handler with all API routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(OriginMiddleware(h.config.TrustProxy))
	r.Use(RequestLogger)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.NotFound(writeNotFound)
	r.MethodNotAllowed(writeMethodNotAllowed)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.handleFormUpload)
		r.Put("/upload/{filename}", h.handleRawUpload)
		r.Get("/file/{code}", h.handleInfo)
		r.Get("/download/{code}", h.handleDownload)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "filepulse",
	})
}

// handleFormUpload streams the first "file" part of a multipart body
// straight into the service without buffering it in memory or on disk.
func (h *Handler) handleFormUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", "Expected a multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid_input", "Missing form field \"file\"")
			return
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_input", "Malformed multipart body")
			return
		}

		if part.FormName() != formField {
			_ = part.Close()
			continue
		}

		share, err := h.service.Upload(r.Context(), filepulse.UploadRequest{
			Filename:     part.FileName(),
			Origin:       OriginFromContext(r.Context()),
			Content:      part,
			DeclaredSize: -1,
		})
		_ = part.Close()
		if err != nil {
			HandleError(w, err)
			return
		}

		_ = WriteJSON(w, http.StatusCreated, share)
		return
	}
}

func (h *Handler) handleRawUpload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if unescaped, err := url.PathUnescape(filename); err == nil {
		filename = unescaped
	}

	share, err := h.service.Upload(r.Context(), filepulse.UploadRequest{
		Filename:     filename,
		Origin:       OriginFromContext(r.Context()),
		Content:      r.Body,
		DeclaredSize: r.ContentLength,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, share)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	share, err := h.service.Info(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, share)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	share, content, err := h.service.Download(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", ContentDisposition(share.DisplayName))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-store")

	http.ServeContent(w, r, "", share.CreatedAt, content)
}

// ContentDisposition builds an attachment header for name. Non-ASCII names
// are emitted in the RFC 2231 extended form.
func ContentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
