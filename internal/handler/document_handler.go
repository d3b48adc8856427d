package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"notarypro/internal/auth"
	"notarypro/internal/domain"
	"notarypro/internal/service"
	"notarypro/internal/storage"
)

const multipartMemory = 8 << 20

type CertificationService interface {
	Upload(ctx context.Context, p *auth.Principal, in service.UploadInput) (*domain.Document, error)
	Certify(ctx context.Context, p *auth.Principal, in service.CertifyInput) (*domain.Document, error)
	Reject(ctx context.Context, p *auth.Principal, in service.RejectInput) (*domain.Document, error)
	Verify(ctx context.Context, code string) (*service.VerifyResult, error)
	QR(ctx context.Context, id uuid.UUID) (*service.QRInfo, error)
	Download(ctx context.Context, id uuid.UUID, certified bool) (*service.Artifact, error)
	Pending(ctx context.Context, p *auth.Principal) ([]domain.PendingDocument, error)
	MyDocuments(ctx context.Context, p *auth.Principal) ([]domain.Document, error)
	Templates(ctx context.Context) ([]domain.Template, error)
}

type DocumentHandler struct {
	svc      CertificationService
	maxBytes int64
	logger   *zap.Logger
}

func NewDocumentHandler(svc CertificationService, maxUploadBytes int64, logger *zap.Logger) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = storage.DefaultMaxBytes
	}
	return &DocumentHandler{svc: svc, maxBytes: maxUploadBytes, logger: logger}
}

// Routes registers the notary endpoints. verifyLimiter may be nil.
func (h *DocumentHandler) Routes(r chi.Router, verifyLimiter func(http.Handler) http.Handler) {
	r.Get("/templates", h.ListTemplates)
	r.Get("/pending", h.ListPending)
	r.Get("/my-documents", h.ListMyDocuments)
	r.Post("/upload", h.Upload)

	if verifyLimiter != nil {
		r.With(verifyLimiter).Get("/verify/{code}", h.Verify)
	} else {
		r.Get("/verify/{code}", h.Verify)
	}

	r.Route("/{id}", func(r chi.Router) {
		r.Post("/certify", h.Certify)
		r.Post("/reject", h.Reject)
		r.Get("/download", h.Download)
		r.Get("/qr", h.QR)
	})
}

func (h *DocumentHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.Templates(r.Context())
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

func (h *DocumentHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Pending(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *DocumentHandler) ListMyDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.MyDocuments(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.failForm(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := service.UploadInput{
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		DocumentType: r.FormValue("documentType"),
		Urgency:      r.FormValue("urgency"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		in.File = storage.Upload{
			FieldName:   "file",
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	doc, err := h.svc.Upload(r.Context(), principal, in)
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Document uploaded",
		"document": doc,
	})
}

func (h *DocumentHandler) Certify(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	in := service.CertifyInput{DocumentID: id}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			h.failForm(w, r, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		in.Note = r.FormValue("certificationNote")
		in.Method = r.FormValue("certificationMethod")

		file, header, err := r.FormFile("signedFile")
		if err == nil {
			defer file.Close()
			in.SignedFile = &storage.Upload{
				FieldName:   "signedFile",
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		} else if !errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "Failed to read signed file")
			return
		}

	case "application/json":
		var body struct {
			Note   string `json:"certificationNote"`
			Method string `json:"certificationMethod"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		in.Note, in.Method = body.Note, body.Method

	default:
		in.Note = r.FormValue("certificationNote")
		in.Method = r.FormValue("certificationMethod")
	}

	doc, err := h.svc.Certify(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Document certified",
		"document": doc,
	})
}

func (h *DocumentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.svc.Reject(r.Context(), auth.FromContext(r.Context()), service.RejectInput{
		DocumentID: id,
		Reason:     body.Reason,
	})
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Document rejected",
		"document": doc,
	})
}

func (h *DocumentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) QR(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	info, err := h.svc.QR(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	certified := false
	if v := r.URL.Query().Get("certified"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid certified flag")
			return
		}
		certified = parsed
	}

	artifact, err := h.svc.Download(r.Context(), id, certified)
	if err != nil {
		h.fail(w, r, err, http.StatusConflict)
		return
	}
	defer artifact.Body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(artifact.FileName))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, artifact.Body); err != nil {
		h.logger.Warn("download interrupted", zap.String("document_id", id.String()), zap.Error(err))
	}
}

func contentDisposition(name string) string {
	encoded := url.PathEscape(name)
	ascii := strings.ReplaceAll(name, `"`, `\"`)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, encoded)
}

func (h *DocumentHandler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *DocumentHandler) failForm(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload limit")
		return
	}
	writeError(w, http.StatusBadRequest, "Failed to parse form")
}

// fail maps workflow errors to HTTP statuses. stateStatus is used for invalid-state errors.
func (h *DocumentHandler) fail(w http.ResponseWriter, r *http.Request, err error, stateStatus int) {
	var stateErr *domain.StateError
	switch {
	case errors.As(err, &stateErr):
		writeJSON(w, stateStatus, errorResponse{Error: stateErr.Error(), CurrentStatus: string(stateErr.Current)})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnsupportedFileType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
