package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/chatboard/internal/api/middleware"
	"github.com/eldtechnologies/chatboard/internal/blob"
	"github.com/eldtechnologies/chatboard/internal/metrics"
	"github.com/eldtechnologies/chatboard/internal/models"
)

// AttachmentResponse describes a stored upload.
type AttachmentResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// sniffImage returns the detected content type if data is an image.
func sniffImage(data []byte) (string, bool) {
	mime := mimetype.Detect(data)
	ct := mime.String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct, strings.HasPrefix(ct, "image/")
}

// parseInlineImage validates a base64 data URL and returns it normalized to
// the sniffed content type, along with the HTTP status to use on failure.
func (h *Handler) parseInlineImage(dataURL string) (string, int, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", http.StatusBadRequest, errors.New("image must be a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasPrefix(header, "image/") || !strings.HasSuffix(header, ";base64") {
		return "", http.StatusBadRequest, errors.New("image must be a base64 encoded data:image/ URL")
	}

	if int64(base64.StdEncoding.DecodedLen(len(payload))) > h.cfg.MaxImageBytes+2 {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("image too large (max %d bytes)", h.cfg.MaxImageBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", http.StatusBadRequest, errors.New("image is not valid base64")
	}
	if len(data) == 0 {
		return "", http.StatusBadRequest, errors.New("image is empty")
	}
	if int64(len(data)) > h.cfg.MaxImageBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("image too large (max %d bytes)", h.cfg.MaxImageBytes)
	}

	ct, ok := sniffImage(data)
	if !ok {
		return "", http.StatusUnsupportedMediaType, errors.New("image content is not a recognized image format")
	}

	return "data:" + ct + ";base64," + payload, 0, nil
}

// UploadAttachment stores a raw image body in the blob store.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxImageBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) == 0 {
		h.Error(w, http.StatusBadRequest, "empty upload")
		return
	}
	if int64(len(data)) > h.cfg.MaxImageBytes {
		h.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image too large (max %d bytes)", h.cfg.MaxImageBytes))
		return
	}

	ct, ok := sniffImage(data)
	if !ok {
		h.Error(w, http.StatusUnsupportedMediaType, "upload is not a recognized image format")
		return
	}

	meta := models.Attachment{
		ID:          ulid.Make().String(),
		Owner:       account.ID.String(),
		ContentType: ct,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.blobs.Put(r.Context(), meta, data); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store attachment")
		return
	}
	metrics.AttachmentsStored.Inc()

	h.JSON(w, http.StatusCreated, AttachmentResponse{
		ID:          meta.ID,
		URL:         h.cfg.PublicURL + "/attachments/" + meta.ID,
		ContentType: meta.ContentType,
		Size:        meta.Size,
	})
}

// GetAttachment serves a stored image.
func (h *Handler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := ulid.ParseStrict(id); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid attachment ID format")
		return
	}

	meta, data, err := h.blobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "attachment not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to read attachment")
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
