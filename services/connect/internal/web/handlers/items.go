package handlers

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// ListItems returns every item newest first, optionally narrowed by the
// "category" query parameter.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	var (
		items []models.Item
		err   error
	)
	if c := r.URL.Query().Get("category"); c != "" {
		category := models.Category(c)
		if !category.Valid() {
			h.writeErr(w, r, fmt.Errorf("%w: category must be one of %v", apperr.ErrValidation, models.Categories))
			return
		}
		items, err = h.catalog.ListByCategory(r.Context(), category)
	} else {
		items, err = h.catalog.ListAll(r.Context())
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, nonNil(items))
}

// GetItem returns one item.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, item)
}

// CreateItem posts an item. The body is either JSON or a multipart form
// with an optional "image" file.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	var draft models.ItemDraft
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		draft, err = h.multipartDraft(r, user.ID)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
	} else if !h.decode(w, r, &draft) {
		return
	}

	item, err := h.catalog.Create(r.Context(), user.ID, draft)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusCreated, item)
}

func (h *Handler) multipartDraft(r *http.Request, ownerID string) (models.ItemDraft, error) {
	maxBytes := int64(h.cfg.Upload.MaxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return models.ItemDraft{}, fmt.Errorf("%w: invalid form: %v", apperr.ErrValidation, err)
	}

	draft := models.ItemDraft{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    models.Category(r.FormValue("category")),
	}
	// Reject the fields before anything reaches the bucket.
	if err := h.validate.Struct(draft); err != nil {
		return draft, err
	}

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return draft, nil
	}
	if err != nil {
		return draft, fmt.Errorf("%w: image: %v", apperr.ErrValidation, err)
	}
	defer file.Close()

	// Trust the bytes over the client's declared type.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return draft, fmt.Errorf("%w: read image: %v", apperr.ErrValidation, err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return draft, fmt.Errorf("%w: image must be an image file, got %s", apperr.ErrValidation, contentType)
	}

	url, err := h.uploader.Upload(r.Context(), ownerID, header.Filename, contentType, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		return draft, err
	}
	draft.ImageURL = url
	return draft, nil
}

// DeleteItem removes an item. Owners may delete their own; admins any.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id"), user.ID, user.IsAdmin); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyItems lists the caller's own items.
func (h *Handler) MyItems(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	items, err := h.catalog.ListByOwner(r.Context(), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, nonNil(items))
}

// AdminItems lists every item for moderation.
func (h *Handler) AdminItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListAll(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, nonNil(items))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
