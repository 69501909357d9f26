package api

import (
	"database/sql"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rewear/rewear/internal/clock"
	"github.com/rewear/rewear/internal/imaging"
	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/policy"
	"github.com/rewear/rewear/internal/store"
)

// defaultItemsPerPage is the browse page size when none is requested.
const defaultItemsPerPage = 12

// ItemsHandler handles listing endpoints.
type ItemsHandler struct {
	DB       *sql.DB
	Uploader PhotoUploader
	Clock    clock.Clock
}

type itemRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Size        string   `json:"size"`
	Condition   string   `json:"condition"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	PointsValue int      `json:"points_value"`
	Brand       string   `json:"brand"`
	Color       string   `json:"color"`
	Material    string   `json:"material"`
	Location    string   `json:"location"`
}

type updateItemRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Size        *string   `json:"size"`
	Condition   *string   `json:"condition"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	PointsValue *int      `json:"points_value"`
	Brand       *string   `json:"brand"`
	Color       *string   `json:"color"`
	Material    *string   `json:"material"`
	Location    *string   `json:"location"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minPoints, err := queryInt(r, "min_points")
	if err != nil {
		writeError(w, r, err)
		return
	}
	maxPoints, err := queryInt(r, "max_points")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageFromQuery(r, defaultItemsPerPage)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, total, err := store.ListItems(r.Context(), h.DB, store.ItemFilter{
		Category:  q.Get("category"),
		Size:      q.Get("size"),
		Condition: q.Get("condition"),
		Search:    q.Get("search"),
		MinPoints: minPoints,
		MaxPoints: maxPoints,
	}, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, pageResponse("items", items, total, page))
}

// Get handles GET /api/items/{id}. Unapproved items are only visible to
// their owner and admins.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == nil || (!item.IsApproved && !policy.CanModifyItem(item, CurrentUser(r.Context()))) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Mine handles GET /api/items/mine.
func (h *ItemsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItemsByOwner(r.Context(), h.DB, CurrentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items. The body is either JSON with image URLs or
// multipart form data with up to five photo files in "images".
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var (
		req itemRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = h.readMultipart(w, r)
	} else if err = decodeJSON(r, &req); err != nil {
		err = fmt.Errorf("%w: invalid request body", store.ErrValidation)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := validateItem(req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, CurrentUser(r.Context()).ID, store.ItemInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Images:      req.Images,
		Size:        req.Size,
		Condition:   req.Condition,
		Category:    req.Category,
		Tags:        req.Tags,
		PointsValue: req.PointsValue,
		Brand:       req.Brand,
		Color:       req.Color,
		Material:    req.Material,
		Location:    req.Location,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// readMultipart parses a multipart listing, normalizes each photo and
// uploads it to the media host.
func (h *ItemsHandler) readMultipart(w http.ResponseWriter, r *http.Request) (itemRequest, error) {
	var req itemRequest

	r.Body = http.MaxBytesReader(w, r.Body, model.MaxItemImages*imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return req, fmt.Errorf("%w: invalid multipart body: %v", store.ErrValidation, err)
	}

	f := r.MultipartForm
	value := func(name string) string {
		if v := f.Value[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	req.Title = value("title")
	req.Description = value("description")
	req.Size = value("size")
	req.Condition = value("condition")
	req.Category = value("category")
	req.Brand = value("brand")
	req.Color = value("color")
	req.Material = value("material")
	req.Location = value("location")
	if v := value("points_value"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: points_value must be an integer", store.ErrValidation)
		}
		req.PointsValue = n
	}
	for _, v := range f.Value["tags"] {
		req.Tags = append(req.Tags, strings.Split(v, ",")...)
	}

	files := f.File["images"]
	if len(files) > model.MaxItemImages {
		return req, fmt.Errorf("%w: at most %d images", store.ErrValidation, model.MaxItemImages)
	}
	if len(files) > 0 && h.Uploader == nil {
		return req, fmt.Errorf("%w: photo uploads are not configured", store.ErrValidation)
	}

	for _, fh := range files {
		if fh.Size > imaging.MaxUploadBytes {
			return req, fmt.Errorf("%w: %s exceeds 5 MB", store.ErrValidation, fh.Filename)
		}
		file, err := fh.Open()
		if err != nil {
			return req, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		photo, err := imaging.Normalize(file)
		file.Close()
		if err != nil {
			return req, fmt.Errorf("%w: %s: %v", store.ErrValidation, fh.Filename, err)
		}

		url, err := h.Uploader.Upload(r.Context(), fh.Filename, photo.Data)
		if err != nil {
			return req, fmt.Errorf("uploading photo: %w", err)
		}
		req.Images = append(req.Images, url)
	}
	return req, nil
}

func validateItem(req itemRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title required", store.ErrValidation)
	}
	if strings.TrimSpace(req.Description) == "" {
		return fmt.Errorf("%w: description required", store.ErrValidation)
	}
	if len(req.Images) > model.MaxItemImages {
		return fmt.Errorf("%w: at most %d images", store.ErrValidation, model.MaxItemImages)
	}
	if err := model.ValidateItemAttributes(req.Size, req.Condition, req.Category, req.PointsValue); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

// Update handles PUT /api/items/{id}. Only the owner may edit, and
// availability cannot be changed here.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if !policy.IsOwner(item, CurrentUser(r.Context())) {
		jsonError(w, http.StatusForbidden, "only the owner can edit this item")
		return
	}

	// Validate the merged result so partial updates cannot produce an
	// invalid combination.
	merged := itemRequest{
		Title: item.Title, Description: item.Description,
		Size: item.Size, Condition: item.Condition, Category: item.Category,
		PointsValue: item.PointsValue,
	}
	setIf(&merged.Title, req.Title)
	setIf(&merged.Description, req.Description)
	setIf(&merged.Size, req.Size)
	setIf(&merged.Condition, req.Condition)
	setIf(&merged.Category, req.Category)
	setIf(&merged.PointsValue, req.PointsValue)
	if err := validateItem(merged); err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateItem(r.Context(), h.DB, id, store.ItemUpdate{
		Title:       req.Title,
		Description: req.Description,
		Size:        req.Size,
		Condition:   req.Condition,
		Category:    req.Category,
		Tags:        req.Tags,
		PointsValue: req.PointsValue,
		Brand:       req.Brand,
		Color:       req.Color,
		Material:    req.Material,
		Location:    req.Location,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if !policy.CanModifyItem(item, CurrentUser(r.Context())) {
		jsonError(w, http.StatusForbidden, "only the owner or an admin can delete this item")
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

type approveRequest struct {
	IsApproved *bool `json:"is_approved"`
}

// Approve handles PATCH /api/items/{id}/approve.
func (h *ItemsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req approveRequest
	if err := decodeJSON(r, &req); err != nil || req.IsApproved == nil {
		jsonError(w, http.StatusBadRequest, "is_approved required")
		return
	}

	admin := CurrentUser(r.Context())
	if err := store.SetItemApproval(r.Context(), h.DB, id, *req.IsApproved, admin.ID, h.Clock.Now()); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Pending handles GET /api/users/admin/pending-items.
func (h *ItemsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r, defaultItemsPerPage)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, total, err := store.ListPendingItems(r.Context(), h.DB, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, pageResponse("items", items, total, page))
}
