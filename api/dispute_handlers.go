package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"disputeflow/auth"
	"disputeflow/dispute"
)

// Attachments are capped well below typical CDN limits.
const maxUploadBytes = 10 << 20

// DisputeHandler serves the dispute lifecycle endpoints.
type DisputeHandler struct {
	svc    *dispute.Service
	logger *zap.Logger
}

func NewDisputeHandler(svc *dispute.Service, logger *zap.Logger) *DisputeHandler {
	return &DisputeHandler{svc: svc, logger: logger}
}

// Catalog lists categories and subcategories.
func (h *DisputeHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	cats, subs, err := h.svc.Catalog(r.Context())
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Categories fetched successfully", map[string]any{
		"categories":    cats,
		"subCategories": subs,
	})
}

// Create opens a dispute. Accepts multipart/form-data with an optional file
// part, or a plain JSON body.
func (h *DisputeHandler) Create(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	req, fieldErrs, err := h.decodeCreate(r)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}
	if len(fieldErrs) > 0 {
		FailValidation(w, r, fieldErrs)
		return
	}

	result, err := h.svc.Create(r.Context(), sub, req)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	data := map[string]any{
		"dispute_id":  result.Dispute.ID,
		"tracking_id": result.Dispute.TrackingID,
	}
	if result.FileURL != "" {
		data["file"] = result.FileURL
	}
	if result.Warning != "" {
		data["warning"] = result.Warning
	}
	OK(w, r, "Dispute created successfully", data)
}

// List returns the disputes visible to the caller plus recomputed analytics.
func (h *DisputeHandler) List(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	disputes, err := h.svc.List(r.Context(), sub)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	analytics, err := h.svc.Analytics(r.Context())
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Disputes fetched successfully", map[string]any{
		"disputes":  disputes,
		"analytics": analytics,
	})
}

// Get fetches one dispute with the category catalog (admin edit view).
func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	view, err := h.svc.Get(r.Context(), sub, chi.URLParam(r, "id"))
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	cats, subs, err := h.svc.Catalog(r.Context())
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Dispute fetched successfully", map[string]any{
		"dispute":       view.Dispute,
		"category":      view.Category,
		"subCategory":   view.Subcategory,
		"filePath":      view.FilePath,
		"categories":    cats,
		"subCategories": subs,
	})
}

// GetForView fetches one dispute with its reply thread (user view).
func (h *DisputeHandler) GetForView(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	view, err := h.svc.GetForView(r.Context(), sub, chi.URLParam(r, "id"))
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Dispute fetched successfully", map[string]any{"dispute": view})
}

// Delete removes a dispute; the body carries the id.
func (h *DisputeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		FailValidation(w, r, map[string]string{"body": "invalid JSON"})
		return
	}

	if err := h.svc.Delete(r.Context(), sub, req.ID); err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Dispute deleted successfully", nil)
}

// Update rewrites a dispute; owner only, optional replacement attachment.
func (h *DisputeHandler) Update(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	req, fieldErrs, err := h.decodeUpdate(r)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}
	if len(fieldErrs) > 0 {
		FailValidation(w, r, fieldErrs)
		return
	}

	if err := h.svc.Update(r.Context(), sub, req); err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Dispute updated successfully", nil)
}

// Reply appends a comment; replying to a resolved dispute reopens it.
func (h *DisputeHandler) Reply(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	var req struct {
		DisputeID string `json:"dispute_id"`
		Reply     string `json:"reply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		FailValidation(w, r, map[string]string{"body": "invalid JSON"})
		return
	}

	result, err := h.svc.AddReply(r.Context(), sub, req.DisputeID, req.Reply)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	data := map[string]any{"reply": result.Reply}
	if result.Warning != "" {
		data["warning"] = result.Warning
	}
	OK(w, r, "Reply added successfully", data)
}

func (h *DisputeHandler) decodeCreate(r *http.Request) (dispute.CreateRequest, map[string]string, error) {
	var req dispute.CreateRequest
	fieldErrs := map[string]string{}

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, nil, fmt.Errorf("%w: parse form: %v", dispute.ErrValidation, err)
		}
		req.Title = r.FormValue("title")
		req.CategoryName = r.FormValue("category_name")
		req.SubcategoryName = r.FormValue("sub_category_name")
		req.Description = r.FormValue("description")
		req.StartTime = parseTimeField(r.FormValue("start_time"), "start_time", fieldErrs)
		req.EndTime = parseTimeField(r.FormValue("end_time"), "end_time", fieldErrs)

		att, err := readFilePart(r)
		if err != nil {
			return req, nil, err
		}
		req.Attachment = att
	} else {
		var body struct {
			Title           string `json:"title"`
			CategoryName    string `json:"category_name"`
			SubcategoryName string `json:"sub_category_name"`
			Description     string `json:"description"`
			StartTime       string `json:"start_time"`
			EndTime         string `json:"end_time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, nil, fmt.Errorf("%w: invalid JSON", dispute.ErrValidation)
		}
		req.Title = body.Title
		req.CategoryName = body.CategoryName
		req.SubcategoryName = body.SubcategoryName
		req.Description = body.Description
		req.StartTime = parseTimeField(body.StartTime, "start_time", fieldErrs)
		req.EndTime = parseTimeField(body.EndTime, "end_time", fieldErrs)
	}

	return req, fieldErrs, nil
}

func (h *DisputeHandler) decodeUpdate(r *http.Request) (dispute.UpdateRequest, map[string]string, error) {
	var req dispute.UpdateRequest
	fieldErrs := map[string]string{}

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, nil, fmt.Errorf("%w: parse form: %v", dispute.ErrValidation, err)
		}
		req.ID = r.FormValue("id")
		req.Title = r.FormValue("title")
		req.CategoryID = r.FormValue("category_id")
		req.SubcategoryID = r.FormValue("subcategory_id")
		req.Description = r.FormValue("description")
		req.Status = dispute.Status(r.FormValue("status"))
		req.StartTime = parseTimeField(r.FormValue("start_time"), "start_time", fieldErrs)
		req.EndTime = parseTimeField(r.FormValue("end_time"), "end_time", fieldErrs)

		att, err := readFilePart(r)
		if err != nil {
			return req, nil, err
		}
		req.Attachment = att
	} else {
		var body struct {
			ID            string `json:"id"`
			Title         string `json:"title"`
			CategoryID    string `json:"category_id"`
			SubcategoryID string `json:"subcategory_id"`
			Description   string `json:"description"`
			StartTime     string `json:"start_time"`
			EndTime       string `json:"end_time"`
			Status        string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, nil, fmt.Errorf("%w: invalid JSON", dispute.ErrValidation)
		}
		req.ID = body.ID
		req.Title = body.Title
		req.CategoryID = body.CategoryID
		req.SubcategoryID = body.SubcategoryID
		req.Description = body.Description
		req.Status = dispute.Status(body.Status)
		req.StartTime = parseTimeField(body.StartTime, "start_time", fieldErrs)
		req.EndTime = parseTimeField(body.EndTime, "end_time", fieldErrs)
	}

	return req, fieldErrs, nil
}

func isMultipart(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func readFilePart(r *http.Request) (*dispute.Attachment, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read file: %v", dispute.ErrValidation, err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %v", dispute.ErrValidation, err)
	}

	return &dispute.Attachment{Filename: header.Filename, Content: content}, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimeField(value, field string, fieldErrs map[string]string) time.Time {
	if value == "" {
		fieldErrs[field] = "required"
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	fieldErrs[field] = "invalid date"
	return time.Time{}
}
