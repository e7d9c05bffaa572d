package grievances

import (
	"context"
	"errors"
	"mime"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/civic-grievance-backend/internal/auth"
	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/utils"
)

const (
	maxFiles       = 10
	maxFileSize    = 10 * 1024 * 1024
	signedURLTTL   = 60 // seconds
	errNoStorage   = "file storage not configured"
	errUnsupported = "only JPEG, PNG, WEBP or PDF are allowed"
)

var allowedMime = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// formFiles accepts both files[] and files keys.
func formFiles(form *multipart.Form) []*multipart.FileHeader {
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	return files
}

// uploadAll stores each file independently. A failed file gets an "error"
// entry and does not stop the others.
func (h *Handler) uploadAll(ctx context.Context, grievanceID uuid.UUID, files []*multipart.FileHeader) []fiber.Map {
	results := make([]fiber.Map, 0, len(files))
	for i, fh := range files {
		res := fiber.Map{"name": fh.Filename, "size": fh.Size}
		if i >= maxFiles {
			res["error"] = "max 10 files allowed"
		} else if rec, msg := h.uploadOne(ctx, grievanceID, fh); msg != "" {
			res["error"] = msg
		} else {
			res["id"] = rec.ID
			res["key"] = rec.Key
		}
		results = append(results, res)
	}
	return results
}

func (h *Handler) uploadOne(ctx context.Context, grievanceID uuid.UUID, fh *multipart.FileHeader) (*models.GrievanceFile, string) {
	if h.store == nil {
		return nil, errNoStorage
	}
	if fh.Size <= 0 {
		return nil, "empty file"
	}
	if fh.Size > maxFileSize {
		return nil, "max 10MB per file"
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	if !allowedMime[ct] {
		return nil, errUnsupported
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "open failed"
	}
	defer f.Close()

	key := h.store.MakeObjectKey(grievanceID.String(), fh.Filename)
	if err := h.store.Upload(ctx, key, f, ct, fh.Size); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("attachment upload failed")
		return nil, "upload failed"
	}

	rec := models.GrievanceFile{
		GrievanceID:  grievanceID,
		Key:          key,
		Mime:         ct,
		Size:         int(fh.Size),
		OriginalName: fh.Filename,
	}
	if err := h.db.WithContext(ctx).Create(&rec).Error; err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("attachment row insert failed")
		// Without a row nothing would ever release the object.
		if derr := h.store.BulkDelete(ctx, []string{key}); derr != nil {
			h.log.Warn().Err(derr).Str("key", key).Msg("orphaned attachment not removed")
		}
		return nil, "database error"
	}
	return &rec, ""
}

// Upload Grievance Files godoc
// @Summary      Attach files to a grievance
// @Description  Filer uploads up to 10 photos or PDFs; each file succeeds or fails on its own
// @Tags         files
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string   true  "grievance id (uuid)"
// @Param        files  formData  []file   true  "JPEG/PNG/WEBP/PDF (max 10)"
// @Success      201    {object}  map[string]any  "results: id, key, name, size, error"
// @Failure      400    {object}  models.ErrorResponse
// @Failure      403    {object}  models.ErrorResponse
// @Router       /grievances/{id}/files [post]
func (h *Handler) UploadFiles(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	filerID := auth.MustUserID(c)

	var g models.Grievance
	if err := h.db.WithContext(c.UserContext()).Where("id = ? AND filer_id = ?", id, filerID).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Forbidden("only the filer may attach files")
		}
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files[]")
	}
	files := formFiles(form)
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "files are required (use key: files[])")
	}
	if len(files) > maxFiles {
		return fiber.NewError(fiber.StatusBadRequest, "max 10 files allowed")
	}

	// 201 even when some files failed; clients check "error" per item.
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"results": h.uploadAll(c.UserContext(), g.ID, files),
	})
}

// Signed Download URL godoc
// @Summary      Get signed URL
// @Description  The filer, the assignee or any staff member obtains a short-lived signed URL
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Param        fileID  path string true "file id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /files/{fileID}/signed-url [get]
func (h *Handler) SignedDownloadURL(c *fiber.Ctx) error {
	fileID, err := utils.ParamUUID(c, "fileID")
	if err != nil {
		return err
	}
	userID := auth.MustUserID(c)

	var gf models.GrievanceFile
	if err := h.db.WithContext(c.UserContext()).Preload("Grievance").First(&gf, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("file")
		}
		return err
	}

	g := gf.Grievance
	allowed := auth.IsStaff(c) ||
		g.FilerID.String() == userID ||
		(g.AssignedToID != nil && g.AssignedToID.String() == userID)
	if !allowed {
		return apperr.Forbidden("not allowed to download this file")
	}
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, errNoStorage)
	}

	url, err := h.store.SignedURL(c.UserContext(), gf.Key, signedURLTTL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "url": url, "expires_in": signedURLTTL, "now": time.Now().UTC()})
}
