package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/internal/service"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/response"
)

type fileService interface {
	Upload(ctx context.Context, p *models.Principal, in service.FileUpload) (*models.File, error)
	Get(ctx context.Context, p *models.Principal, id string) (*models.File, error)
	DownloadURL(ctx context.Context, p *models.Principal, id string) (*dto.DownloadLinkResponse, error)
	Download(ctx context.Context, token string) (*models.File, io.ReadSeekCloser, error)
	Delete(ctx context.Context, p *models.Principal, id string) error
	Attach(ctx context.Context, p *models.Principal, responseID, fileID string) (*models.ResponseFile, error)
	Detach(ctx context.Context, p *models.Principal, responseID, fileID string, deleteOrphan bool) (*service.DetachResult, error)
}

// FileHandler exposes evidence uploads and response links.
type FileHandler struct {
	service  fileService
	maxBytes int64
}

// NewFileHandler builds a new handler. Uploads are read up to maxBytes+1 so
// the service can reject oversized payloads.
func NewFileHandler(svc fileService, maxBytes int64) *FileHandler {
	if maxBytes <= 0 {
		maxBytes = service.DefaultMaxUploadBytes
	}
	return &FileHandler{service: svc, maxBytes: maxBytes}
}

// Upload godoc
// @Summary Upload an evidence file
// @Tags Files
// @Accept mpfd
// @Produce json
// @Param orgId formData string true "Organization ID"
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrBadInput, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
		return
	}
	item, err := h.service.Upload(c.Request.Context(), principalFromContext(c), service.FileUpload{
		OrgID:       c.PostForm("orgId"),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Get godoc
// @Summary Get file metadata
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Router /files/{id} [get]
func (h *FileHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DownloadURL godoc
// @Summary Issue a signed download link
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Router /files/{id}/download-url [get]
func (h *FileHandler) DownloadURL(c *gin.Context) {
	link, err := h.service.DownloadURL(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Stream a file through a signed token
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/download/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	file, body, err := h.service.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer body.Close() //nolint:errcheck
	serveAttachment(c, file.Metadata.Filename, file.Metadata.ContentType, file.Metadata.CreatedAt, body)
}

// Delete godoc
// @Summary Delete an unreferenced file
// @Tags Files
// @Param id path string true "File ID"
// @Success 204
// @Failure 422 {object} response.Envelope
// @Router /files/{id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Attach godoc
// @Summary Link a file to a response
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "Response ID"
// @Param payload body dto.AttachFileRequest true "File reference"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /responses/{id}/files [post]
func (h *FileHandler) Attach(c *gin.Context) {
	var req dto.AttachFileRequest
	if err := bindJSON(c, &req, "invalid attach payload"); err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.service.Attach(c.Request.Context(), principalFromContext(c), c.Param("id"), req.FileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Detach godoc
// @Summary Unlink a file from a response
// @Tags Files
// @Produce json
// @Param id path string true "Response ID"
// @Param fileId path string true "File ID"
// @Param deleteOrphan query bool false "Delete the file when no links remain"
// @Success 200 {object} response.Envelope
// @Router /responses/{id}/files/{fileId} [delete]
func (h *FileHandler) Detach(c *gin.Context) {
	res, err := h.service.Detach(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Param("fileId"), c.Query("deleteOrphan") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func serveAttachment(c *gin.Context, filename, contentType string, modified time.Time, body io.ReadSeeker) {
	if contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	http.ServeContent(c.Writer, c.Request, filename, modified, body)
}
