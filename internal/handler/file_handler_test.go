package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/internal/service"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

type fileServiceMock struct {
	upload       service.FileUpload
	attached     [2]string
	deleteOrphan bool
	file         *models.File
	body         string
	err          error
}

func (m *fileServiceMock) Upload(_ context.Context, _ *models.Principal, in service.FileUpload) (*models.File, error) {
	m.upload = in
	if m.err != nil {
		return nil, m.err
	}
	return &models.File{ID: "f-1", OrgID: in.OrgID, Metadata: models.FileMetadata{Filename: in.Filename, Size: int64(len(in.Data))}}, nil
}

func (m *fileServiceMock) Get(context.Context, *models.Principal, string) (*models.File, error) {
	return m.file, m.err
}

func (m *fileServiceMock) DownloadURL(context.Context, *models.Principal, string) (*dto.DownloadLinkResponse, error) {
	return &dto.DownloadLinkResponse{URL: "/api/v1/files/download/tok", Token: "tok"}, m.err
}

func (m *fileServiceMock) Download(context.Context, string) (*models.File, io.ReadSeekCloser, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.file, readSeekCloser{strings.NewReader(m.body)}, nil
}

func (m *fileServiceMock) Delete(context.Context, *models.Principal, string) error {
	return m.err
}

func (m *fileServiceMock) Attach(_ context.Context, _ *models.Principal, responseID, fileID string) (*models.ResponseFile, error) {
	m.attached = [2]string{responseID, fileID}
	if m.err != nil {
		return nil, m.err
	}
	return &models.ResponseFile{ResponseID: responseID, FileID: fileID}, nil
}

func (m *fileServiceMock) Detach(_ context.Context, _ *models.Principal, _, _ string, deleteOrphan bool) (*service.DetachResult, error) {
	m.deleteOrphan = deleteOrphan
	return &service.DetachResult{FileDeleted: deleteOrphan}, m.err
}

func multipartBody(t *testing.T, orgID, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("orgId", orgID))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFileHandlerUploadReadsMultipart(t *testing.T) {
	svc := &fileServiceMock{}
	h := NewFileHandler(svc, 16)

	body, ctype := multipartBody(t, "org-1", "proof.csv", "text/csv", []byte("a,b\n1,2\n"))
	c, w := newGinContext(http.MethodPost, "/files", body.Bytes())
	c.Request.Header.Set("Content-Type", ctype)
	withPrincipal(c, "user")

	h.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "org-1", svc.upload.OrgID)
	assert.Equal(t, "proof.csv", svc.upload.Filename)
	assert.Equal(t, "text/csv", svc.upload.ContentType)
	assert.Equal(t, "a,b\n1,2\n", string(svc.upload.Data))
}

func TestFileHandlerUploadTruncatesAtLimitPlusOne(t *testing.T) {
	svc := &fileServiceMock{}
	h := NewFileHandler(svc, 4)

	body, ctype := multipartBody(t, "org-1", "big.txt", "text/plain", []byte("0123456789"))
	c, _ := newGinContext(http.MethodPost, "/files", body.Bytes())
	c.Request.Header.Set("Content-Type", ctype)
	withPrincipal(c, "user")

	h.Upload(c)
	assert.Len(t, svc.upload.Data, 5)
}

func TestFileHandlerUploadRequiresFile(t *testing.T) {
	h := NewFileHandler(&fileServiceMock{}, 0)
	c, w := newGinContext(http.MethodPost, "/files", []byte(`{}`))
	withPrincipal(c, "user")

	h.Upload(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file is required", decode(t, w).Error.Message)
}

func TestFileHandlerAttachAndDetach(t *testing.T) {
	svc := &fileServiceMock{}
	h := NewFileHandler(svc, 0)

	c, w := newGinContext(http.MethodPost, "/responses/r-1/files", []byte(`{"fileId":"f-1"}`))
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	withPrincipal(c, "user")
	h.Attach(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, [2]string{"r-1", "f-1"}, svc.attached)

	c, w = newGinContext(http.MethodDelete, "/responses/r-1/files/f-1?deleteOrphan=true", nil)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}, {Key: "fileId", Value: "f-1"}}
	withPrincipal(c, "user")
	h.Detach(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.deleteOrphan)
	assert.JSONEq(t, `{"fileDeleted":true}`, string(decode(t, w).Data))
}

func TestFileHandlerDeleteReferenced(t *testing.T) {
	h := NewFileHandler(&fileServiceMock{err: appErrors.ErrFileInUse}, 0)
	c, w := newGinContext(http.MethodDelete, "/files/f-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "f-1"}}
	withPrincipal(c, "user")

	h.Delete(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, appErrors.ErrInvariant.Code, decode(t, w).Error.Code)
}

func TestFileHandlerDownloadServesContent(t *testing.T) {
	svc := &fileServiceMock{
		file: &models.File{ID: "f-1", Metadata: models.FileMetadata{
			Filename:    "proof.txt",
			ContentType: "text/plain",
			CreatedAt:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
		body: "evidence",
	}
	h := NewFileHandler(svc, 0)
	c, w := newGinContext(http.MethodGet, "/files/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "evidence", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
