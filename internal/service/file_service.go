package service

import (
	"context"
	"encoding/hex"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/dto"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/storage"
)

// DefaultMaxUploadBytes caps evidence uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 1 << 20

type blobStore interface {
	Save(key string, data []byte) (string, error)
	Open(key string) (io.ReadSeekCloser, error)
	Delete(key string) error
}

type urlSigner interface {
	Generate(scope, id, key string) (string, time.Time, error)
	Parse(token, scope string) (*storage.SignedToken, error)
}

// FileServiceConfig tunes upload validation and download links.
type FileServiceConfig struct {
	MaxUploadBytes int64
	AllowedMIMEs   []string
	// DownloadBaseURL prefixes signed tokens, e.g. "/api/v1/files/download".
	DownloadBaseURL string
}

// FileUpload carries one uploaded evidence blob.
type FileUpload struct {
	OrgID       string
	Filename    string
	ContentType string
	Data        []byte
}

// DetachResult reports what Detach removed.
type DetachResult struct {
	FileDeleted bool `json:"fileDeleted"`
}

// FileService stores evidence files and manages their links to responses.
type FileService struct {
	files       fileStore
	responses   responseStore
	assessments assessmentStore
	blobs       blobStore
	signer      urlSigner
	tx          database.Transactor
	cfg         FileServiceConfig
	allowed     map[string]struct{}
	logger      *zap.Logger
	now         func() time.Time
}

// NewFileService constructs the service.
func NewFileService(files fileStore, responses responseStore, assessments assessmentStore, blobs blobStore, signer urlSigner, tx database.Transactor, cfg FileServiceConfig, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			allowed[m] = struct{}{}
		}
	}
	return &FileService{
		files:       files,
		responses:   responses,
		assessments: assessments,
		blobs:       blobs,
		signer:      signer,
		tx:          tx,
		cfg:         cfg,
		allowed:     allowed,
		logger:      logger,
		now:         time.Now,
	}
}

// Upload validates and stores a blob, then records its metadata.
func (s *FileService) Upload(ctx context.Context, p *models.Principal, in FileUpload) (*models.File, error) {
	if err := permit(p, authz.FileUpload, authz.Target{OrgID: in.OrgID}); err != nil {
		return nil, err
	}
	if len(in.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrBadInput, "file is empty")
	}
	if int64(len(in.Data)) > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrBadInput, "file exceeds maximum upload size")
	}
	name := sanitizeFilename(in.Filename)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrBadInput, "filename is required")
	}
	contentType := baseMIME(http.DetectContentType(in.Data))
	if contentType == "application/octet-stream" || contentType == "text/plain" {
		// Sniffing is coarse for office formats and csv; trust a declared type then.
		if declared := baseMIME(in.ContentType); declared != "" {
			contentType = declared
		}
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[contentType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrBadInput, "file type "+contentType+" is not allowed")
		}
	}

	sum := blake2b.Sum256(in.Data)
	f := &models.File{
		ID:    uuid.NewString(),
		OrgID: in.OrgID,
		Metadata: models.FileMetadata{
			Filename:    name,
			ContentType: contentType,
			Size:        int64(len(in.Data)),
			CreatedAt:   s.now().UTC(),
			UploadedBy:  p.UserID,
			Checksum:    hex.EncodeToString(sum[:]),
		},
	}
	key, err := s.blobs.Save(path.Join(in.OrgID, f.ID, name), in.Data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store file")
	}
	f.StoragePath = key
	if err := s.files.Create(ctx, f); err != nil {
		if rmErr := s.blobs.Delete(key); rmErr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("key", key), zap.Error(rmErr))
		}
		return nil, passThrough(err, "failed to record file")
	}
	s.logger.Info("file uploaded", zap.String("file_id", f.ID), zap.String("org_id", f.OrgID), zap.Int64("size", f.Metadata.Size))
	return f, nil
}

// Get returns file metadata.
func (s *FileService) Get(ctx context.Context, p *models.Principal, id string) (*models.File, error) {
	f, err := s.files.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, "file not found", "failed to load file")
	}
	if err := permit(p, authz.FileDownload, authz.Target{OrgID: f.OrgID}); err != nil {
		return nil, err
	}
	return f, nil
}

// DownloadURL issues a short-lived signed link for a file.
func (s *FileService) DownloadURL(ctx context.Context, p *models.Principal, id string) (*dto.DownloadLinkResponse, error) {
	f, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.signer.Generate(storage.ScopeFile, f.ID, f.StoragePath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download link")
	}
	return &dto.DownloadLinkResponse{
		URL:       strings.TrimRight(s.cfg.DownloadBaseURL, "/") + "/" + token,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// Download resolves a signed token into the file and an open blob reader.
// The caller closes the reader.
func (s *FileService) Download(ctx context.Context, token string) (*models.File, io.ReadSeekCloser, error) {
	claims, err := s.signer.Parse(token, storage.ScopeFile)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	f, err := s.files.FindByID(ctx, nil, claims.ID)
	if err != nil {
		return nil, nil, lookupErr(err, "file not found", "failed to load file")
	}
	if f.StoragePath != claims.Key {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	rc, err := s.blobs.Open(f.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to open file")
	}
	return f, rc, nil
}

// Delete removes a file that no response links to. Only the uploader may delete.
func (s *FileService) Delete(ctx context.Context, p *models.Principal, id string) error {
	var key string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		f, err := s.files.LockByID(ctx, exec, id)
		if err != nil {
			return lookupErr(err, "file not found", "failed to load file")
		}
		refs, err := s.files.ReferencingResponses(ctx, exec, id)
		if err != nil {
			return appErrors.Internal(err, "failed to check file references")
		}
		if err := permit(p, authz.FileDelete, fileTarget(f, len(refs) > 0)); err != nil {
			return err
		}
		if err := s.files.Delete(ctx, exec, id); err != nil {
			if isReferenced(err) {
				return appErrors.ErrFileInUse
			}
			return lookupErr(err, "file not found", "failed to delete file")
		}
		key = f.StoragePath
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to delete file")
	}
	s.removeBlob(key)
	return nil
}

// Attach links a file of the same organization to a draft response.
func (s *FileService) Attach(ctx context.Context, p *models.Principal, responseID, fileID string) (*models.ResponseFile, error) {
	var link *models.ResponseFile
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := s.lockResponseAssessment(ctx, exec, responseID)
		if err != nil {
			return err
		}
		if err := permit(p, authz.FileAttach, assessmentTarget(a)); err != nil {
			return err
		}
		f, err := s.files.LockByID(ctx, exec, fileID)
		if err != nil {
			return lookupErr(err, "file not found", "failed to load file")
		}
		if f.OrgID != a.OrgID {
			return appErrors.Clone(appErrors.ErrForbidden, "file belongs to another organization")
		}
		link = &models.ResponseFile{ResponseID: responseID, FileID: fileID, CreatedAt: s.now().UTC()}
		if err := s.files.Link(ctx, exec, link); err != nil {
			if isDuplicate(err) {
				return appErrors.ErrDuplicateLink
			}
			if isReferenced(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "response or file not found")
			}
			return appErrors.Internal(err, "failed to attach file")
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to attach file")
	}
	return link, nil
}

// Detach removes a response link. With deleteOrphan the file itself is removed when
// nothing else references it and the caller uploaded it.
func (s *FileService) Detach(ctx context.Context, p *models.Principal, responseID, fileID string, deleteOrphan bool) (*DetachResult, error) {
	result := &DetachResult{}
	var key string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec execer) error {
		a, err := s.lockResponseAssessment(ctx, exec, responseID)
		if err != nil {
			return err
		}
		if err := permit(p, authz.FileDetach, assessmentTarget(a)); err != nil {
			return err
		}
		if err := s.files.Unlink(ctx, exec, responseID, fileID); err != nil {
			return lookupErr(err, "file is not attached to response", "failed to detach file")
		}
		if !deleteOrphan {
			return nil
		}
		f, err := s.files.LockByID(ctx, exec, fileID)
		if err != nil {
			return lookupErr(err, "file not found", "failed to load file")
		}
		refs, err := s.files.ReferencingResponses(ctx, exec, fileID)
		if err != nil {
			return appErrors.Internal(err, "failed to check file references")
		}
		if !authz.Permit(p, authz.FileDelete, fileTarget(f, len(refs) > 0)).Allowed {
			return nil
		}
		if err := s.files.Delete(ctx, exec, fileID); err != nil {
			return appErrors.Internal(err, "failed to delete orphaned file")
		}
		key = f.StoragePath
		result.FileDeleted = true
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to detach file")
	}
	s.removeBlob(key)
	return result, nil
}

func (s *FileService) lockResponseAssessment(ctx context.Context, exec execer, responseID string) (*models.Assessment, error) {
	resp, err := s.responses.FindByID(ctx, exec, responseID)
	if err != nil {
		return nil, lookupErr(err, "response not found", "failed to load response")
	}
	return lockAssessment(ctx, s.assessments, exec, resp.AssessmentID)
}

func (s *FileService) removeBlob(key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(key); err != nil {
		s.logger.Warn("failed to remove file blob", zap.String("key", key), zap.Error(err))
	}
}

func fileTarget(f *models.File, referenced bool) authz.Target {
	return authz.Target{OrgID: f.OrgID, UploadedBy: f.Metadata.UploadedBy, FileReferenced: referenced}
}

func baseMIME(v string) string {
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}
