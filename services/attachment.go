package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

// MaxAttachmentSize caps a single uploaded file.
const MaxAttachmentSize = 20 << 20

var allowedAttachmentExt = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".txt": true, ".md": true,
	".zip": true, ".png": true, ".jpg": true, ".jpeg": true,
	".go": true, ".py": true, ".java": true, ".js": true, ".ts": true, ".c": true, ".cpp": true,
	".ipynb": true,
}

// FileStore turns uploaded bytes into a retrievable URL.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

type AttachmentService struct {
	files FileStore
}

func NewAttachmentService(files FileStore) *AttachmentService {
	return &AttachmentService{files: files}
}

// Upload stores the file and returns the metadata a submission keeps. The
// bytes themselves never reach the database.
func (s *AttachmentService) Upload(ctx context.Context, owner models.User, fh *multipart.FileHeader) (models.Attachment, error) {
	if s.files == nil {
		return models.Attachment{}, errs.New(errs.KindUnavailable, "file storage is not configured")
	}
	if fh.Size <= 0 {
		return models.Attachment{}, errs.Validation("file", "file is empty")
	}
	if fh.Size > MaxAttachmentSize {
		return models.Attachment{}, errs.Validation("file", "file is too large").
			With("max_bytes", MaxAttachmentSize).With("size", fh.Size)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedAttachmentExt[ext] {
		return models.Attachment{}, errs.Validation("file", "file type is not allowed").With("extension", ext)
	}

	f, err := fh.Open()
	if err != nil {
		return models.Attachment{}, errs.Validation("file", "cannot read uploaded file")
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := AttachmentKey(owner.ID, fh.Filename)
	url, err := s.files.Put(ctx, key, contentType, f, fh.Size)
	if err != nil {
		return models.Attachment{}, errs.Wrap(errs.KindUnavailable, err, "file storage unavailable")
	}
	return models.Attachment{
		Filename: fh.Filename,
		MimeType: contentType,
		Size:     fh.Size,
		URL:      url,
	}, nil
}

// AttachmentKey builds attachments/<owner>/<random>-<slug>.<ext>.
func AttachmentKey(owner uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("attachments/%s/%s-%s%s", owner, uuid.NewString()[:8], base, ext)
}
