package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"notarypro/internal/domain"
)

const (
	DocumentsPrefix = "notary_documents"

	DefaultMaxBytes int64 = 15 << 20
)

const (
	mimePDF  = "application/pdf"
	mimeDoc  = "application/msword"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
)

// allowedTypes maps accepted MIME types to the extension used when the client sent none.
var allowedTypes = map[string]string{
	mimePDF:  ".pdf",
	mimeDoc:  ".doc",
	mimeDocx: ".docx",
	mimeJPEG: ".jpg",
	mimePNG:  ".png",
}

func Allowed(mimeType string) bool {
	_, ok := allowedTypes[mimeType]
	return ok
}

type Upload struct {
	FieldName   string
	FileName    string
	ContentType string
	Body        io.Reader
}

type StoredFile struct {
	Path     string
	FileName string
	FileType string
	Size     int64
}

// Adapter validates incoming files and places them on a Backend.
type Adapter struct {
	backend  Backend
	maxBytes int64
	logger   *zap.Logger
}

func NewAdapter(backend Backend, maxBytes int64, logger *zap.Logger) *Adapter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Adapter{backend: backend, maxBytes: maxBytes, logger: logger}
}

func (a *Adapter) MaxBytes() int64 {
	return a.maxBytes
}

// Store checks type and size, then writes the file under a collision-resistant name.
func (a *Adapter) Store(ctx context.Context, up Upload) (*StoredFile, error) {
	data, err := io.ReadAll(io.LimitReader(up.Body, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %s", domain.ErrPayloadTooLarge, humanize.IBytes(uint64(a.maxBytes)))
	}

	fileType := normalizeType(up.ContentType)
	if fileType == "" || fileType == "application/octet-stream" {
		fileType = normalizeType(mimetype.Detect(data).String())
	}
	defaultExt, ok := allowedTypes[fileType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, fileType)
	}

	ext := strings.ToLower(filepath.Ext(up.FileName))
	if ext == "" {
		ext = defaultExt
	}
	field := up.FieldName
	if field == "" {
		field = "file"
	}

	key := path.Join(DocumentsPrefix, fmt.Sprintf("%s-%d-%d%s", field, time.Now().UnixMilli(), rand.Intn(1e9), ext))
	if err := a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), fileType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	a.logger.Debug("file stored",
		zap.String("path", key),
		zap.String("type", fileType),
		zap.String("size", humanize.IBytes(uint64(len(data)))),
	)

	name := up.FileName
	if name == "" {
		name = path.Base(key)
	}
	return &StoredFile{Path: key, FileName: name, FileType: fileType, Size: int64(len(data))}, nil
}

// Put writes derived artifacts that bypass upload validation.
func (a *Adapter) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (a *Adapter) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.backend.Open(ctx, key)
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	return a.backend.Delete(ctx, key)
}

func normalizeType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
