package stamp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"notarypro/internal/qr"
)

const (
	headerText = "DOCUMENTO CERTIFICADO"
	dateLayout = "02/01/2006 15:04"

	textLeft    = 40
	textTop     = 110
	lineSpacing = 14

	qrDescription = "position:br, offset:-40 40, scalefactor:0.35 abs, rotation:0"
)

var disableConfigDir sync.Once

// FileStore is the subset of storage the stamper reads originals from and writes results to.
type FileStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Request struct {
	SourcePath    string
	CertifierName string
	Code          string
	CertifiedAt   time.Time
}

type Result struct {
	Path     string
	FileName string
	Size     int64
}

// Stamper writes a certified copy of a PDF with a verification block on its last page.
type Stamper struct {
	files   FileStore
	baseURL string
	logger  *zap.Logger
}

func New(files FileStore, baseURL string, logger *zap.Logger) *Stamper {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Stamper{files: files, baseURL: baseURL, logger: logger}
}

func (s *Stamper) Stamp(ctx context.Context, req Request) (*Result, error) {
	rc, err := s.files.Open(ctx, req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source pdf: %w", err)
	}
	src, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read source pdf: %w", err)
	}

	out, err := s.render(src, req)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := CertifiedPath(req.SourcePath, time.Now())
	if err := s.files.Put(ctx, key, out, "application/pdf"); err != nil {
		return nil, fmt.Errorf("failed to store certified pdf: %w", err)
	}

	s.logger.Info("pdf stamped",
		zap.String("source", req.SourcePath),
		zap.String("output", key),
		zap.String("code", req.Code),
	)

	return &Result{Path: key, FileName: path.Base(key), Size: int64(len(out))}, nil
}

func (s *Stamper) render(src []byte, req Request) ([]byte, error) {
	conf := model.NewDefaultConfiguration()

	pages, err := api.PageCount(bytes.NewReader(src), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	if pages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	png, err := qr.PNG(qr.VerificationURL(s.baseURL, req.Code), qr.DefaultSize)
	if err != nil {
		return nil, err
	}
	qrMark, err := api.ImageWatermarkForReader(bytes.NewReader(png), qrDescription, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr stamp: %w", err)
	}

	marks := []*model.Watermark{qrMark}
	for i, line := range stampLines(req) {
		font := "Helvetica"
		if i == 0 {
			font = "Helvetica-Bold"
		}
		desc := fmt.Sprintf("fontname:%s, points:10, position:bl, offset:%d %d, scalefactor:1 abs, rotation:0, fillcolor:#000000",
			font, textLeft, textTop-i*lineSpacing)

		wm, err := api.TextWatermark(line, desc, true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("failed to build text stamp: %w", err)
		}
		marks = append(marks, wm)
	}

	var out bytes.Buffer
	err = api.AddWatermarksSliceMap(bytes.NewReader(src), &out, map[int][]*model.Watermark{pages: marks}, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp pdf: %w", err)
	}
	return out.Bytes(), nil
}

func stampLines(req Request) []string {
	return []string{
		headerText,
		"Certificado por: " + req.CertifierName,
		"Fecha: " + req.CertifiedAt.Format(dateLayout),
		"Codigo de verificacion: " + req.Code,
	}
}

// CertifiedPath places the certified copy next to the original.
func CertifiedPath(source string, at time.Time) string {
	dir, file := path.Split(source)
	base := strings.TrimSuffix(file, path.Ext(file))
	return dir + fmt.Sprintf("%s_certified_%d.pdf", base, at.UnixMilli())
}
