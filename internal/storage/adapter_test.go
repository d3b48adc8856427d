package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap/zaptest"

	"notarypro/internal/domain"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestAdapter(t *testing.T, maxBytes int64) (*Adapter, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewAdapter(NewLocalBackendFs(fs), maxBytes, zaptest.NewLogger(t)), fs
}

func TestStore(t *testing.T) {
	namePattern := regexp.MustCompile(`^notary_documents/file-\d+-\d+\.pdf$`)

	tests := []struct {
		name     string
		upload   Upload
		maxBytes int64
		wantType string
		wantErr  error
	}{
		{
			name: "declared pdf",
			upload: Upload{
				FieldName:   "file",
				FileName:    "poder.pdf",
				ContentType: "application/pdf",
				Body:        strings.NewReader("%PDF-1.4\n%%EOF\n"),
			},
			wantType: "application/pdf",
		},
		{
			name: "octet stream is sniffed",
			upload: Upload{
				FieldName:   "file",
				FileName:    "scan.pdf",
				ContentType: "application/octet-stream",
				Body:        strings.NewReader("%PDF-1.7\n%%EOF\n"),
			},
			wantType: "application/pdf",
		},
		{
			name: "missing type sniffs png",
			upload: Upload{
				FieldName: "file",
				FileName:  "id.png",
				Body:      bytes.NewReader(pngHeader),
			},
			wantType: "image/png",
		},
		{
			name: "text is unsupported",
			upload: Upload{
				FieldName:   "file",
				FileName:    "notes.txt",
				ContentType: "text/plain",
				Body:        strings.NewReader("hello"),
			},
			wantErr: domain.ErrUnsupportedFileType,
		},
		{
			name: "oversized file",
			upload: Upload{
				FieldName:   "file",
				FileName:    "big.pdf",
				ContentType: "application/pdf",
				Body:        bytes.NewReader(make([]byte, 1025)),
			},
			maxBytes: 1024,
			wantErr:  domain.ErrPayloadTooLarge,
		},
		{
			name: "exactly at the limit",
			upload: Upload{
				FieldName:   "file",
				FileName:    "edge.jpg",
				ContentType: "image/jpeg",
				Body:        bytes.NewReader(make([]byte, 1024)),
			},
			maxBytes: 1024,
			wantType: "image/jpeg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fs := newTestAdapter(t, tt.maxBytes)

			got, err := a.Store(context.Background(), tt.upload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Store() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Store() unexpected error = %v", err)
			}
			if got.FileType != tt.wantType {
				t.Errorf("FileType = %q, want %q", got.FileType, tt.wantType)
			}
			if got.FileName != tt.upload.FileName {
				t.Errorf("FileName = %q, want %q", got.FileName, tt.upload.FileName)
			}
			exists, err := afero.Exists(fs, got.Path)
			if err != nil || !exists {
				t.Errorf("stored file %q missing (err %v)", got.Path, err)
			}
		})
	}

	a, _ := newTestAdapter(t, 0)
	got, err := a.Store(context.Background(), Upload{
		FieldName:   "file",
		FileName:    "Poder.PDF",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF-1.4"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !namePattern.MatchString(got.Path) {
		t.Errorf("Path = %q, want match %s", got.Path, namePattern)
	}
}

func TestStoreNamesAreDistinct(t *testing.T) {
	a, _ := newTestAdapter(t, 0)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		got, err := a.Store(context.Background(), Upload{
			FieldName:   "file",
			FileName:    "same.pdf",
			ContentType: "application/pdf",
			Body:        strings.NewReader("%PDF-1.4"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if seen[got.Path] {
			t.Fatalf("duplicate path %q", got.Path)
		}
		seen[got.Path] = true
	}
}

func TestLocalBackendRoundTrip(t *testing.T) {
	b := NewLocalBackendFs(afero.NewMemMapFs())
	ctx := context.Background()

	if err := b.Put(ctx, "notary_documents/a.pdf", strings.NewReader("content"), 7, "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := b.Open(ctx, "notary_documents/a.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "content" {
		t.Errorf("content = %q", data)
	}

	if err := b.Delete(ctx, "notary_documents/a.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := b.Delete(ctx, "notary_documents/a.pdf"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := b.Open(ctx, "notary_documents/a.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Open(deleted) error = %v, want ErrObjectNotFound", err)
	}
}
