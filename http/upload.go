package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"audioclass/audio"
	"audioclass/ml"
)

var (
	uploadDir   = "uploads"
	keepUploads = false
)

// SetUploadPolicy sets where uploads are staged and whether they are
// kept after classification.
func SetUploadPolicy(dir string, keep bool) {
	if dir != "" {
		uploadDir = dir
	}
	keepUploads = keep
}

// saveUpload validates the upload and stages it under the upload dir.
// It returns the sanitized display name, the staged path and a cleanup
// func honoring the keep policy.
func saveUpload(fh *multipart.FileHeader) (name, path string, cleanup func(), err error) {
	name = sanitizeFilename(fh.Filename)
	if !audio.SupportedExt(name) {
		return "", "", nil, fmt.Errorf("%w: unsupported file type %q", ml.ErrInvalidInput, filepath.Ext(name))
	}
	if fh.Size == 0 {
		return "", "", nil, fmt.Errorf("%w: empty file", ml.ErrInvalidInput)
	}

	src, err := fh.Open()
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ml.ErrInvalidInput, err)
	}
	defer src.Close()

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", "", nil, err
	}
	path = filepath.Join(uploadDir, uuid.NewString()+"_"+name)

	dst, err := os.Create(path)
	if err != nil {
		return "", "", nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", "", nil, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", "", nil, err
	}

	cleanup = func() {
		if !keepUploads {
			os.Remove(path)
		}
	}
	return name, path, cleanup, nil
}

// sanitizeFilename normalizes the client-supplied name to NFC and strips
// anything that could escape the upload directory.
func sanitizeFilename(raw string) string {
	name := norm.NFC.String(raw)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
