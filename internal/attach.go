package internal

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// maxImageSize mirrors the server's upload cap. Oversized images are
// rejected locally before any bytes go on the wire.
const maxImageSize = 10 << 20

var allowedImageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
}

var (
	// ErrEmptyMessage rejects a send carrying neither text nor an image.
	ErrEmptyMessage = errors.New("message needs text or an image")
	// ErrImageTooLarge rejects attachments over the 10MB cap.
	ErrImageTooLarge = errors.New("image exceeds the 10MB limit")
	// ErrNotAnImage rejects files outside the allowed image formats.
	ErrNotAnImage = errors.New("file is not a supported image (png, jpg, jpeg, gif, webp, bmp)")
)

// ValidateImage checks extension, size and sniffed content type of a file
// the user wants to attach. The extension check mirrors the server's
// allowlist; the sniff catches renamed non-images early.
func ValidateImage(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return ErrNotAnImage
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return ErrNotAnImage
	}
	if info.Size() > maxImageSize {
		return ErrImageTooLarge
	}
	kind, err := mimetype.DetectFile(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(kind.String(), "image/") {
		return ErrNotAnImage
	}
	return nil
}

// BuildMessageForm assembles the multipart body for a message send. Either
// part may be absent, but not both; an image path is validated before being
// read.
func BuildMessageForm(content, imagePath string) (*bytes.Buffer, string, error) {
	content = strings.TrimSpace(content)
	if content == "" && imagePath == "" {
		return nil, "", ErrEmptyMessage
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("content", content); err != nil {
		return nil, "", err
	}
	if imagePath != "" {
		if err := ValidateImage(imagePath); err != nil {
			return nil, "", err
		}
		file, err := os.Open(imagePath)
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// allowedImageExt reports whether a filename carries one of the accepted
// image extensions. Shared with the server-side upload handler.
func allowedImageExt(filename string) bool {
	_, ok := allowedImageExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}
