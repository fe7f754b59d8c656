package internal

import (
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func writeTestPNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildMessageFormTextOnly(t *testing.T) {
	body, contentType, err := BuildMessageForm("  hello  ", "")
	if err != nil {
		t.Fatalf("BuildMessageForm: %v", err)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Fatalf("unexpected content type %q", contentType)
	}

	form := parseForm(t, body.String(), contentType)
	if got := form.Value["content"]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected trimmed content field, got %v", got)
	}
	if len(form.File["image"]) != 0 {
		t.Fatalf("expected no image part")
	}
}

func TestBuildMessageFormWithImage(t *testing.T) {
	path := writeTestPNG(t, "cat.png")
	body, contentType, err := BuildMessageForm("look", path)
	if err != nil {
		t.Fatalf("BuildMessageForm: %v", err)
	}

	form := parseForm(t, body.String(), contentType)
	files := form.File["image"]
	if len(files) != 1 || files[0].Filename != "cat.png" {
		t.Fatalf("expected image part named cat.png, got %v", files)
	}
}

func TestBuildMessageFormRejectsEmpty(t *testing.T) {
	if _, _, err := BuildMessageForm("   ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestValidateImage(t *testing.T) {
	path := writeTestPNG(t, "ok.png")
	if err := ValidateImage(path); err != nil {
		t.Fatalf("expected valid image, got %v", err)
	}
}

func TestValidateImageRejectsExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateImage(path); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}

func TestValidateImageRejectsOversized(t *testing.T) {
	path := writeTestPNG(t, "big.png")
	if err := os.Truncate(path, maxImageSize+1); err != nil {
		t.Fatal(err)
	}
	if err := ValidateImage(path); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestValidateImageRejectsMasqueradingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.png")
	if err := os.WriteFile(path, []byte("plain text, not pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateImage(path); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}

func TestAllowedImageExt(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.gif", "e.webp", "f.bmp"} {
		if !allowedImageExt(name) {
			t.Fatalf("expected %q to be allowed", name)
		}
	}
	for _, name := range []string{"a.txt", "b.pdf", "noext", "c.svg"} {
		if allowedImageExt(name) {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func parseForm(t *testing.T, body, contentType string) *multipart.Form {
	t.Helper()
	boundary := strings.TrimPrefix(contentType, "multipart/form-data; boundary=")
	reader := multipart.NewReader(strings.NewReader(body), boundary)
	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form
}
