package docproc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeRejectsUnsupportedFormat(t *testing.T) {
	n := New(nil)
	for _, name := range []string{"diagram.bmp", "diagram.svg", "notes.txt", "diagram"} {
		_, err := n.Normalize(name, []byte("data"))
		if !errors.Is(err, domain.ErrUnsupportedFormat) {
			t.Errorf("Normalize(%q): expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestNormalizeRejectsOversizeFile(t *testing.T) {
	n := New(nil)
	n.maxBytes = 64

	_, err := n.Normalize("big.png", make([]byte, 65))
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	// At the limit is fine (decode will fail later, but not on size).
	_, err = n.Normalize("ok.png", make([]byte, 64))
	if errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatal("file at the limit should pass the size check")
	}
}

func TestNormalizeImage(t *testing.T) {
	n := New(nil)
	doc, err := n.Normalize("small.png", pngBytes(t, 40, 30))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if doc.Text != "" {
		t.Fatalf("raster images carry no text, got %q", doc.Text)
	}

	raw, err := base64.StdEncoding.DecodeString(doc.ImageB64)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png output, got %q", format)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Fatalf("small image should keep its size, got %v", img.Bounds())
	}
}

func TestNormalizeDownscalesLargeImages(t *testing.T) {
	n := New(nil)
	n.maxDim = 50

	doc, err := n.Normalize("wide.png", pngBytes(t, 200, 100))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(doc.ImageB64)
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w != 50 || h != 25 {
		t.Fatalf("expected 50x25 preserving aspect, got %dx%d", w, h)
	}
}

func TestNormalizeRejectsGarbageImage(t *testing.T) {
	n := New(nil)
	if _, err := n.Normalize("broken.png", []byte("not a png")); err == nil {
		t.Fatal("expected decode error")
	}
}
