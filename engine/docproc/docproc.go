// Package docproc normalizes uploaded diagram files into the canonical
// extraction input: one base64-encoded PNG plus optional extracted text.
// PDFs contribute text from every page and a render of the first page;
// raster images are downscaled to fit the vision model's input box.
package docproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	xdraw "golang.org/x/image/draw"

	_ "image/jpeg"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

const (
	// DefaultMaxBytes is the upload size ceiling.
	DefaultMaxBytes = 10 << 20
	// DefaultMaxDim bounds the longest image side sent to the vision model.
	DefaultMaxDim = 2048
	// pdfRenderDPI renders the first PDF page at 2x the 72dpi base.
	pdfRenderDPI = 144
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
}

// Document is the canonical model-ready representation of an upload.
type Document struct {
	ImageB64 string
	Text     string
}

// Normalizer validates and converts uploads. It performs no I/O beyond the
// bytes it is handed.
type Normalizer struct {
	maxBytes int
	maxDim   int
	logger   *slog.Logger
}

// New creates a Normalizer with the default size limits.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{maxBytes: DefaultMaxBytes, maxDim: DefaultMaxDim, logger: logger}
}

// Normalize validates (filename, data) and produces the canonical Document.
func (n *Normalizer) Normalize(filename string, data []byte) (Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return Document{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	if len(data) > n.maxBytes {
		return Document{}, fmt.Errorf("%w: %d bytes (max %d)", domain.ErrFileTooLarge, len(data), n.maxBytes)
	}

	if ext == ".pdf" {
		return n.normalizePDF(data)
	}
	b64, err := n.normalizeImage(data)
	if err != nil {
		return Document{}, err
	}
	return Document{ImageB64: b64}, nil
}

// normalizePDF extracts text from every page and renders the first page to
// a PNG for visual analysis.
func (n *Normalizer) normalizePDF(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return Document{}, fmt.Errorf("docproc: open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return Document{}, fmt.Errorf("docproc: pdf has no pages")
	}

	var text strings.Builder
	for p := 0; p < doc.NumPage(); p++ {
		t, err := doc.Text(p)
		if err != nil {
			n.logger.Warn("docproc: pdf text extraction failed", "page", p, "error", err)
			continue
		}
		text.WriteString(t)
	}

	img, err := doc.ImageDPI(0, pdfRenderDPI)
	if err != nil {
		return Document{}, fmt.Errorf("docproc: render pdf page: %w", err)
	}

	b64, err := encodePNGBase64(img)
	if err != nil {
		return Document{}, err
	}

	n.logger.Info("docproc: pdf processed", "pages", doc.NumPage(), "text_chars", text.Len())
	return Document{ImageB64: b64, Text: text.String()}, nil
}

// normalizeImage decodes, flattens to opaque RGB, downscales into the
// bounding box, and re-encodes as PNG.
func (n *Normalizer) normalizeImage(data []byte) (string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("docproc: decode image: %w", err)
	}

	rgb := flattenToRGB(src)
	if w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy(); w > n.maxDim || h > n.maxDim {
		rgb = downscale(rgb, n.maxDim)
		n.logger.Info("docproc: image resized",
			"from", fmt.Sprintf("%dx%d", w, h),
			"to", fmt.Sprintf("%dx%d", rgb.Bounds().Dx(), rgb.Bounds().Dy()),
		)
	}

	b64, err := encodePNGBase64(rgb)
	if err != nil {
		return "", err
	}
	n.logger.Info("docproc: image processed", "format", format, "b64_chars", len(b64))
	return b64, nil
}

// flattenToRGB composites the image over a white background, discarding any
// alpha channel.
func flattenToRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Over)
	return dst
}

// downscale fits img within maxDim x maxDim preserving aspect ratio, using
// Catmull-Rom resampling.
func downscale(img *image.RGBA, maxDim int) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func encodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("docproc: encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
