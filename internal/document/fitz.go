package document

import (
	"bytes"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer renders PDF pages to PNG via MuPDF. Used for ingest
// previews and for the rasterization fallback.
type FitzRenderer struct{}

// NewFitzRenderer returns a MuPDF-backed renderer.
func NewFitzRenderer() *FitzRenderer { return &FitzRenderer{} }

// RenderPNG renders the given 1-based page of data at dpi and encodes
// it as PNG. Each call opens its own document handle; go-fitz handles
// are not safe for concurrent use.
func (r *FitzRenderer) RenderPNG(data []byte, page int, dpi float64) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	img, err := doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
