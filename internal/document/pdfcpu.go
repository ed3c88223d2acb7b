// Package document turns uploaded multi-page PDF documents into
// standalone single-page ticket artifacts. Structural page extraction
// preserves vectors, fonts and barcodes; pages whose object graph
// cannot be carved out fall back to a rasterized rebuild.
package document

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// PDFEngine wraps the pdfcpu operations the pipeline needs. Stateless
// and safe for concurrent use.
type PDFEngine struct{}

// NewPDFEngine returns a structural PDF engine.
func NewPDFEngine() *PDFEngine { return &PDFEngine{} }

// Validate checks that data parses as a well-formed PDF.
func (e *PDFEngine) Validate(data []byte) error {
	return api.Validate(bytes.NewReader(data), nil)
}

// PageCount returns the number of pages in the document.
func (e *PDFEngine) PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), nil)
}

// ExtractPage carves the given 1-based page out of data into a
// standalone single-page document, carrying its native content over
// untouched.
func (e *PDFEngine) ExtractPage(data []byte, page int) ([]byte, error) {
	var out bytes.Buffer
	sel := []string{strconv.Itoa(page)}
	if err := api.Trim(bytes.NewReader(data), &out, sel, nil); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// FromImage builds a fresh single-page document embedding the given
// PNG. This is the rasterization fallback's second half.
func (e *PDFEngine) FromImage(png []byte) ([]byte, error) {
	var out bytes.Buffer
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(png)}, imp, nil); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
