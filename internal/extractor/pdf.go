// Package extractor reads source documents into ordered pages of plain text.
package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// PDF extracts page-ordered text from PDF files.
type PDF struct{}

func NewPDF() *PDF { return &PDF{} }

// Extract opens the PDF at path and returns its pages in order. Page numbers
// are taken from the reader as given (1-based). A file with no extractable
// text is an extraction failure, not an empty document.
func (e *PDF) Extract(path string) (domain.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: open %s: %v", domain.ErrExtraction, path, err)
	}
	defer f.Close()

	doc := domain.Document{
		Source: path,
		Title:  filepath.Base(path),
	}
	total := reader.NumPage()
	for n := 1; n <= total; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Document{}, fmt.Errorf("%w: page %d of %s: %v", domain.ErrExtraction, n, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, domain.Page{Number: n, Text: text})
	}
	if len(doc.Pages) == 0 {
		return domain.Document{}, fmt.Errorf("%w: no text extracted from %s", domain.ErrExtraction, path)
	}
	return doc, nil
}

// FullText joins all pages of a document, in order, with blank lines between
// pages. Used as the whole-document context for chunk enrichment.
func FullText(doc domain.Document) string {
	parts := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n\n")
}
