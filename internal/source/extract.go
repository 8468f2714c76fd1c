package source

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/kotae/internal/models"
)

// extractPDFPages returns one PageText per PDF page, keeping original
// page numbers so citations line up with the printed document.
func extractPDFPages(content []byte) ([]models.PageText, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]models.PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, models.PageText{Page: i, Text: text})
	}
	return pages, nil
}

// extractPlainPage returns the whole file as page 1. Invalid UTF-8
// sequences are replaced with the replacement character.
func extractPlainPage(content []byte) ([]models.PageText, error) {
	text := string(content)
	if !utf8.Valid(content) {
		text = strings.ToValidUTF8(text, "�")
	}
	return []models.PageText{{Page: 1, Text: text}}, nil
}
