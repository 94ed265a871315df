// Package extract turns raw uploaded bytes into per-page plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"

	"studyrag/internal/domain"
)

var pdfMagic = []byte("%PDF-")

// Pages returns the text of each page of a PDF, or the whole input as a
// single page when it is UTF-8 text.
func Pages(data []byte) ([]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrUnsupportedDocument)
	}
	if IsPDF(data) {
		return pdfPages(data)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not a PDF and not UTF-8 text", domain.ErrUnsupportedDocument)
	}
	return []string{string(data)}, nil
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool { return bytes.HasPrefix(data, pdfMagic) }

func pdfPages(data []byte) (pages []string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: pdf parse: %v", domain.ErrUnsupportedDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf open: %w", domain.ErrUnsupportedDocument, err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, perr := p.GetPlainText(fonts)
		if perr != nil {
			logger.Warnw("pdf page extraction failed", "page", i, "error", perr.Error())
			text = ""
		}
		pages = append(pages, text)
	}

	if hasText(pages) {
		return pages, nil
	}

	// some producers only extract through the document-level reader
	rd, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: pdf text: %w", domain.ErrUnsupportedDocument, err)
	}
	whole, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf text: %w", domain.ErrUnsupportedDocument, err)
	}
	if len(bytes.TrimSpace(whole)) == 0 {
		return nil, fmt.Errorf("%w: pdf contains no extractable text", domain.ErrUnsupportedDocument)
	}
	return []string{string(whole)}, nil
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if len(bytes.TrimSpace([]byte(p))) > 0 {
			return true
		}
	}
	return false
}
