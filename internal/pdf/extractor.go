package pdfutil

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// PageCount parses PDF bytes and returns the number of pages using
// ledongthuc/pdf. The parser panics on some malformed inputs, so panics are
// reported as errors.
func PageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
